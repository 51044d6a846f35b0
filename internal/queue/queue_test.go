package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// testPayload is a simple job payload for testing
type testPayload struct {
	EntryID string `json:"entry_id"`
	Amount  string `json:"amount"`
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&Job{})
	require.NoError(t, err)

	return db
}

func TestNewQueue(t *testing.T) {
	db := setupTestDB(t)
	q := NewQueue(db)

	assert.NotNil(t, q)
	assert.NotNil(t, q.retryHandler)
}

func TestEnqueueJob(t *testing.T) {
	db := setupTestDB(t)
	q := NewQueue(db)

	payload := testPayload{EntryID: "entry-123", Amount: "100.00"}
	jobID, err := q.EnqueueJob(JobTypeNotifyCommission, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	var job Job
	err = db.Where("id = ?", jobID).First(&job).Error
	require.NoError(t, err)
	assert.Equal(t, JobTypeNotifyCommission, job.Type)
	assert.Equal(t, JobStatusPending, job.Status)

	var stored testPayload
	require.NoError(t, json.Unmarshal(job.Payload, &stored))
	assert.Equal(t, payload.EntryID, stored.EntryID)
	assert.Equal(t, payload.Amount, stored.Amount)
}

func TestGetJob(t *testing.T) {
	db := setupTestDB(t)
	q := NewQueue(db)

	jobID, err := q.EnqueueJob(JobTypeSyncCatalog, nil)
	require.NoError(t, err)

	job, err := q.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, jobID, job.ID.String())
	assert.Equal(t, JobTypeSyncCatalog, job.Type)

	_, err = q.GetJob(uuid.NewString())
	assert.Error(t, err)
}

func TestProcessJobCompletes(t *testing.T) {
	db := setupTestDB(t)
	q := NewQueue(db)

	q.RegisterHandler(JobTypeNotifyCommission, func(ctx context.Context, job Job) (interface{}, error) {
		return map[string]int{"delivered": 1}, nil
	})

	jobID, err := q.EnqueueJob(JobTypeNotifyCommission, testPayload{EntryID: "e1"})
	require.NoError(t, err)

	job, err := q.GetJob(jobID)
	require.NoError(t, err)

	q.processJob(*job)

	done, err := q.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, done.Status)
}

func TestProcessJobWithoutHandlerFails(t *testing.T) {
	db := setupTestDB(t)
	q := NewQueue(db)

	jobID, err := q.EnqueueJob(JobTypeSyncCatalog, nil)
	require.NoError(t, err)

	job, err := q.GetJob(jobID)
	require.NoError(t, err)

	q.processJob(*job)

	failed, err := q.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "no handler")
}

func TestFailedJobIsScheduledForRetry(t *testing.T) {
	db := setupTestDB(t)
	q := NewQueue(db)
	handler := NewRetryHandler(db, q)

	jobID, err := q.EnqueueJob(JobTypeNotifyCommission, testPayload{EntryID: "e1"})
	require.NoError(t, err)

	job, err := q.GetJob(jobID)
	require.NoError(t, err)

	handler.HandleFailedJob(*job, errors.New("telegram unavailable"))

	scheduled, err := q.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRetryScheduled, scheduled.Status)
	assert.Equal(t, 1, scheduled.RetryCount)
	require.NotNil(t, scheduled.RetryAt)
	assert.True(t, scheduled.RetryAt.After(time.Now()))
}

func TestExhaustedRetriesFailJob(t *testing.T) {
	db := setupTestDB(t)
	q := NewQueue(db)
	handler := NewRetryHandler(db, q)

	jobID, err := q.EnqueueJob(JobTypeNotifyCommission, nil)
	require.NoError(t, err)

	job, err := q.GetJob(jobID)
	require.NoError(t, err)
	job.RetryCount = handler.retryConf.MaxRetries

	handler.HandleFailedJob(*job, errors.New("still failing"))

	failed, err := q.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "Exceeded max retries")
}

func TestCalculateBackoff(t *testing.T) {
	handler := NewRetryHandler(setupTestDB(t), nil)

	first := handler.calculateBackoff(1)
	second := handler.calculateBackoff(2)
	third := handler.calculateBackoff(3)

	assert.Equal(t, 30*time.Second, first)
	assert.Equal(t, time.Minute, second)
	assert.Equal(t, 2*time.Minute, third)

	// Very high attempts cap at the configured maximum.
	assert.Equal(t, handler.retryConf.MaxInterval, handler.calculateBackoff(30))
}
