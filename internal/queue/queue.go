package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeNotifyCommission JobType = "notify_commission"
	JobTypeNotifyNewPartner JobType = "notify_new_partner"
	JobTypeSyncCatalog      JobType = "sync_catalog"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending        JobStatus = "pending"
	JobStatusProcessing     JobStatus = "processing"
	JobStatusCompleted      JobStatus = "completed"
	JobStatusFailed         JobStatus = "failed"
	JobStatusRetryScheduled JobStatus = "retry_scheduled"
)

// Job represents a background job persisted in the database
type Job struct {
	ID         uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	Type       JobType         `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	RetryCount int             `json:"retry_count" gorm:"default:0"`
	MaxRetries int             `json:"max_retries" gorm:"default:3"`
	RetryAt    *time.Time      `json:"retry_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// JobHandler is a function that processes a job
type JobHandler func(ctx context.Context, job Job) (interface{}, error)

// Queue is a database-backed job queue with retries. Jobs are ordinary
// rows, so they survive process restarts.
type Queue struct {
	db           *gorm.DB
	handlers     map[JobType]JobHandler
	retryHandler *RetryHandler
	processing   bool
}

// NewQueue creates a new queue
func NewQueue(db *gorm.DB) *Queue {
	q := &Queue{
		db:       db,
		handlers: make(map[JobType]JobHandler),
	}
	q.retryHandler = NewRetryHandler(db, q)
	return q
}

// RegisterHandler registers a handler for a job type
func (q *Queue) RegisterHandler(jobType JobType, handler JobHandler) {
	q.handlers[jobType] = handler
}

// EnqueueJob adds a job to the queue
func (q *Queue) EnqueueJob(jobType JobType, payload interface{}) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := Job{
		ID:         uuid.New(),
		Type:       jobType,
		Payload:    payloadBytes,
		Status:     JobStatusPending,
		MaxRetries: 3,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if err := q.db.Create(&job).Error; err != nil {
		return "", err
	}
	return job.ID.String(), nil
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(jobID string) (*Job, error) {
	var job Job
	err := q.db.Model(&Job{}).Where("id = ?", jobID).First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("job not found")
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ProcessJobs starts processing jobs from the queue until Stop is called
func (q *Queue) ProcessJobs() {
	if q.processing {
		return
	}
	q.processing = true
	q.retryHandler.StartRetryProcessor(1 * time.Minute)

	go func() {
		for q.processing {
			var job Job
			err := q.db.Model(&Job{}).Where("status = ?", JobStatusPending).
				Order("created_at ASC").First(&job).Error
			if err != nil {
				if err != gorm.ErrRecordNotFound {
					log.Printf("Error getting job from queue: %v", err)
				}
				time.Sleep(1 * time.Second)
				continue
			}
			q.processJob(job)
		}
	}()
}

func (q *Queue) processJob(job Job) {
	handler, ok := q.handlers[job.Type]
	if !ok {
		log.Printf("No handler registered for job type: %s", job.Type)
		q.updateStatus(job.ID, JobStatusFailed, "no handler registered")
		return
	}

	if err := q.db.Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"status":     JobStatusProcessing,
		"updated_at": time.Now(),
	}).Error; err != nil {
		log.Printf("Failed to update job status: %v", err)
		return
	}

	result, err := handler(context.Background(), job)
	if err != nil {
		q.retryHandler.HandleFailedJob(job, err)
		return
	}

	var resultJSON []byte
	if result != nil {
		resultJSON, err = json.Marshal(result)
		if err != nil {
			log.Printf("Failed to marshal job result: %v", err)
		}
	}

	if err := q.db.Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"status":     JobStatusCompleted,
		"result":     resultJSON,
		"updated_at": time.Now(),
	}).Error; err != nil {
		log.Printf("Failed to update job result: %v", err)
	}
}

func (q *Queue) updateStatus(jobID uuid.UUID, status JobStatus, errorMsg string) {
	if err := q.db.Model(&Job{}).Where("id = ?", jobID).Updates(map[string]interface{}{
		"status":     status,
		"error":      errorMsg,
		"updated_at": time.Now(),
	}).Error; err != nil {
		log.Printf("Failed to update job status: %v", err)
	}
}

// Stop stops processing jobs
func (q *Queue) Stop() {
	q.processing = false
}
