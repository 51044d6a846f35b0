package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nanorem/backend/internal/models"
	"github.com/nanorem/backend/internal/queue"
	"github.com/nanorem/backend/internal/services/network"
)

type partnerTestEnv struct {
	db         *gorm.DB
	router     *gin.Engine
	networkSvc *network.NetworkService
	jobQueue   *queue.Queue
}

func setupPartnerTest(t *testing.T) *partnerTestEnv {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Partner{}, &models.NetworkAuditLog{}, &queue.Job{})
	require.NoError(t, err)

	networkSvc := network.NewNetworkService(db)
	jobQueue := queue.NewQueue(db)
	handler := NewPartnerHandler(db, networkSvc, nil, jobQueue)

	router := gin.New()
	router.POST("/api/partners", handler.Register)

	return &partnerTestEnv{
		db:         db,
		router:     router,
		networkSvc: networkSvc,
		jobQueue:   jobQueue,
	}
}

func (e *partnerTestEnv) register(t *testing.T, payload map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/partners", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestRegisterPartnerEnqueuesSponsorNotification(t *testing.T) {
	env := setupPartnerTest(t)

	root, err := env.networkSvc.Register(network.RegisterPartnerInput{TelegramID: "111", FirstName: "Root"})
	require.NoError(t, err)

	w := env.register(t, map[string]interface{}{
		"telegram_id": "222",
		"first_name":  "New",
		"sponsor_id":  root.ID.String(),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var jobs []queue.Job
	require.NoError(t, env.db.Where("type = ?", queue.JobTypeNotifyNewPartner).Find(&jobs).Error)
	require.Len(t, jobs, 1)
	assert.Equal(t, queue.JobStatusPending, jobs[0].Status)
	assert.Contains(t, string(jobs[0].Payload), root.ID.String())
}

func TestRegisterRootPartnerSkipsNotification(t *testing.T) {
	env := setupPartnerTest(t)

	w := env.register(t, map[string]interface{}{
		"telegram_id": "111",
		"first_name":  "Root",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var count int64
	require.NoError(t, env.db.Model(&queue.Job{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRegisterPartnerValidation(t *testing.T) {
	env := setupPartnerTest(t)

	w := env.register(t, map[string]interface{}{"first_name": "No Telegram"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.register(t, map[string]interface{}{
		"telegram_id": "222",
		"first_name":  "Bad Sponsor",
		"sponsor_id":  "not-a-uuid",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.register(t, map[string]interface{}{
		"telegram_id": "222",
		"first_name":  "Orphan",
		"sponsor_id":  "00000000-0000-0000-0000-000000000001",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
