package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mocks "github.com/aliskhannn/shipping-reminder/internal/mocks/api/handlers/reminder"
	"github.com/aliskhannn/shipping-reminder/internal/service/reminder"
)

func setupHandler(t *testing.T) (*Handler, *mocks.MockreminderService) {
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockreminderService(ctrl)
	return NewHandler(mockService), mockService
}

func TestHandler_Run(t *testing.T) {
	handler, mockService := setupHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/reminders/run", nil)

	mockService.EXPECT().RunDueReminders(gomock.Any()).Return(2, nil)

	handler.Run(c)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)

	var body struct {
		Result RunResponse `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Result.Sent)
}

func TestHandler_Run_StoreUnavailable(t *testing.T) {
	handler, mockService := setupHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/reminders/run", nil)

	mockService.EXPECT().RunDueReminders(gomock.Any()).
		Return(0, fmt.Errorf("%w: disk unreadable", reminder.ErrStoreUnavailable))

	handler.Run(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Result().StatusCode)
}

func TestHandler_Run_Interrupted(t *testing.T) {
	handler, mockService := setupHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/reminders/run", nil)

	mockService.EXPECT().RunDueReminders(gomock.Any()).Return(1, context.Canceled)

	handler.Run(c)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.Contains(t, w.Body.String(), `"sent":1`)
}

func TestHandler_Stats(t *testing.T) {
	handler, mockService := setupHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/reminders/stats", nil)

	mockService.EXPECT().Stats().Return(reminder.Stats{Runs: 3, Sent: 5, LastRunAt: time.Unix(0, 0).UTC()})

	handler.Stats(c)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.Contains(t, w.Body.String(), `"runs":3`)
}
