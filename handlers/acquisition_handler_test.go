package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-acquisition/config"
	"ticket-acquisition/internal/payment"
	"ticket-acquisition/internal/purchase"
	"ticket-acquisition/internal/store"
	"ticket-acquisition/models"
)

type noopQueue struct{}

func (noopQueue) Join(_ context.Context, eventID string, _ *models.BuyerInfo) (*models.QueueTicket, error) {
	return &models.QueueTicket{QueueID: "q-1", EventID: eventID, Position: 1, Total: 1}, nil
}
func (noopQueue) Seed(_, _ string, _ *models.BuyerInfo) {}
func (noopQueue) QueueID(string) string                 { return "" }
func (noopQueue) Refresh(context.Context, string, func(*models.QueueTicket)) bool {
	return false
}
func (noopQueue) Subscribe(_ context.Context, _ string, _ func(*models.QueueTicket)) func() {
	return func() {}
}
func (noopQueue) Complete(context.Context, string) {}

type noopFinalizer struct{}

func (noopFinalizer) Finalize(_ context.Context, req *purchase.Request) ([]models.Ticket, error) {
	return []models.Ticket{{ID: "t-1", EventID: req.EventID}}, nil
}

func testHandler() *AcquisitionHandler {
	cfg := &config.Config{
		HighDemandThreshold:        10,
		PositionPollInterval:       time.Hour,
		ProcessingWarningDelay:     time.Hour,
		ProcessingWarningCountdown: time.Hour,
		SelectionTTL:               time.Hour,
	}
	return NewAcquisitionHandler(cfg, noopQueue{}, payment.NewRegistry(), noopFinalizer{}, func(string) store.SelectionStore {
		return store.NewMemoryStore()
	})
}

func TestSelectMintsSessionID(t *testing.T) {
	h := testHandler()

	body := `{"selection":{"tier_id":"tier-1","event_id":"event-1","name":"GA","price":"25","currency":"USD","total_inventory":100,"units_sold":3}}`
	req := httptest.NewRequest(http.MethodPost, "/api/acquisition/select", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	require.NoError(t, h.Select(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var reply struct {
		SessionID string `json:"session_id"`
		Status    struct {
			State string `json:"state"`
		} `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.NotEmpty(t, reply.SessionID)
	assert.Equal(t, "ready", reply.Status.State)
}

func TestStatusWithoutSessionIsNotFound(t *testing.T) {
	h := testHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/acquisition/status?session_id=nope&event_id=event-1", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	err := h.Status(c)
	require.Error(t, err)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestStatusRequiresIdentifiers(t *testing.T) {
	h := testHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/acquisition/status", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	err := h.Status(c)
	require.Error(t, err)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestSelectThenStatusSharesOrchestrator(t *testing.T) {
	h := testHandler()
	e := echo.New()

	body := `{"session_id":"sess-1","selection":{"tier_id":"tier-1","event_id":"event-1","name":"GA","price":"25","currency":"USD","total_inventory":100,"units_sold":3}}`
	req := httptest.NewRequest(http.MethodPost, "/api/acquisition/select", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Select(e.NewContext(req, rec)))

	req = httptest.NewRequest(http.MethodGet, "/api/acquisition/status?session_id=sess-1&event_id=event-1", nil)
	rec = httptest.NewRecorder()
	require.NoError(t, h.Status(e.NewContext(req, rec)))

	var reply struct {
		Status struct {
			State    string `json:"state"`
			Quantity int    `json:"quantity"`
		} `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "ready", reply.Status.State)
	assert.Equal(t, 1, reply.Status.Quantity)
}

func TestLeaveUnknownSessionIsOK(t *testing.T) {
	h := testHandler()

	body := `{"session_id":"ghost","event_id":"event-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/acquisition/leave", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, h.Leave(echo.New().NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
