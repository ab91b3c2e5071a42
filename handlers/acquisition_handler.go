package handlers

import (
	"errors"
	"net/http"
	"sync"

	"github.com/labstack/echo/v5"

	"ticket-acquisition/config"
	"ticket-acquisition/internal/acquire"
	"ticket-acquisition/internal/payment"
	"ticket-acquisition/internal/store"
	"ticket-acquisition/models"
	"ticket-acquisition/utils"
)

// AcquisitionHandler exposes the orchestrator over HTTP. One orchestrator
// lives per (session, event) pair; the session id travels in the request
// body or the X-Session-ID header and is minted on first selection.
type AcquisitionHandler struct {
	cfg       *config.Config
	queue     acquire.Queue
	providers *payment.Registry
	finalizer acquire.Finalizer
	stores    func(owner string) store.SelectionStore

	mu       sync.Mutex
	sessions map[string]*acquire.Orchestrator
}

func NewAcquisitionHandler(cfg *config.Config, queue acquire.Queue, providers *payment.Registry, finalizer acquire.Finalizer, stores func(owner string) store.SelectionStore) *AcquisitionHandler {
	return &AcquisitionHandler{
		cfg:       cfg,
		queue:     queue,
		providers: providers,
		finalizer: finalizer,
		stores:    stores,
		sessions:  make(map[string]*acquire.Orchestrator),
	}
}

func (h *AcquisitionHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/select", h.Select)
	g.POST("/quantity", h.SetQuantity)
	g.GET("/status", h.Status)
	g.POST("/payment", h.StartPayment)
	g.POST("/payment/approve", h.ApprovePayment)
	g.POST("/finalize/retry", h.RetryFinalize)
	g.POST("/leave", h.Leave)
}

func (h *AcquisitionHandler) sessionID(c echo.Context, bodyID string) string {
	if bodyID != "" {
		return bodyID
	}
	return c.Request().Header.Get("X-Session-ID")
}

// orchestrator returns the live orchestrator for the pair, creating and
// rehydrating one when create is set.
func (h *AcquisitionHandler) orchestrator(c echo.Context, sessionID, eventID string, create bool) (*acquire.Orchestrator, error) {
	if sessionID == "" || eventID == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "session_id and event_id are required")
	}

	key := sessionID + "|" + eventID

	h.mu.Lock()
	o, ok := h.sessions[key]
	if !ok {
		if !create {
			h.mu.Unlock()
			return nil, echo.NewHTTPError(http.StatusNotFound, "no acquisition in progress")
		}
		o = acquire.New(h.cfg, h.queue, h.providers, h.finalizer, h.stores(sessionID), eventID)
		h.sessions[key] = o
	}
	h.mu.Unlock()

	if !ok {
		if err := o.Rehydrate(c.Request().Context()); err != nil {
			return nil, echo.NewHTTPError(http.StatusBadGateway, "could not restore previous selection")
		}
	}
	return o, nil
}

func (h *AcquisitionHandler) Select(c echo.Context) error {
	var req struct {
		SessionID string                 `json:"session_id"`
		Selection models.TicketSelection `json:"selection"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	sessionID := h.sessionID(c, req.SessionID)
	if sessionID == "" {
		code, err := utils.GenerateCode(16)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "could not mint session id")
		}
		sessionID = code
	}

	o, err := h.orchestrator(c, sessionID, req.Selection.EventID, true)
	if err != nil {
		return err
	}
	if err := o.Select(c.Request().Context(), req.Selection); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"session_id": sessionID,
		"status":     o.Snapshot(),
	})
}

func (h *AcquisitionHandler) SetQuantity(c echo.Context) error {
	var req struct {
		SessionID string `json:"session_id"`
		EventID   string `json:"event_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	o, err := h.orchestrator(c, h.sessionID(c, req.SessionID), req.EventID, false)
	if err != nil {
		return err
	}
	if err := o.SetQuantity(c.Request().Context(), req.Quantity); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{"status": o.Snapshot()})
}

func (h *AcquisitionHandler) Status(c echo.Context) error {
	sessionID := h.sessionID(c, c.QueryParam("session_id"))
	eventID := c.QueryParam("event_id")

	o, err := h.orchestrator(c, sessionID, eventID, false)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"status": o.Snapshot()})
}

func (h *AcquisitionHandler) StartPayment(c echo.Context) error {
	var req struct {
		SessionID string           `json:"session_id"`
		EventID   string           `json:"event_id"`
		Provider  string           `json:"provider"`
		Buyer     models.BuyerInfo `json:"buyer"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	o, err := h.orchestrator(c, h.sessionID(c, req.SessionID), req.EventID, false)
	if err != nil {
		return err
	}

	if err := o.StartPayment(c.Request().Context(), payment.Kind(req.Provider), req.Buyer); err != nil {
		var renderErr *payment.RenderError
		if errors.As(err, &renderErr) || errors.Is(err, payment.ErrConfigUnavailable) {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{"status": o.Snapshot()})
}

func (h *AcquisitionHandler) ApprovePayment(c echo.Context) error {
	var req struct {
		SessionID string `json:"session_id"`
		EventID   string `json:"event_id"`
		Reference string `json:"reference"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	o, err := h.orchestrator(c, h.sessionID(c, req.SessionID), req.EventID, false)
	if err != nil {
		return err
	}

	if err := o.ApprovePayment(c.Request().Context(), req.Reference); err != nil {
		var capErr *payment.CaptureError
		if errors.As(err, &capErr) {
			return echo.NewHTTPError(http.StatusBadGateway, capErr.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{"status": o.Snapshot()})
}

func (h *AcquisitionHandler) RetryFinalize(c echo.Context) error {
	var req struct {
		SessionID string `json:"session_id"`
		EventID   string `json:"event_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	o, err := h.orchestrator(c, h.sessionID(c, req.SessionID), req.EventID, false)
	if err != nil {
		return err
	}

	if err := o.RetryFinalize(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"status": o.Snapshot()})
}

// Leave drops the live orchestrator but keeps the stored selection and the
// admission slot so the buyer can come back and resume.
func (h *AcquisitionHandler) Leave(c echo.Context) error {
	var req struct {
		SessionID string `json:"session_id"`
		EventID   string `json:"event_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	sessionID := h.sessionID(c, req.SessionID)
	key := sessionID + "|" + req.EventID

	h.mu.Lock()
	o, ok := h.sessions[key]
	delete(h.sessions, key)
	h.mu.Unlock()

	if ok {
		o.Leave(c.Request().Context())
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "left"})
}
