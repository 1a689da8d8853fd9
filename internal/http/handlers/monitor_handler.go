// Monitor HTTP handlers.
//
// This file exposes the admin endpoints over the monitor core:
//   - GET  /status            (combined control and connection view)
//   - POST /controls/enable   (turn monitoring on)
//   - POST /controls/disable  (turn monitoring off)
//   - POST /controls/restart  (soft restart of the session connection)
//   - GET  /logs              (recent error events, newest first)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses. Control actions only
// write the control row; the supervisor applies them within one poll
// interval, which is why they return 202 rather than 200.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkhv/tg-monitor/internal/domain"
	"github.com/dkhv/tg-monitor/internal/monitor"
	"github.com/dkhv/tg-monitor/internal/services"
)

//
// Service contracts (context-aware)
//

// ControlService defines the control and status operations consumed by HTTP
// handlers. Implementations must honor the provided context.
type ControlService interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	RequestRestart(ctx context.Context) error
	Status(ctx context.Context) (services.Status, error)
	Logs(ctx context.Context, limit int) ([]domain.ErrorEvent, error)
}

// SupervisorInfo is the read-only view of the running supervisor the status
// endpoint reports next to the durable rows.
type SupervisorInfo interface {
	State() monitor.State
	ResolvedTargetID() (int64, bool)
}

//
// Handler wiring
//

// Handlers groups the admin HTTP endpoints for status, controls, keywords,
// and logs. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	ctlSvc ControlService
	kwSvc  KeywordService
	sup    SupervisorInfo
}

// New constructs a Handlers instance bound to the given services.
func New(ctlSvc ControlService, kwSvc KeywordService, sup SupervisorInfo) *Handlers {
	return &Handlers{ctlSvc: ctlSvc, kwSvc: kwSvc, sup: sup}
}

//
// DTOs
//

// StatusResponse is the combined admin status view.
type StatusResponse struct {
	Enabled            bool       `json:"enabled"`
	Connected          bool       `json:"connected"`
	State              string     `json:"state"`
	TargetID           *int64     `json:"target_id,omitempty"`
	LastError          *string    `json:"last_error,omitempty"`
	LastEventTime      *time.Time `json:"last_event_time,omitempty"`
	LastEventMessage   *string    `json:"last_event_message,omitempty"`
	RestartRequestedAt *time.Time `json:"restart_requested_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// LogEntry is one error event row.
type LogEntry struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ListLogsResponse wraps the recent error events.
type ListLogsResponse struct {
	Logs []LogEntry `json:"logs"`
}

//
// Handlers
//

// Status returns the combined control flags, durable connection status, and
// the supervisor's in-memory state.
func (h *Handlers) Status(c *gin.Context) {
	st, err := h.ctlSvc.Status(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatusFailed, err.Error())
		return
	}

	resp := StatusResponse{
		Enabled:            st.Enabled,
		Connected:          st.Connected,
		State:              h.sup.State().String(),
		LastError:          st.Connection.LastError,
		LastEventTime:      st.Connection.LastEventTime,
		LastEventMessage:   st.Connection.LastEventMessage,
		RestartRequestedAt: st.Control.RestartRequestedAt,
		UpdatedAt:          st.Connection.UpdatedAt,
	}
	if id, resolved := h.sup.ResolvedTargetID(); resolved {
		resp.TargetID = &id
	}
	ok(c, http.StatusOK, resp)
}

// Enable turns monitoring on.
func (h *Handlers) Enable(c *gin.Context) {
	if err := h.ctlSvc.Enable(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeControlFailed, err.Error())
		return
	}
	ok(c, http.StatusAccepted, gin.H{"enabled": true})
}

// Disable turns monitoring off.
func (h *Handlers) Disable(c *gin.Context) {
	if err := h.ctlSvc.Disable(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeControlFailed, err.Error())
		return
	}
	ok(c, http.StatusAccepted, gin.H{"enabled": false})
}

// Restart requests a soft restart of the session connection.
func (h *Handlers) Restart(c *gin.Context) {
	if err := h.ctlSvc.RequestRestart(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeControlFailed, err.Error())
		return
	}
	ok(c, http.StatusAccepted, gin.H{"restart": "requested"})
}

// ListLogs returns the newest error events. The limit query parameter is
// clamped by the repository.
func (h *Handlers) ListLogs(c *gin.Context) {
	limit := atoiDefault(c.Query("limit"), 50)
	events, err := h.ctlSvc.Logs(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	resp := ListLogsResponse{Logs: make([]LogEntry, 0, len(events))}
	for _, e := range events {
		resp.Logs = append(resp.Logs, LogEntry{ID: e.ID, Message: e.Message, CreatedAt: e.CreatedAt})
	}
	ok(c, http.StatusOK, resp)
}
