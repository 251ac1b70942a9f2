package handler

import (
	"log/slog"
	"net/http"

	"github.com/qupredict/qupredict/internal/domain"
)

// OracleControl pauses and resumes the price feed poller.
type OracleControl interface {
	Pause()
	Resume()
	Paused() bool
}

// AdminHandler serves operator controls. Every action lands in the audit
// log with the client identity the auth middleware verified.
type AdminHandler struct {
	oracle OracleControl
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler. oracle may be nil when the
// running mode carries no price feed, which turns the controls into 503s.
func NewAdminHandler(oracle OracleControl, audit domain.AuditStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		oracle: oracle,
		audit:  audit,
		logger: logger,
	}
}

// PauseOracle halts price polling until a resume.
// POST /admin/oracle/pause
func (h *AdminHandler) PauseOracle(w http.ResponseWriter, r *http.Request) {
	if h.oracle == nil {
		writeError(w, http.StatusServiceUnavailable, "price feed not running in this mode")
		return
	}

	h.oracle.Pause()
	h.auditLog(r, "oracle_paused")
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "paused",
		"paused": true,
	})
}

// ResumeOracle restarts price polling after a pause.
// POST /admin/oracle/resume
func (h *AdminHandler) ResumeOracle(w http.ResponseWriter, r *http.Request) {
	if h.oracle == nil {
		writeError(w, http.StatusServiceUnavailable, "price feed not running in this mode")
		return
	}

	h.oracle.Resume()
	h.auditLog(r, "oracle_resumed")
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "resumed",
		"paused": false,
	})
}

// ----- Internal helpers -----

func (h *AdminHandler) auditLog(r *http.Request, event string) {
	err := h.audit.Log(r.Context(), event, map[string]any{
		"actor":  "admin",
		"remote": r.RemoteAddr,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
