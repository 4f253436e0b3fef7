package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/graymedia/mediaserver/internal/audit"
)

// recordAudit stores an audit entry. Failures are logged, never returned
// to the caller.
func (s *Server) recordAudit(ctx context.Context, action, subject string, details map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, &audit.Entry{
		Action:  action,
		Subject: subject,
		Source:  audit.SourceAPI,
		Details: details,
	})
	if err != nil {
		s.logger.Warn("recording audit entry", "action", action, "error", err)
	}
}

// handleListAudit returns audit entries newest first.
// Query parameters: action, subject, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit log is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:  q.Get("action"),
		Subject: q.Get("subject"),
	}
	var ok bool
	if filter.Limit, ok = intParam(q.Get("limit")); !ok {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, ok = intParam(q.Get("offset")); !ok {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries", "error", err)
		writeInternalError(w, "could not read audit log")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// intParam parses an optional integer; empty yields zero.
func intParam(v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
