package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/graymedia/mediaserver/internal/audit"
	"github.com/graymedia/mediaserver/internal/infrastructure/logging"
)

// LogLevelRequest is the body of PUT /api/v1/system/log-level.
type LogLevelRequest struct {
	Level string `json:"level"`
}

// LogLevelResponse reports the level in effect after the change.
type LogLevelResponse struct {
	Level    string `json:"level"`
	Previous string `json:"previous"`
}

// handleSetLogLevel changes the process-wide log level at runtime.
func (s *Server) handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req LogLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !logging.ValidLevel(req.Level) {
		writeBadRequest(w, "level must be one of debug, info, warn, error")
		return
	}

	previous := s.logger.Level()
	s.logger.SetLevel(req.Level)
	resp := LogLevelResponse{
		Level:    strings.ToLower(s.logger.Level().String()),
		Previous: strings.ToLower(previous.String()),
	}

	s.logger.Info("log level changed", "from", resp.Previous, "to", resp.Level)
	s.recordAudit(r.Context(), audit.ActionLogLevel, claimsFromContext(r.Context()).Subject,
		map[string]any{"from": resp.Previous, "to": resp.Level})
	writeJSON(w, http.StatusOK, resp)
}
