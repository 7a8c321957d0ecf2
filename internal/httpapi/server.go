package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mcjmccartney/rmr-core/internal/dedup"
	"github.com/mcjmccartney/rmr-core/internal/domain"
	"github.com/mcjmccartney/rmr-core/internal/session"
)

type ServerConfig struct {
	MaxBodyBytes int64

	// AuthToken, when set, is required as a bearer token on every route
	// except the health check.
	AuthToken string
}

const defaultMaxBodyBytes = 1 << 20

// Server is the inbound HTTP surface: the calendar callback that reports a
// session's event id after asynchronous creation, plus the duplicate review
// endpoints. Everything else goes through the library API directly.
type Server struct {
	orchestrator *session.Orchestrator
	dedup        *dedup.Service
	logger       *zap.Logger
	cfg          ServerConfig
}

func NewServer(orchestrator *session.Orchestrator, dedupService *dedup.Service, logger *zap.Logger) *Server {
	return NewServerWithConfig(orchestrator, dedupService, logger, ServerConfig{})
}

func NewServerWithConfig(orchestrator *session.Orchestrator, dedupService *dedup.Service, logger *zap.Logger, cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		orchestrator: orchestrator,
		dedup:        dedupService,
		logger:       logger,
		cfg:          cfg,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token", correlationID(r))
		return
	}
	if r.URL.Path == "/v1/internal/calendar-callback" && r.Method == http.MethodPost {
		s.handleCalendarCallback(w, r)
		return
	}
	if r.URL.Path == "/v1/duplicates" && r.Method == http.MethodGet {
		s.handleListDuplicates(w, r)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) == 5 && parts[0] == "v1" && parts[1] == "duplicates" && r.Method == http.MethodPost {
		s.handleDuplicatePair(w, r, parts[2], parts[3], parts[4])
		return
	}

	writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID(r))
}

func (s *Server) handleCalendarCallback(w http.ResponseWriter, r *http.Request) {
	cid := correlationID(r)
	var body struct {
		SessionID string `json:"sessionId"`
		EventID   string `json:"eventId"`
	}
	if !s.decodeJSONBody(w, r, cid, &body) {
		return
	}
	if strings.TrimSpace(body.SessionID) == "" || strings.TrimSpace(body.EventID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "sessionId and eventId are required", cid)
		return
	}
	updated, err := s.orchestrator.ApplyInternal(r.Context(), body.SessionID, domain.SessionUpdate{EventID: &body.EventID})
	if err != nil {
		s.writeDomainError(w, err, cid)
		return
	}
	s.logger.Info("calendar event id stored",
		zap.String("sessionId", body.SessionID), zap.String("eventId", body.EventID),
		zap.String("correlationId", cid))
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleListDuplicates(w http.ResponseWriter, r *http.Request) {
	cid := correlationID(r)
	pairs, err := s.dedup.Detect(r.Context())
	if err != nil {
		s.writeDomainError(w, err, cid)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"duplicates": pairs})
}

func (s *Server) handleDuplicatePair(w http.ResponseWriter, r *http.Request, primaryID, duplicateID, action string) {
	cid := correlationID(r)
	switch action {
	case "preview":
		preview, err := s.dedup.Preview(r.Context(), primaryID, duplicateID)
		if err != nil {
			s.writeDomainError(w, err, cid)
			return
		}
		writeJSON(w, http.StatusOK, preview)
	case "merge":
		var body struct {
			Resolutions map[string]string `json:"resolutions"`
		}
		if !s.decodeJSONBody(w, r, cid, &body) {
			return
		}
		result, err := s.dedup.Merge(r.Context(), primaryID, duplicateID, body.Resolutions)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidInput) {
				s.writeDomainError(w, err, cid)
				return
			}
			// partial merge: the structured result says how far it got
			writeJSON(w, http.StatusConflict, result)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case "dismiss":
		if err := s.dedup.Dismiss(r.Context(), primaryID, duplicateID); err != nil {
			s.writeDomainError(w, err, cid)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", cid)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.cfg.AuthToken)) == 1
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error, cid string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), cid)
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), cid)
	default:
		s.logger.Error("request failed", zap.String("correlationId", cid), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), cid)
	}
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, cid string, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", cid)
			return false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", cid)
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", cid)
		return false
	}
	return true
}

func correlationID(r *http.Request) string {
	if cid := strings.TrimSpace(r.Header.Get("X-Correlation-Id")); cid != "" {
		return cid
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}
