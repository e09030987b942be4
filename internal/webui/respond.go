package webui

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/filevars/webui/internal/errors"
	"github.com/filevars/webui/internal/sentry"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apperrors.Payload{Error: msg})
}

// writeAppError answers with the status and JSON body mapped from err.
// Server-side failures are reported to Sentry.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, r.Context().Err()) {
		s.log.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
		sentry.CaptureError(err, map[string]string{
			"route":      r.Pattern,
			"request_id": RequestID(r.Context()),
		}, nil)
	}
	writeJSON(w, status, apperrors.ToPayload(err))
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validationf("%s must be a positive integer, got %q", name, raw)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.Validationf("%s must be a non-negative integer, got %q", name, raw)
	}
	return n, nil
}

// queryID parses an optional positive ID; absent yields nil.
func queryID(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, apperrors.Validationf("%s must be a positive integer, got %q", name, raw)
	}
	return &id, nil
}
