package webui

import (
	"net/http"
)

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleHealth checks the configured token against GitLab.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.svc.Health(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleUIConfig(w http.ResponseWriter, r *http.Request) {
	sec := s.config.AutoRefreshSec
	if sec < 1 {
		sec = 1
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"auto_refresh_enabled": s.config.AutoRefreshEnabled,
		"auto_refresh_sec":     sec,
		"version":              s.config.Version,
	})
}

// handleCacheRefresh forces a tree fetch and drops the flat caches.
func (s *Server) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.RefreshTree(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tree": stats})
}
