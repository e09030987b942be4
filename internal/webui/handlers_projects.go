package webui

import (
	"net/http"
	"strings"

	"github.com/filevars/webui/internal/gitlab"
)

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	groupID, err := queryID(r, "group_id")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	perPage, err := queryInt(r, "per_page")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	q := gitlab.ProjectQuery{
		Search:  strings.TrimSpace(r.URL.Query().Get("search")),
		Page:    page,
		PerPage: perPage,
	}
	if groupID != nil {
		q.GroupID = *groupID
	}

	result, err := s.svc.Projects(r.Context(), q)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEnvironments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	envs, err := s.svc.Environments(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envs)
}
