package webui

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/filevars/webui/internal/errors"
	"github.com/filevars/webui/internal/variables"
)

// maxUpsertBody bounds an upsert request; file variables top out well below.
const maxUpsertBody = 4 << 20

// scopeOf resolves the variable owner from the matched route.
func scopeOf(r *http.Request) (variables.Scope, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return variables.Scope{}, err
	}
	if strings.HasPrefix(r.URL.Path, "/api/groups/") {
		return variables.GroupScope(id), nil
	}
	return variables.ProjectScope(id), nil
}

// typeFilter reads ?type=. File variables are the default; "all" disables
// filtering.
func typeFilter(r *http.Request) (string, error) {
	switch t := strings.TrimSpace(r.URL.Query().Get("type")); t {
	case "":
		return variables.TypeFile, nil
	case "all", "*":
		return "", nil
	case variables.TypeFile, variables.TypeEnvVar:
		return t, nil
	default:
		return "", apperrors.Validationf("type must be %q, %q or \"all\", got %q", variables.TypeFile, variables.TypeEnvVar, t)
	}
}

func (s *Server) handleListVariables(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	filter, err := typeFilter(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	vars, err := s.svc.Variables.List(r.Context(), scope, filter)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vars)
}

func (s *Server) handleGetVariable(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	filter, err := typeFilter(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	v, err := s.svc.Variables.Get(r.Context(), scope, r.PathValue("key"), r.URL.Query().Get("environment_scope"), filter)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteVariable(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	key := r.PathValue("key")
	env := r.URL.Query().Get("environment_scope")
	if err := s.svc.Variables.Delete(r.Context(), scope, key, env); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if env == "" {
		env = variables.DefaultEnvironmentScope
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": variables.Ref{Key: key, EnvironmentScope: env},
	})
}

// handleUpsertVariable runs the rename-safe upsert. A rename whose cleanup
// failed answers 207 with the partial outcome in detail.
func (s *Server) handleUpsertVariable(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	var req variables.UpsertRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxUpsertBody))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			s.writeAppError(w, r, apperrors.Validationf("request body is empty"))
			return
		}
		s.writeAppError(w, r, apperrors.ValidationError(err, "invalid JSON body"))
		return
	}

	res, err := s.svc.Variables.Upsert(r.Context(), scope, req)
	if err != nil {
		if _, partial := variables.PartialFailureOf(err); partial {
			s.log.Warn("partial rename", "scope", scope.String(), "key", req.Key, "error", err)
		}
		s.writeAppError(w, r, err)
		return
	}
	s.log.Info("variable upserted", "scope", scope.String(), "key", res.Variable.Key, "status", res.Status)
	writeJSON(w, http.StatusOK, res)
}
