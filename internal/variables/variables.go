package variables

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"

	apperrors "github.com/filevars/webui/internal/errors"
	"github.com/filevars/webui/internal/gitlab"
)

// Variable types accepted by GitLab.
const (
	TypeFile   = "file"
	TypeEnvVar = "env_var"

	DefaultEnvironmentScope = "*"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Kind selects the owner of a variable.
type Kind string

const (
	KindProject Kind = "project"
	KindGroup   Kind = "group"
)

// Scope is a project or group owning variables.
type Scope struct {
	Kind Kind
	ID   int64
}

// ProjectScope is shorthand for a project-owned scope.
func ProjectScope(id int64) Scope { return Scope{Kind: KindProject, ID: id} }

// GroupScope is shorthand for a group-owned scope.
func GroupScope(id int64) Scope { return Scope{Kind: KindGroup, ID: id} }

func (s Scope) collection() string {
	if s.Kind == KindGroup {
		return "/groups/" + strconv.FormatInt(s.ID, 10) + "/variables"
	}
	return "/projects/" + strconv.FormatInt(s.ID, 10) + "/variables"
}

func (s Scope) item(key string) string {
	return s.collection() + "/" + url.PathEscape(key)
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%d", s.Kind, s.ID)
}

// Upstream is the slice of the GitLab client the protocol needs.
type Upstream interface {
	Request(ctx context.Context, method, path string, params url.Values, body any) (*gitlab.Response, error)
	PaginatedGet(ctx context.Context, path string, params url.Values) ([]json.RawMessage, error)
}

// Ref identifies a variable inside a scope.
type Ref struct {
	Key              string `json:"key"`
	EnvironmentScope string `json:"environment_scope"`
}

// Service manages variables of projects and groups.
type Service struct {
	up  Upstream
	log *slog.Logger
}

// NewService creates a Service on top of up.
func NewService(up Upstream, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{up: up, log: log.With("component", "variables")}
}

// List returns the scope's variables, filtered by type unless typeFilter is
// empty, sorted by key then environment scope.
func (s *Service) List(ctx context.Context, scope Scope, typeFilter string) ([]gitlab.Variable, error) {
	raw, err := s.up.PaginatedGet(ctx, scope.collection(), nil)
	if err != nil {
		return nil, err
	}
	out := make([]gitlab.Variable, 0, len(raw))
	for _, item := range raw {
		var v gitlab.Variable
		if err := json.Unmarshal(item, &v); err != nil {
			return nil, apperrors.UnexpectedShape(scope.collection())
		}
		if typeFilter != "" && v.VariableType != typeFilter {
			continue
		}
		// Listings never carry values to the UI.
		v.Value = ""
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].EnvironmentScope < out[j].EnvironmentScope
	})
	return out, nil
}

// Get fetches one variable including its value. A variable whose type is
// not typeFilter is reported as not found.
func (s *Service) Get(ctx context.Context, scope Scope, key, env, typeFilter string) (*gitlab.Variable, error) {
	v, err := s.get(ctx, scope, key, orDefault(env, DefaultEnvironmentScope))
	if err != nil {
		return nil, err
	}
	if typeFilter != "" && v.VariableType != typeFilter {
		return nil, apperrors.NotFound(fmt.Sprintf("variable %s exists but is not of type %q", key, typeFilter))
	}
	return v, nil
}

// Delete removes a variable. An already absent variable is not an error.
func (s *Service) Delete(ctx context.Context, scope Scope, key, env string) error {
	_, err := s.up.Request(ctx, http.MethodDelete, scope.item(key), envFilter(orDefault(env, DefaultEnvironmentScope)), nil)
	if err != nil && !apperrors.IsUpstreamStatus(err, http.StatusNotFound) {
		return err
	}
	return nil
}

func (s *Service) get(ctx context.Context, scope Scope, key, env string) (*gitlab.Variable, error) {
	resp, err := s.up.Request(ctx, http.MethodGet, scope.item(key), envFilter(env), nil)
	if err != nil {
		return nil, err
	}
	var v gitlab.Variable
	if err := resp.Decode(&v); err != nil {
		return nil, apperrors.UnexpectedShape(scope.item(key))
	}
	return &v, nil
}

func envFilter(env string) url.Values {
	return url.Values{"filter[environment_scope]": {env}}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// isNotFound reports a 404 from upstream.
func isNotFound(err error) bool {
	return apperrors.IsUpstreamStatus(err, http.StatusNotFound)
}
