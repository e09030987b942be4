package webui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/filevars/webui/internal/config"
	"github.com/filevars/webui/internal/gitlab"
	"github.com/filevars/webui/internal/logger"
	"github.com/filevars/webui/internal/service"
)

// fakeGitLab serves the slice of the GitLab API the facade reaches.
type fakeGitLab struct {
	mu         sync.Mutex
	vars       map[string]gitlab.Variable
	failDelete map[string]int
	groupCalls int
}

func varKey(key, env string) string { return key + "|" + env }

func newFakeGitLab() *fakeGitLab {
	f := &fakeGitLab{vars: map[string]gitlab.Variable{}, failDelete: map[string]int{}}
	for _, v := range []gitlab.Variable{
		{Key: "TLS_CERT", Value: "cert", VariableType: "file", EnvironmentScope: "*"},
		{Key: "TOKEN", Value: "t", VariableType: "env_var", EnvironmentScope: "*"},
	} {
		f.vars[varKey(v.Key, v.EnvironmentScope)] = v
	}
	return f
}

func (f *fakeGitLab) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v4/user", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":1,"username":"root","name":"Administrator"}`)
	})
	mux.HandleFunc("GET /api/v4/version", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"version":"17.4.1","revision":"abc"}`)
	})
	mux.HandleFunc("GET /api/v4/groups", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.groupCalls++
		f.mu.Unlock()
		fmt.Fprint(w, `[
			{"id":1,"name":"Platform","full_path":"platform","updated_at":"2024-06-01T12:00:00Z"},
			{"id":2,"name":"Backend","full_path":"platform/backend","parent_id":1,"updated_at":"2024-06-01T12:00:00Z"},
			{"id":3,"name":"Marketing","full_path":"marketing","updated_at":"2024-06-01T12:00:00Z"}
		]`)
	})
	mux.HandleFunc("GET /api/v4/groups/{id}/projects", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Total", "1")
		fmt.Fprint(w, `[{"id":10,"name":"api","path_with_namespace":"platform/api"}]`)
	})
	mux.HandleFunc("GET /api/v4/projects/{id}/environments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":1,"name":"production","state":"available"}]`)
	})

	mux.HandleFunc("GET /api/v4/projects/10/variables", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		out := make([]gitlab.Variable, 0, len(f.vars))
		for _, v := range f.vars {
			out = append(out, v)
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("GET /api/v4/projects/10/variables/{key}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		v, ok := f.vars[varKey(r.PathValue("key"), envOf(r))]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"404 Variable Not Found"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(v)
	})
	mux.HandleFunc("POST /api/v4/projects/10/variables", func(w http.ResponseWriter, r *http.Request) {
		var v gitlab.Variable
		_ = json.NewDecoder(r.Body).Decode(&v)
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, exists := f.vars[varKey(v.Key, v.EnvironmentScope)]; exists {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"message":{"key":["has already been taken"]}}`)
			return
		}
		f.vars[varKey(v.Key, v.EnvironmentScope)] = v
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(v)
	})
	mux.HandleFunc("PUT /api/v4/projects/10/variables/{key}", func(w http.ResponseWriter, r *http.Request) {
		var v gitlab.Variable
		_ = json.NewDecoder(r.Body).Decode(&v)
		v.Key = r.PathValue("key")
		f.mu.Lock()
		defer f.mu.Unlock()
		f.vars[varKey(v.Key, envOf(r))] = v
		_ = json.NewEncoder(w).Encode(v)
	})
	mux.HandleFunc("DELETE /api/v4/projects/10/variables/{key}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := varKey(r.PathValue("key"), envOf(r))
		if status, ok := f.failDelete[id]; ok {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"message":"boom"}`)
			return
		}
		if _, ok := f.vars[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.vars, id)
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (f *fakeGitLab) has(key, env string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.vars[varKey(key, env)]
	return ok
}

func envOf(r *http.Request) string {
	if env := r.URL.Query().Get("filter[environment_scope]"); env != "" {
		return env
	}
	return "*"
}

type testEnv struct {
	server   *Server
	gitlab   *fakeGitLab
	registry *prometheus.Registry
}

// newTestServer wires a Server against an in-memory GitLab.
func newTestServer(t *testing.T, mutate ...func(*ServerConfig)) *testEnv {
	t.Helper()

	fake := newFakeGitLab()
	upstream := httptest.NewServer(fake.handler())
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		GitLabBaseURL:        upstream.URL + "/api/v4",
		GitLabToken:          "glpat-test",
		PerPage:              100,
		RequestTimeout:       2 * time.Second,
		TreeTTL:              time.Minute,
		RefreshInterval:      time.Hour,
		SnapshotPath:         "/cache/group_tree.json",
		CountsCacheTTL:       time.Minute,
		ProjectsCacheTTL:     time.Minute,
		EnvironmentsCacheTTL: time.Minute,
		MinAccessLevel:       30,
	}
	registry := prometheus.NewRegistry()
	svc, err := service.New(service.Options{
		Config:     cfg,
		Logger:     logger.Discard(),
		FS:         afero.NewMemMapFs(),
		Registerer: registry,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	sc := ServerConfig{
		Addr:               "127.0.0.1:0",
		CORSOrigins:        []string{"https://ui.example.com"},
		AutoRefreshEnabled: true,
		AutoRefreshSec:     15,
		Version:            "test",
	}
	for _, m := range mutate {
		m(&sc)
	}
	srv := NewServer(sc, svc, Options{Logger: logger.Discard(), Registerer: registry, Gatherer: registry})
	return &testEnv{server: srv, gitlab: fake, registry: registry}
}

// do sends one request through the full middleware stack.
func (e *testEnv) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

// parseJSONResponse parses JSON response body into the provided struct
func parseJSONResponse(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v), "body: %s", rec.Body.String())
}

// assertStatusCode checks the response status code
func assertStatusCode(t *testing.T, rec *httptest.ResponseRecorder, expected int) {
	t.Helper()
	require.Equal(t, expected, rec.Code, "body: %s", rec.Body.String())
}

// assertContentType checks the Content-Type header
func assertContentType(t *testing.T, rec *httptest.ResponseRecorder, expected string) {
	t.Helper()
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), expected),
		"Content-Type = %q, want prefix %q", rec.Header().Get("Content-Type"), expected)
}
