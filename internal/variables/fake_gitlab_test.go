package variables

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/filevars/webui/internal/gitlab"
	"github.com/filevars/webui/internal/logger"
)

type varID struct{ key, env string }

// fakeGitLab is an in-memory variables API for one project.
type fakeGitLab struct {
	mu     sync.Mutex
	vars   map[varID]gitlab.Variable
	calls  []string
	failOn map[string]int
}

func newFakeGitLab(vars ...gitlab.Variable) *fakeGitLab {
	f := &fakeGitLab{vars: map[varID]gitlab.Variable{}, failOn: map[string]int{}}
	for _, v := range vars {
		f.vars[varID{v.Key, v.EnvironmentScope}] = v
	}
	return f
}

func (f *fakeGitLab) fail(method, key string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[method+" "+key] = status
}

func (f *fakeGitLab) all() []gitlab.Variable {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]gitlab.Variable, 0, len(f.vars))
	for _, v := range f.vars {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (f *fakeGitLab) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rest := strings.TrimPrefix(r.URL.Path, "/api/v4/")
	parts := strings.Split(rest, "/")
	if len(parts) < 3 || parts[2] != "variables" {
		http.NotFound(w, r)
		return
	}
	key := ""
	if len(parts) > 3 {
		key = parts[3]
	}
	env := r.URL.Query().Get("filter[environment_scope]")
	f.calls = append(f.calls, r.Method+" "+key)

	if status, ok := f.failOn[r.Method+" "+key]; ok {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"message":"forced %d"}`, status)
		return
	}

	switch {
	case r.Method == http.MethodGet && key == "":
		list := make([]gitlab.Variable, 0, len(f.vars))
		for _, v := range f.vars {
			list = append(list, v)
		}
		_ = json.NewEncoder(w).Encode(list)

	case r.Method == http.MethodGet:
		v, ok := f.vars[varID{key, env}]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"404 Variable Not Found"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(v)

	case r.Method == http.MethodPost:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		v := variableFrom(body)
		if _, exists := f.vars[varID{v.Key, v.EnvironmentScope}]; exists {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"message":{"key":["has already been taken"]}}`)
			return
		}
		f.vars[varID{v.Key, v.EnvironmentScope}] = v
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(v)

	case r.Method == http.MethodPut:
		id := varID{key, env}
		if _, ok := f.vars[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["masked_and_hidden"]; ok {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"message":"masked_and_hidden cannot be updated"}`)
			return
		}
		body["key"] = key
		v := variableFrom(body)
		v.Hidden = f.vars[id].Hidden
		f.vars[id] = v
		_ = json.NewEncoder(w).Encode(v)

	case r.Method == http.MethodDelete:
		id := varID{key, env}
		if _, ok := f.vars[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.vars, id)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func variableFrom(body map[string]any) gitlab.Variable {
	str := func(k string) string { s, _ := body[k].(string); return s }
	flag := func(k string) bool { b, _ := body[k].(bool); return b }
	return gitlab.Variable{
		Key:              str("key"),
		Value:            str("value"),
		VariableType:     str("variable_type"),
		EnvironmentScope: str("environment_scope"),
		Protected:        flag("protected"),
		Masked:           flag("masked"),
		Raw:              flag("raw"),
		Hidden:           flag("masked_and_hidden"),
	}
}

func newTestService(t *testing.T, f *fakeGitLab) *Service {
	t.Helper()
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	client, err := gitlab.NewClient(gitlab.Options{
		BaseURL: server.URL + "/api/v4",
		Token:   "glpat-test",
		Timeout: 2 * time.Second,
		Logger:  logger.Discard(),
	})
	require.NoError(t, err)
	return NewService(client, logger.Discard())
}
