package webui

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/filevars/webui/internal/errors"
	"github.com/filevars/webui/internal/gitlab"
	"github.com/filevars/webui/internal/grouptree"
	"github.com/filevars/webui/internal/variables"
)

func TestHandlePing(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/ping", "")
	assertStatusCode(t, rec, http.StatusOK)
	assertContentType(t, rec, "application/json")

	var body map[string]bool
	parseJSONResponse(t, rec, &body)
	assert.True(t, body["ok"])
}

func TestHandleHealth(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/health", "")
	assertStatusCode(t, rec, http.StatusOK)

	var body struct {
		OK              bool        `json:"ok"`
		User            gitlab.User `json:"user"`
		HiddenSupported bool        `json:"hidden_variables_supported"`
	}
	parseJSONResponse(t, rec, &body)
	assert.True(t, body.OK)
	assert.Equal(t, "root", body.User.Username)
	assert.True(t, body.HiddenSupported)
}

func TestHandleUIConfig(t *testing.T) {
	env := newTestServer(t, func(c *ServerConfig) { c.AutoRefreshSec = 0 })

	rec := env.do(t, http.MethodGet, "/api/ui-config", "")
	assertStatusCode(t, rec, http.StatusOK)

	var body map[string]any
	parseJSONResponse(t, rec, &body)
	assert.Equal(t, true, body["auto_refresh_enabled"])
	assert.Equal(t, float64(1), body["auto_refresh_sec"], "interval never drops below one second")
}

func TestGroupTreeConditional(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/groups/tree", "")
	assertStatusCode(t, rec, http.StatusOK)

	etag := rec.Header().Get("ETag")
	hash := rec.Header().Get("X-Tree-Hash")
	lastModified := rec.Header().Get("Last-Modified")
	require.NotEmpty(t, hash)
	assert.Equal(t, `"`+hash+`"`, etag)
	assert.NotEmpty(t, lastModified)

	var body treeResponse
	parseJSONResponse(t, rec, &body)
	assert.Equal(t, hash, body.Hash)
	require.Len(t, body.Tree, 2)
	assert.Equal(t, "Marketing", body.Tree[0].Name)
	assert.Equal(t, "Platform", body.Tree[1].Name)
	require.Len(t, body.Tree[1].Children, 1)

	tests := []struct {
		name    string
		headers []string
		want    int
	}{
		{"if-none-match", []string{"If-None-Match", etag}, http.StatusNotModified},
		{"weak if-none-match", []string{"If-None-Match", "W/" + etag}, http.StatusNotModified},
		{"tree hash header", []string{"X-Tree-Hash", hash}, http.StatusNotModified},
		{"if-modified-since", []string{"If-Modified-Since", lastModified}, http.StatusNotModified},
		{"stale hash", []string{"If-None-Match", `"deadbeef"`}, http.StatusOK},
		{"old date", []string{"If-Modified-Since", "Mon, 01 Jan 2001 00:00:00 GMT"}, http.StatusOK},
		{"garbage date", []string{"If-Modified-Since", "yesterday"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/groups/tree", "", tt.headers...)
			assertStatusCode(t, rec, tt.want)
			assert.Equal(t, hash, rec.Header().Get("X-Tree-Hash"))
			if tt.want == http.StatusNotModified {
				assert.Empty(t, rec.Body.String())
			}
		})
	}

	env.gitlab.mu.Lock()
	calls := env.gitlab.groupCalls
	env.gitlab.mu.Unlock()
	assert.Equal(t, 1, calls, "reads are served from the snapshot")

	assert.Equal(t, float64(4), testutil.ToFloat64(env.server.metrics.GroupReads.WithLabelValues("tree", readNotModified)))
}

func TestGroupTreeSearch(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/groups/tree?search=backend", "")
	assertStatusCode(t, rec, http.StatusOK)
	assert.Empty(t, rec.Header().Get("ETag"), "filtered trees carry no validators")

	var body filteredTreeResponse
	parseJSONResponse(t, rec, &body)
	assert.Equal(t, "backend", body.Search)
	require.Len(t, body.Tree, 1)
	assert.Equal(t, "platform", body.Tree[0].FullPath)
	require.Len(t, body.Tree[0].Children, 1)
	assert.Equal(t, "platform/backend", body.Tree[0].Children[0].FullPath)
}

func TestHandleGroupsFlat(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/groups", "")
	assertStatusCode(t, rec, http.StatusOK)

	var groups []grouptree.Summary
	parseJSONResponse(t, rec, &groups)
	paths := make([]string, 0, len(groups))
	for _, g := range groups {
		paths = append(paths, g.FullPath)
	}
	assert.ElementsMatch(t, []string{"marketing", "platform", "platform/backend"}, paths)
}

func TestGroupTreePageWalk(t *testing.T) {
	env := newTestServer(t)

	var seen []string
	cursor := ""
	for i := 0; i < 5; i++ {
		target := "/api/groups/tree/page?limit=1"
		if cursor != "" {
			target += "&cursor=" + cursor
		}
		rec := env.do(t, http.MethodGet, target, "")
		assertStatusCode(t, rec, http.StatusOK)

		var page grouptree.Page
		parseJSONResponse(t, rec, &page)
		assert.Equal(t, 2, page.Total)
		for _, item := range page.Items {
			seen = append(seen, item.Group.FullPath)
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, []string{"marketing", "platform"}, seen)

	rec := env.do(t, http.MethodGet, "/api/groups/tree/page?parent_id=1", "")
	assertStatusCode(t, rec, http.StatusOK)
	var children grouptree.Page
	parseJSONResponse(t, rec, &children)
	require.Len(t, children.Items, 1)
	assert.Equal(t, "Backend", children.Items[0].Group.Name)
	assert.False(t, children.Items[0].HasChildren)
}

func TestGroupTreePageBadInput(t *testing.T) {
	env := newTestServer(t)

	for _, target := range []string{
		"/api/groups/tree/page?cursor=%21%21",
		"/api/groups/tree/page?limit=-1",
		"/api/groups/tree/page?parent_id=abc",
	} {
		t.Run(target, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, target, "")
			assertStatusCode(t, rec, http.StatusBadRequest)
			var body apperrors.Payload
			parseJSONResponse(t, rec, &body)
			assert.Equal(t, "validation", body.Type)
		})
	}
}

func TestHandleGroupPath(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/groups/2/path", "")
	assertStatusCode(t, rec, http.StatusOK)
	var path []grouptree.Summary
	parseJSONResponse(t, rec, &path)
	require.Len(t, path, 2)
	assert.Equal(t, "platform", path[0].FullPath)
	assert.Equal(t, "platform/backend", path[1].FullPath)

	rec = env.do(t, http.MethodGet, "/api/groups/999/path", "")
	assertStatusCode(t, rec, http.StatusOK)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = env.do(t, http.MethodGet, "/api/groups/zero/path", "")
	assertStatusCode(t, rec, http.StatusBadRequest)
}

func TestFlatCachedEndpoints(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/groups/1/projects/count", "")
	assertStatusCode(t, rec, http.StatusOK)
	var count map[string]int
	parseJSONResponse(t, rec, &count)
	assert.Equal(t, 1, count["count"])

	rec = env.do(t, http.MethodGet, "/api/projects?group_id=1&page=1", "")
	assertStatusCode(t, rec, http.StatusOK)
	var page gitlab.ProjectPage
	parseJSONResponse(t, rec, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "platform/api", page.Items[0].PathWithNamespace)

	rec = env.do(t, http.MethodGet, "/api/projects/10/environments", "")
	assertStatusCode(t, rec, http.StatusOK)
	var envs []gitlab.Environment
	parseJSONResponse(t, rec, &envs)
	require.Len(t, envs, 1)
	assert.Equal(t, "production", envs[0].Name)

	rec = env.do(t, http.MethodGet, "/api/groups/1/projects/sample?limit=3", "")
	assertStatusCode(t, rec, http.StatusOK)
}

func TestListVariablesFiltersByType(t *testing.T) {
	env := newTestServer(t)

	tests := []struct {
		query string
		want  []string
		code  int
	}{
		{"", []string{"TLS_CERT"}, http.StatusOK},
		{"?type=env_var", []string{"TOKEN"}, http.StatusOK},
		{"?type=all", []string{"TLS_CERT", "TOKEN"}, http.StatusOK},
		{"?type=bogus", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run("type"+tt.query, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/projects/10/variables"+tt.query, "")
			assertStatusCode(t, rec, tt.code)
			if tt.code != http.StatusOK {
				return
			}
			var vars []gitlab.Variable
			parseJSONResponse(t, rec, &vars)
			keys := make([]string, 0, len(vars))
			for _, v := range vars {
				keys = append(keys, v.Key)
				assert.Empty(t, v.Value, "listings never carry values")
			}
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestGetVariable(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/projects/10/variables/TLS_CERT?environment_scope=*", "")
	assertStatusCode(t, rec, http.StatusOK)
	var v gitlab.Variable
	parseJSONResponse(t, rec, &v)
	assert.Equal(t, "cert", v.Value)

	rec = env.do(t, http.MethodGet, "/api/projects/10/variables/MISSING", "")
	assertStatusCode(t, rec, http.StatusNotFound)
	var body apperrors.Payload
	parseJSONResponse(t, rec, &body)
	assert.Equal(t, "upstream", body.Type)
	assert.Equal(t, http.StatusNotFound, body.Status)

	rec = env.do(t, http.MethodGet, "/api/projects/10/variables/TOKEN", "")
	assertStatusCode(t, rec, http.StatusNotFound)
}

func TestUpsertVariable(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		env := newTestServer(t)
		rec := env.do(t, http.MethodPost, "/api/projects/10/variables/upsert",
			`{"key":"NEW_FILE","value":"x"}`)
		assertStatusCode(t, rec, http.StatusOK)
		var res variables.Result
		parseJSONResponse(t, rec, &res)
		assert.Equal(t, variables.StatusCreated, res.Status)
		assert.True(t, env.gitlab.has("NEW_FILE", "*"))
	})

	t.Run("update", func(t *testing.T) {
		env := newTestServer(t)
		rec := env.do(t, http.MethodPost, "/api/projects/10/variables/upsert",
			`{"key":"TLS_CERT","value":"new-cert"}`)
		assertStatusCode(t, rec, http.StatusOK)
		var res variables.Result
		parseJSONResponse(t, rec, &res)
		assert.Equal(t, variables.StatusUpdated, res.Status)
	})

	t.Run("rename", func(t *testing.T) {
		env := newTestServer(t)
		rec := env.do(t, http.MethodPost, "/api/projects/10/variables/upsert",
			`{"key":"TLS_CERT_V2","value":"cert","original_key":"TLS_CERT"}`)
		assertStatusCode(t, rec, http.StatusOK)
		var res variables.Result
		parseJSONResponse(t, rec, &res)
		assert.Equal(t, variables.StatusRenamed, res.Status)
		require.NotNil(t, res.DeletedOld)
		assert.Equal(t, "TLS_CERT", res.DeletedOld.Key)
		assert.True(t, env.gitlab.has("TLS_CERT_V2", "*"))
		assert.False(t, env.gitlab.has("TLS_CERT", "*"))
	})

	t.Run("partial rename answers 207", func(t *testing.T) {
		env := newTestServer(t)
		env.gitlab.failDelete[varKey("TLS_CERT", "*")] = http.StatusInternalServerError
		rec := env.do(t, http.MethodPost, "/api/projects/10/variables/upsert",
			`{"key":"TLS_CERT_V2","value":"cert","original_key":"TLS_CERT"}`)
		assertStatusCode(t, rec, http.StatusMultiStatus)

		var body struct {
			Error  string                   `json:"error"`
			Type   string                   `json:"type"`
			Detail variables.PartialFailure `json:"detail"`
		}
		parseJSONResponse(t, rec, &body)
		assert.Equal(t, "partial_rename", body.Type)
		assert.NotEmpty(t, body.Error)
		require.NotNil(t, body.Detail.Created)
		assert.Equal(t, "TLS_CERT_V2", body.Detail.Created.Key)
		require.NotNil(t, body.Detail.Kept)
		assert.Equal(t, "TLS_CERT", body.Detail.Kept.Key)
		assert.True(t, env.gitlab.has("TLS_CERT", "*"))
		assert.True(t, env.gitlab.has("TLS_CERT_V2", "*"))
	})

	t.Run("bad input", func(t *testing.T) {
		env := newTestServer(t)
		for _, body := range []string{"", "{", `{"key":"has space","value":"x"}`} {
			rec := env.do(t, http.MethodPost, "/api/projects/10/variables/upsert", body)
			assertStatusCode(t, rec, http.StatusBadRequest)
		}
	})
}

func TestDeleteVariable(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodDelete, "/api/projects/10/variables/TLS_CERT", "")
	assertStatusCode(t, rec, http.StatusOK)
	assert.False(t, env.gitlab.has("TLS_CERT", "*"))

	rec = env.do(t, http.MethodDelete, "/api/projects/10/variables/TLS_CERT", "")
	assertStatusCode(t, rec, http.StatusOK)
}

func TestWriteRateLimit(t *testing.T) {
	env := newTestServer(t, func(c *ServerConfig) {
		c.WriteRateLimit = 0.001
		c.WriteRateBurst = 1
	})

	rec := env.do(t, http.MethodDelete, "/api/projects/10/variables/NOPE", "")
	assertStatusCode(t, rec, http.StatusOK)
	rec = env.do(t, http.MethodDelete, "/api/projects/10/variables/NOPE", "")
	assertStatusCode(t, rec, http.StatusTooManyRequests)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = env.do(t, http.MethodDelete, "/api/projects/10/variables/NOPE", "", "X-Forwarded-For", "10.0.0.9")
	assertStatusCode(t, rec, http.StatusOK)

	rec = env.do(t, http.MethodGet, "/api/ping", "")
	assertStatusCode(t, rec, http.StatusOK)
}

func TestCacheRefresh(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodPost, "/api/cache/refresh", "")
	assertStatusCode(t, rec, http.StatusOK)

	var body struct {
		OK   bool            `json:"ok"`
		Tree grouptree.Stats `json:"tree"`
	}
	parseJSONResponse(t, rec, &body)
	assert.True(t, body.OK)
	assert.Equal(t, 3, body.Tree.Nodes)

	rec = env.do(t, http.MethodGet, "/api/cache/refresh", "")
	assertStatusCode(t, rec, http.StatusNotFound)
}

func TestCORS(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodOptions, "/api/projects/10/variables/upsert", "",
		"Origin", "https://ui.example.com",
		"Access-Control-Request-Method", "POST")
	assertStatusCode(t, rec, http.StatusNoContent)
	assert.Equal(t, "https://ui.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Tree-Hash")

	rec = env.do(t, http.MethodGet, "/api/ping", "", "Origin", "https://evil.example.com")
	assertStatusCode(t, rec, http.StatusOK)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	wildcard := newTestServer(t, func(c *ServerConfig) { c.CORSOrigins = []string{"*"} })
	rec = wildcard.do(t, http.MethodGet, "/api/groups/tree", "", "Origin", "https://any.example.com")
	assertStatusCode(t, rec, http.StatusOK)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "ETag")
}

func TestRequestID(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/ping", "")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)

	rec = env.do(t, http.MethodGet, "/api/ping", "", "X-Request-ID", "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestStaticAndUnknownRoutes(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/", "")
	assertStatusCode(t, rec, http.StatusOK)
	assertContentType(t, rec, "text/html")

	rec = env.do(t, http.MethodGet, "/api/nope", "")
	assertStatusCode(t, rec, http.StatusNotFound)
	assertContentType(t, rec, "application/json")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.do(t, http.MethodGet, "/api/groups/tree/page", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	assertStatusCode(t, rec, http.StatusOK)
	out := rec.Body.String()
	assert.Contains(t, out, `filevars_groups_reads_total{endpoint="page",result="ok"} 1`)
	assert.Contains(t, out, `filevars_api_http_requests_total{method="GET",route="/api/groups/tree/page",status="200"} 1`)
}

func TestRecoverReportsPanic(t *testing.T) {
	env := newTestServer(t)
	h := env.server.withRecover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assertStatusCode(t, rec, http.StatusInternalServerError)
}

func TestStartStop(t *testing.T) {
	env := newTestServer(t)
	require.NoError(t, env.server.Start(context.Background()))
	defer func() { require.NoError(t, env.server.Stop()) }()

	require.NotZero(t, env.server.Port())
	resp, err := http.Get(fmt.Sprintf("%s/api/ping", env.server.URL()))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(b))
}
