package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filevars/webui/internal/config"
	apperrors "github.com/filevars/webui/internal/errors"
	"github.com/filevars/webui/internal/gitlab"
	"github.com/filevars/webui/internal/grouptree"
	"github.com/filevars/webui/internal/logger"
	"github.com/filevars/webui/internal/snapshot"
)

func rootExecuteCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err = root.Execute()
	return buf.String(), err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		GitLabBaseURL:   "https://gitlab.example.com/api/v4",
		GitLabToken:     "glpat-secret",
		PerPage:         100,
		RequestTimeout:  2 * time.Second,
		TreeTTL:         10 * time.Minute,
		RefreshInterval: time.Minute,
		SnapshotPath:    filepath.Join(t.TempDir(), "group_tree.json"),
		LogLevel:        "error",
		LogFormat:       "json",
	}
}

func writeSnapshot(t *testing.T, path string) *grouptree.Snapshot {
	t.Helper()
	parent := int64(1)
	tree := grouptree.Build([]gitlab.Group{
		{ID: 1, Name: "Platform", FullPath: "platform"},
		{ID: 2, Name: "Backend", FullPath: "platform/backend", ParentID: &parent},
		{ID: 3, Name: "Marketing", FullPath: "marketing"},
	})
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := grouptree.NewSnapshot(tree, "", now, time.Time{}, now, now)
	require.NoError(t, snapshot.NewFile(nil, path, logger.Discard()).Save(snap))
	return snap
}

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantErr     bool
		wantContain string
	}{
		{
			name:        "help command",
			args:        []string{"--help"},
			wantContain: "Available Commands:",
		},
		{
			name:        "version",
			args:        []string{"version"},
			wantContain: "filevars",
		},
		{
			name:    "invalid command",
			args:    []string{"invalid"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := rootExecuteCommand(NewRootCmd(testConfig(t)), tt.args...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, output, tt.wantContain)
		})
	}
}

func TestConfigShowRedacts(t *testing.T) {
	output, err := rootExecuteCommand(NewRootCmd(testConfig(t)), "config", "show")
	require.NoError(t, err)
	assert.Contains(t, output, "gitlab_base_url: https://gitlab.example.com/api/v4")
	assert.Contains(t, output, "********")
	assert.NotContains(t, output, "glpat-secret")
}

func TestTreeFromSnapshot(t *testing.T) {
	cfg := testConfig(t)
	writeSnapshot(t, cfg.SnapshotPath)

	output, err := rootExecuteCommand(NewRootCmd(cfg), "tree")
	require.NoError(t, err)
	assert.Contains(t, output, "Platform (platform, id 1)")
	assert.Contains(t, output, "Backend (platform/backend, id 2)")
	assert.Contains(t, output, "3 groups")

	output, err = rootExecuteCommand(NewRootCmd(cfg), "tree", "--depth", "1")
	require.NoError(t, err)
	assert.Contains(t, output, "Platform (platform, id 1) +1")
	assert.NotContains(t, output, "Backend")
}

func TestTreeJSONSearch(t *testing.T) {
	cfg := testConfig(t)
	writeSnapshot(t, cfg.SnapshotPath)

	root := NewRootCmd(cfg)
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"tree", "--json", "--search", "market"})
	require.NoError(t, root.Execute())

	var nodes []*grouptree.Node
	require.NoError(t, json.Unmarshal(out.Bytes(), &nodes))
	require.Len(t, nodes, 1)
	assert.Equal(t, "marketing", nodes[0].FullPath)
}

func TestTreeWithoutSnapshot(t *testing.T) {
	_, err := rootExecuteCommand(NewRootCmd(testConfig(t)), "tree")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeNotFound))
	assert.Contains(t, err.Error(), "filevars refresh")
}

func TestRefreshWritesSnapshot(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v4/groups":
			fmt.Fprint(w, `[{"id":1,"name":"Platform","full_path":"platform","updated_at":"2024-06-01T12:00:00Z"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	cfg := testConfig(t)
	cfg.GitLabBaseURL = upstream.URL + "/api/v4"

	output, err := rootExecuteCommand(NewRootCmd(cfg), "refresh")
	require.NoError(t, err)
	assert.Contains(t, output, "Tree refreshed: 1 groups")
	assert.True(t, strings.Contains(output, cfg.SnapshotPath))

	snap, err := snapshot.NewFile(nil, cfg.SnapshotPath, logger.Discard()).Load()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.NodeCount())
}

func TestRefreshRequiresToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.GitLabToken = ""

	_, err := rootExecuteCommand(NewRootCmd(cfg), "refresh")
	require.Error(t, err)
	assert.Equal(t, apperrors.ExitCodeConfig, apperrors.ExitCodeFromError(err))
}
