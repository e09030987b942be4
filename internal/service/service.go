package service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/filevars/webui/internal/cache"
	"github.com/filevars/webui/internal/config"
	"github.com/filevars/webui/internal/gitlab"
	"github.com/filevars/webui/internal/grouptree"
	"github.com/filevars/webui/internal/refresher"
	"github.com/filevars/webui/internal/snapshot"
	"github.com/filevars/webui/internal/variables"
	"github.com/filevars/webui/internal/version"
)

// Options carries the process-level dependencies of Services.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// FS holds the snapshot file; nil means the OS filesystem.
	FS afero.Fs
	// Registerer receives the refresher metrics; nil means the default one.
	Registerer prometheus.Registerer
	// Transport overrides the upstream HTTP transport (tests).
	Transport http.RoundTripper
}

// Services is built once at start-up and handed to every consumer.
type Services struct {
	Config    *config.Config
	GitLab    *gitlab.Client
	Cache     *cache.Cache
	Tree      *grouptree.Store
	Snapshots *snapshot.File
	Variables *variables.Service
	Refresher *refresher.Worker

	log *slog.Logger
}

// New wires the upstream client, caches and tree store. It performs no I/O
// besides adopting an existing snapshot file.
func New(opts Options) (*Services, error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	client, err := gitlab.NewClient(gitlab.Options{
		BaseURL:          cfg.GitLabBaseURL,
		Token:            cfg.GitLabToken,
		PerPage:          cfg.PerPage,
		Timeout:          cfg.RequestTimeout,
		RewriteRedirects: cfg.RewriteRedirects,
		RateLimit:        cfg.UpstreamRateLimit,
		Transport:        opts.Transport,
		Logger:           log,
	})
	if err != nil {
		return nil, err
	}

	snaps := snapshot.NewFile(opts.FS, cfg.SnapshotPath, log)
	store := grouptree.NewStore(client, grouptree.Options{
		TTL:       cfg.TreeTTL,
		Persister: snaps,
		Logger:    log,
	})
	store.LoadSnapshot()

	worker := refresher.New(store, refresher.Options{
		Interval: cfg.RefreshInterval,
		Logger:   log,
		Metrics:  refresher.NewMetrics(opts.Registerer),
	})

	return &Services{
		Config:    cfg,
		GitLab:    client,
		Cache:     cache.New(),
		Tree:      store,
		Snapshots: snaps,
		Variables: variables.NewService(client, log),
		Refresher: worker,
		log:       log.With("component", "service"),
	}, nil
}

// Start launches background work.
func (s *Services) Start(ctx context.Context) {
	s.Refresher.Start(ctx)
}

// Close stops background work and waits for it.
func (s *Services) Close() {
	s.Refresher.Stop()
	s.Tree.Wait()
}

// RefreshTree forces a tree fetch and drops flat cache entries derived
// from the old hierarchy.
func (s *Services) RefreshTree(ctx context.Context) (*grouptree.Stats, error) {
	if _, err := s.Tree.Refresh(ctx, true); err != nil {
		return nil, err
	}
	s.Cache.Purge()
	st := s.Tree.Stats()
	return &st, nil
}

// Health is the answer of the health endpoint.
type Health struct {
	OK              bool            `json:"ok"`
	User            *gitlab.User    `json:"user"`
	GitLabVersion   string          `json:"gitlab_version,omitempty"`
	HiddenSupported bool            `json:"hidden_variables_supported"`
	Tree            grouptree.Stats `json:"tree"`
}

// Health checks the token against GitLab. The version probe is best
// effort: tokens without read_api may not see /version.
func (s *Services) Health(ctx context.Context) (*Health, error) {
	user, err := s.GitLab.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	h := &Health{OK: true, User: user, Tree: s.Tree.Stats()}
	if v, err := s.GitLab.Version(ctx); err == nil {
		h.GitLabVersion = v.Version
		h.HiddenSupported = version.SupportsHiddenVariables(v.Version)
	} else {
		s.log.Debug("gitlab version unavailable", "error", err)
	}
	return h, nil
}
