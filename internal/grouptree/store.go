package grouptree

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/filevars/webui/internal/gitlab"
)

// probeEpsilon absorbs sub-millisecond noise between the probe timestamp and
// the one recorded at fetch time.
const probeEpsilon = time.Millisecond

// Fetcher is the upstream the store reads groups from.
type Fetcher interface {
	ListGroups(ctx context.Context, search string) ([]gitlab.Group, error)
	LatestGroupUpdate(ctx context.Context) (time.Time, error)
}

// Persister keeps a copy of the published snapshot outside the process.
type Persister interface {
	Load() (*Snapshot, error)
	Save(*Snapshot) error
	ReloadIfNewer() (*Snapshot, bool, error)
}

// Options configures a Store.
type Options struct {
	// TTL is how long a snapshot stays fresh; zero or less means forever.
	TTL       time.Duration
	Persister Persister
	Logger    *slog.Logger
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Stats describes the store for health and CLI output.
type Stats struct {
	Nodes        int       `json:"nodes"`
	Hash         string    `json:"hash"`
	LastModified time.Time `json:"last_modified"`
	ExpiresAt    time.Time `json:"expires_at"`
	Fetches      int64     `json:"fetches"`
	Loaded       bool      `json:"loaded"`
}

// Store owns the group tree. Readers load the current snapshot pointer
// without locking; publishing swaps it under mu. At most one upstream fetch
// runs at a time.
type Store struct {
	fetcher   Fetcher
	persister Persister
	ttl       time.Duration
	log       *slog.Logger
	now       func() time.Time

	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
	flight  singleflight.Group

	background atomic.Bool
	bgWG       sync.WaitGroup
	fetches    atomic.Int64
}

// NewStore creates an empty store. Call LoadSnapshot to start warm.
func NewStore(fetcher Fetcher, opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		fetcher:   fetcher,
		persister: opts.Persister,
		ttl:       opts.TTL,
		log:       log.With("component", "grouptree"),
		now:       now,
	}
}

// Current returns the published snapshot, or nil before the first one.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// LoadSnapshot adopts the persisted snapshot if there is a newer one on
// disk. It never touches the network and reports whether it adopted one.
func (s *Store) LoadSnapshot() bool {
	if s.persister == nil {
		return false
	}
	snap, ok, err := s.persister.ReloadIfNewer()
	if err != nil {
		s.log.Warn("snapshot reload failed", "error", err)
		return false
	}
	if !ok || snap == nil {
		return false
	}

	snap = snap.withExpiry(s.expiryFrom(snap.StoredAt))
	s.mu.Lock()
	s.current.Store(snap)
	s.mu.Unlock()
	s.log.Debug("snapshot adopted from disk", "hash", snap.Hash, "nodes", snap.NodeCount())
	return true
}

// EnsureTree returns the current snapshot. With no snapshot it fetches and
// blocks; with an expired one it schedules a background refresh and returns
// the stale snapshot right away.
func (s *Store) EnsureTree(ctx context.Context) (*Snapshot, error) {
	s.LoadSnapshot()

	snap := s.current.Load()
	if snap == nil {
		return s.fetchAndPublish(ctx)
	}
	if snap.Expired(s.now()) {
		s.refreshInBackground()
	}
	return snap, nil
}

// Refresh fetches a new tree when there is none, when force is set, or when
// the snapshot expired. Otherwise it probes the newest group change upstream
// and fetches only if that is newer than what the snapshot saw. It reports
// whether a fetch happened. On error the previous snapshot stays published.
func (s *Store) Refresh(ctx context.Context, force bool) (bool, error) {
	s.LoadSnapshot()

	snap := s.current.Load()
	if snap == nil || force || snap.Expired(s.now()) {
		if _, err := s.fetchAndPublish(ctx); err != nil {
			return false, err
		}
		return true, nil
	}

	latest, err := s.fetcher.LatestGroupUpdate(ctx)
	if err != nil {
		return false, err
	}
	if latest.IsZero() || !latest.After(snap.LatestGroupUpdatedAt.Add(probeEpsilon)) {
		s.log.Debug("upstream unchanged", "probe", latest, "recorded", snap.LatestGroupUpdatedAt)
		return false, nil
	}

	s.log.Info("upstream changed since last fetch", "probe", latest, "recorded", snap.LatestGroupUpdatedAt)
	if _, err := s.fetchAndPublish(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Wait blocks until background refreshes and fetches started so far have
// finished, including fetches whose callers gave up.
func (s *Store) Wait() {
	s.bgWG.Wait()
}

// Stats returns a summary of the published snapshot.
func (s *Store) Stats() Stats {
	st := Stats{Fetches: s.fetches.Load()}
	if snap := s.current.Load(); snap != nil {
		st.Loaded = true
		st.Nodes = snap.NodeCount()
		st.Hash = snap.Hash
		st.LastModified = snap.LastModified
		st.ExpiresAt = snap.ExpiresAt
	}
	return st
}

func (s *Store) refreshInBackground() {
	if !s.background.CompareAndSwap(false, true) {
		return
	}
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		defer s.background.Store(false)
		if _, err := s.fetchAndPublish(context.Background()); err != nil {
			s.log.Warn("background refresh failed, serving stale tree", "error", err)
		}
	}()
}

// fetchAndPublish runs at most once concurrently; later callers share the
// running fetch. The fetch is detached from the caller's cancellation so one
// impatient reader cannot fail it for everyone else.
func (s *Store) fetchAndPublish(ctx context.Context) (*Snapshot, error) {
	detached := context.WithoutCancel(ctx)
	s.bgWG.Add(1)
	ch := s.flight.DoChan("fetch", func() (any, error) {
		return s.fetch(detached)
	})
	select {
	case res := <-ch:
		s.bgWG.Done()
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		// Wait still covers the fetch after this caller leaves.
		go func() {
			<-ch
			s.bgWG.Done()
		}()
		return nil, ctx.Err()
	}
}

func (s *Store) fetch(ctx context.Context) (*Snapshot, error) {
	start := s.now()
	s.fetches.Add(1)
	groups, err := s.fetcher.ListGroups(ctx, "")
	if err != nil {
		return nil, err
	}

	tree := Build(groups)
	snap := s.publish(tree, LatestChange(groups))
	s.log.Info("group tree fetched",
		"groups", len(groups),
		"hash", snap.Hash,
		"duration_ms", s.now().Sub(start).Milliseconds(),
	)

	if s.persister != nil {
		if err := s.persister.Save(snap); err != nil {
			s.log.Warn("snapshot save failed", "error", err)
		}
	}
	return snap, nil
}

// publish swaps in a new snapshot. When the content hash did not change the
// previous LastModified is kept so conditional readers still see "not
// modified".
func (s *Store) publish(tree []*Node, latest time.Time) *Snapshot {
	now := s.now()
	hash := Hash(tree)

	s.mu.Lock()
	defer s.mu.Unlock()

	lastModified := now
	if prev := s.current.Load(); prev != nil && prev.Hash == hash {
		lastModified = prev.LastModified
	}
	snap := NewSnapshot(tree, hash, lastModified, s.expiryFrom(now), latest, now)
	s.current.Store(snap)
	return snap
}

func (s *Store) expiryFrom(t time.Time) time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	if t.IsZero() {
		t = s.now()
	}
	return t.Add(s.ttl)
}
