package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/filevars/webui/internal/grouptree"
)

// record is the on-disk layout of a snapshot.
type record struct {
	Tree                   []*grouptree.Node `json:"tree"`
	Hash                   string            `json:"hash,omitempty"`
	LastModified           string            `json:"last_modified,omitempty"`
	LastModifiedHTTP       string            `json:"last_modified_http,omitempty"`
	LastModifiedTS         float64           `json:"last_modified_ts,omitempty"`
	StoredAt               string            `json:"stored_at,omitempty"`
	LatestGroupUpdatedAt   string            `json:"latest_group_updated_at,omitempty"`
	LatestGroupUpdatedAtTS float64           `json:"latest_group_updated_at_ts,omitempty"`
	// Expires is epoch seconds; 0 means the snapshot never expires.
	Expires int64 `json:"expires"`
}

// File persists group tree snapshots as one JSON document. It remembers the
// modification time of the last file it read or wrote so ReloadIfNewer only
// picks up writes made by someone else.
type File struct {
	fs   afero.Fs
	path string
	log  *slog.Logger

	mu       sync.Mutex
	lastSeen time.Time
}

// NewFile returns a File at path on fsys. A nil fsys means the OS filesystem.
func NewFile(fsys afero.Fs, path string, log *slog.Logger) *File {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if log == nil {
		log = slog.Default()
	}
	return &File{fs: fsys, path: path, log: log.With("component", "snapshot", "path", path)}
}

// Path returns the snapshot location.
func (f *File) Path() string {
	return f.path
}

// Load reads the snapshot. A missing file yields nil and no error.
func (f *File) Load() (*grouptree.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := f.fs.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}
	snap, err := f.read()
	if err != nil {
		return nil, err
	}
	f.lastSeen = info.ModTime()
	return snap, nil
}

// ReloadIfNewer loads the snapshot only when the file changed since the last
// load or save.
func (f *File) ReloadIfNewer() (*grouptree.Snapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := f.fs.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("stat snapshot: %w", err)
	}
	if !info.ModTime().After(f.lastSeen) {
		return nil, false, nil
	}

	// A file that fails to decode is retried only once it changes again.
	f.lastSeen = info.ModTime()
	snap, err := f.read()
	if err != nil {
		return nil, false, err
	}
	f.log.Info("snapshot reloaded from disk", "hash", snap.Hash, "nodes", snap.NodeCount())
	return snap, true, nil
}

// Save writes the snapshot to a temporary file and renames it into place,
// creating parent directories as needed.
func (f *File) Save(snap *grouptree.Snapshot) error {
	data, err := json.Marshal(toRecord(snap))
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "" {
		if err := f.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.fs.Rename(tmp, f.path); err != nil {
		_ = f.fs.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}

	if info, err := f.fs.Stat(f.path); err == nil {
		f.lastSeen = info.ModTime()
	}
	f.log.Debug("snapshot saved", "hash", snap.Hash, "bytes", len(data))
	return nil
}

func (f *File) read() (*grouptree.Snapshot, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return fromRecord(rec), nil
}

func toRecord(s *grouptree.Snapshot) record {
	return record{
		Tree:                   s.Tree,
		Hash:                   s.Hash,
		LastModified:           s.LastModified.Format(time.RFC3339),
		LastModifiedHTTP:       s.LastModifiedHTTP(),
		LastModifiedTS:         float64(s.LastModified.Unix()),
		StoredAt:               s.StoredAt.Format(time.RFC3339Nano),
		LatestGroupUpdatedAt:   formatOptional(s.LatestGroupUpdatedAt),
		LatestGroupUpdatedAtTS: s.LatestGroupUpdateTS(),
		Expires:                s.ExpiresUnix(),
	}
}

// fromRecord tolerates files that carry only epoch fields or lack a hash.
func fromRecord(r record) *grouptree.Snapshot {
	lastModified := parseTime(r.LastModified, r.LastModifiedTS)
	storedAt := parseTime(r.StoredAt, 0)
	if storedAt.IsZero() {
		storedAt = lastModified
	}
	var expires time.Time
	if r.Expires > 0 {
		expires = time.Unix(r.Expires, 0)
	}
	latest := parseTime(r.LatestGroupUpdatedAt, r.LatestGroupUpdatedAtTS)
	return grouptree.NewSnapshot(r.Tree, r.Hash, lastModified, expires, latest, storedAt)
}

func parseTime(s string, epoch float64) time.Time {
	if s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC()
		}
	}
	if epoch > 0 {
		sec, frac := math.Modf(epoch)
		return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
	}
	return time.Time{}
}

func formatOptional(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}
