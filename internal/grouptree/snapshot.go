package grouptree

import (
	"net/http"
	"time"
)

// Snapshot is one published tree with its metadata. A Snapshot is never
// modified after construction; a refresh replaces it wholesale.
type Snapshot struct {
	Tree         []*Node
	Hash         string
	LastModified time.Time
	// ExpiresAt is the zero time when the snapshot never expires.
	ExpiresAt            time.Time
	LatestGroupUpdatedAt time.Time
	StoredAt             time.Time

	idx *index
}

// NewSnapshot indexes tree and computes its hash when hash is empty.
func NewSnapshot(tree []*Node, hash string, lastModified, expiresAt, latestGroupUpdate, storedAt time.Time) *Snapshot {
	if tree == nil {
		tree = []*Node{}
	}
	if hash == "" {
		hash = Hash(tree)
	}
	return &Snapshot{
		Tree:                 tree,
		Hash:                 hash,
		LastModified:         lastModified.UTC(),
		ExpiresAt:            expiresAt.UTC(),
		LatestGroupUpdatedAt: latestGroupUpdate.UTC(),
		StoredAt:             storedAt.UTC(),
		idx:                  buildIndex(tree),
	}
}

// withExpiry returns a copy sharing the tree and index.
func (s *Snapshot) withExpiry(t time.Time) *Snapshot {
	c := *s
	c.ExpiresAt = t.UTC()
	return &c
}

// Expired reports whether now is at or past the expiry.
func (s *Snapshot) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// LastModifiedHTTP formats LastModified for the Last-Modified header.
func (s *Snapshot) LastModifiedHTTP() string {
	return s.LastModified.Format(http.TimeFormat)
}

// ExpiresUnix returns the expiry in epoch seconds, 0 meaning never.
func (s *Snapshot) ExpiresUnix() int64 {
	if s.ExpiresAt.IsZero() {
		return 0
	}
	return s.ExpiresAt.Unix()
}

// LatestGroupUpdateTS is LatestGroupUpdatedAt in fractional epoch seconds.
func (s *Snapshot) LatestGroupUpdateTS() float64 {
	return epochSeconds(s.LatestGroupUpdatedAt)
}

// NodeCount returns the number of groups in the tree.
func (s *Snapshot) NodeCount() int {
	return len(s.idx.byID)
}

// Node looks up a group by id.
func (s *Snapshot) Node(id int64) (*Node, bool) {
	n, ok := s.idx.byID[id]
	return n, ok
}

// Depth returns the depth of id, roots being 0, or -1 if unknown.
func (s *Snapshot) Depth(id int64) int {
	d, ok := s.idx.depth[id]
	if !ok {
		return -1
	}
	return d
}

func epochSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

type index struct {
	byID   map[int64]*Node
	parent map[int64]int64
	depth  map[int64]int
}

func buildIndex(roots []*Node) *index {
	idx := &index{
		byID:   make(map[int64]*Node),
		parent: make(map[int64]int64),
		depth:  make(map[int64]int),
	}
	var walk func(nodes []*Node, parent *Node, depth int)
	walk = func(nodes []*Node, parent *Node, depth int) {
		for _, n := range nodes {
			idx.byID[n.ID] = n
			idx.depth[n.ID] = depth
			if parent != nil {
				idx.parent[n.ID] = parent.ID
			}
			walk(n.Children, n, depth+1)
		}
	}
	walk(roots, nil, 0)
	return idx
}
