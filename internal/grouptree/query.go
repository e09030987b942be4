package grouptree

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/filevars/webui/internal/errors"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// PageItem is one child in a page. Subtrees are never inlined.
type PageItem struct {
	Group         Summary `json:"group"`
	ChildrenCount int     `json:"childrenCount"`
	HasChildren   bool    `json:"hasChildren"`
}

// Page is a window over the sorted children of one parent.
type Page struct {
	Items        []PageItem `json:"items"`
	Total        int        `json:"total"`
	HasMore      bool       `json:"hasMore"`
	NextCursor   string     `json:"nextCursor,omitempty"`
	Hash         string     `json:"hash"`
	LastModified time.Time  `json:"lastModified"`
}

// GetResult is the answer of a conditional read. Tree is nil when Changed
// is false.
type GetResult struct {
	Changed      bool      `json:"changed"`
	Hash         string    `json:"hash,omitempty"`
	LastModified time.Time `json:"lastModified,omitempty"`
	Tree         []*Node   `json:"tree,omitempty"`
}

// ListPage returns up to limit children of parentID starting at cursor. A
// nil parentID pages over the roots; an unknown parent yields an empty page.
func (s *Store) ListPage(ctx context.Context, parentID *int64, cursor string, limit int) (*Page, error) {
	offset, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	snap, err := s.EnsureTree(ctx)
	if err != nil {
		return nil, err
	}
	return snap.ListPage(parentID, offset, limit), nil
}

// ListPage pages over the children of parentID in this snapshot.
func (s *Snapshot) ListPage(parentID *int64, offset, limit int) *Page {
	limit = ClampLimit(limit)

	var children []*Node
	if parentID == nil {
		children = s.Tree
	} else if parent, ok := s.idx.byID[*parentID]; ok {
		children = parent.Children
	}

	page := &Page{
		Items:        []PageItem{},
		Total:        len(children),
		Hash:         s.Hash,
		LastModified: s.LastModified,
	}
	if offset >= len(children) {
		return page
	}
	end := offset + limit
	if end > len(children) {
		end = len(children)
	}
	for _, n := range children[offset:end] {
		page.Items = append(page.Items, PageItem{
			Group:         n.Summary(),
			ChildrenCount: len(n.Children),
			HasChildren:   len(n.Children) > 0,
		})
	}
	if end < len(children) {
		page.HasMore = true
		page.NextCursor = EncodeCursor(end)
	}
	return page
}

// GetPath returns the ancestry of id from its root down to id itself, or an
// empty slice when id is not in the tree.
func (s *Store) GetPath(ctx context.Context, id int64) ([]Summary, error) {
	snap, err := s.EnsureTree(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Path(id), nil
}

// Path walks the parent index from id up to its root.
func (s *Snapshot) Path(id int64) []Summary {
	path := []Summary{}
	n, ok := s.idx.byID[id]
	if !ok {
		return path
	}
	for {
		path = append(path, n.Summary())
		p, ok := s.idx.parent[n.ID]
		if !ok {
			break
		}
		n = s.idx.byID[p]
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// ListFiltered returns a deep copy of the tree keeping nodes whose name or
// full path contains search (case-insensitively) plus their ancestors.
func (s *Store) ListFiltered(ctx context.Context, search string) ([]*Node, error) {
	snap, err := s.EnsureTree(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Filter(search), nil
}

// Filter is ListFiltered on this snapshot.
func (s *Snapshot) Filter(search string) []*Node {
	needle := strings.ToLower(strings.TrimSpace(search))
	out := []*Node{}
	for _, root := range s.Tree {
		if needle == "" {
			out = append(out, root.clone())
			continue
		}
		if n := root.prune(needle); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Get is the conditional read. It reports no change when knownHash equals
// the current hash or when since is at or after LastModified, compared at
// second precision as HTTP dates are.
func (s *Store) Get(ctx context.Context, knownHash string, since time.Time) (*GetResult, error) {
	snap, err := s.EnsureTree(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Conditional(knownHash, since), nil
}

// Conditional is Get on this snapshot.
func (s *Snapshot) Conditional(knownHash string, since time.Time) *GetResult {
	if knownHash != "" && knownHash == s.Hash {
		return &GetResult{Changed: false}
	}
	if !since.IsZero() && !since.Truncate(time.Second).Before(s.LastModified.Truncate(time.Second)) {
		return &GetResult{Changed: false}
	}
	return &GetResult{
		Changed:      true,
		Hash:         s.Hash,
		LastModified: s.LastModified,
		Tree:         s.Tree,
	}
}

// ClampLimit bounds a page size to [1, MaxPageLimit]; zero or less selects
// DefaultPageLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageLimit
	case limit > MaxPageLimit:
		return MaxPageLimit
	default:
		return limit
	}
}

// EncodeCursor turns an offset into an opaque cursor.
func EncodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte("o:" + strconv.Itoa(offset)))
}

// DecodeCursor parses a cursor produced by EncodeCursor. The empty cursor is
// offset zero.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, apperrors.Validationf("invalid cursor %q", cursor)
	}
	rest, ok := strings.CutPrefix(string(raw), "o:")
	if !ok {
		return 0, apperrors.Validationf("invalid cursor %q", cursor)
	}
	offset, err := strconv.Atoi(rest)
	if err != nil || offset < 0 {
		return 0, apperrors.Validationf("invalid cursor %q", cursor)
	}
	return offset, nil
}
