package webui

import (
	"net/http"
	"strings"
	"time"

	"github.com/filevars/webui/internal/grouptree"
)

// treeResponse is the body of a full tree read.
type treeResponse struct {
	Hash             string            `json:"hash"`
	LastModified     time.Time         `json:"last_modified"`
	LastModifiedHTTP string            `json:"last_modified_http"`
	Tree             []*grouptree.Node `json:"tree"`
}

// filteredTreeResponse is the body of a search over the tree. It is
// derived data and carries no validators.
type filteredTreeResponse struct {
	Search string            `json:"search"`
	Tree   []*grouptree.Node `json:"tree"`
}

// handleGroups returns the flat, sorted group list, optionally filtered.
func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	roots, err := s.svc.Tree.ListFiltered(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		s.metrics.observeGroupRead("list", readError)
		s.writeAppError(w, r, err)
		return
	}
	s.metrics.observeGroupRead("list", readOK)
	writeJSON(w, http.StatusOK, grouptree.Flatten(roots))
}

// handleGroupTree serves the whole tree with conditional-request support.
// If-None-Match or X-Tree-Hash is compared against the content hash,
// If-Modified-Since against the snapshot's last modification.
func (s *Server) handleGroupTree(w http.ResponseWriter, r *http.Request) {
	if search := strings.TrimSpace(r.URL.Query().Get("search")); search != "" {
		roots, err := s.svc.Tree.ListFiltered(r.Context(), search)
		if err != nil {
			s.metrics.observeGroupRead("tree", readError)
			s.writeAppError(w, r, err)
			return
		}
		s.metrics.observeGroupRead("tree", readOK)
		writeJSON(w, http.StatusOK, filteredTreeResponse{Search: search, Tree: roots})
		return
	}

	snap, err := s.svc.Tree.EnsureTree(r.Context())
	if err != nil {
		s.metrics.observeGroupRead("tree", readError)
		s.writeAppError(w, r, err)
		return
	}

	h := w.Header()
	h.Set("ETag", etag(snap.Hash))
	h.Set("Last-Modified", snap.LastModifiedHTTP())
	h.Set("X-Tree-Hash", snap.Hash)
	h.Set("Cache-Control", "no-cache")

	res := snap.Conditional(knownHash(r), ifModifiedSince(r))
	if !res.Changed {
		s.metrics.observeGroupRead("tree", readNotModified)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	s.metrics.observeGroupRead("tree", readOK)
	writeJSON(w, http.StatusOK, treeResponse{
		Hash:             res.Hash,
		LastModified:     res.LastModified,
		LastModifiedHTTP: snap.LastModifiedHTTP(),
		Tree:             res.Tree,
	})
}

func (s *Server) handleGroupTreePage(w http.ResponseWriter, r *http.Request) {
	parentID, err := queryID(r, "parent_id")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	page, err := s.svc.Tree.ListPage(r.Context(), parentID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		s.metrics.observeGroupRead("page", readError)
		s.writeAppError(w, r, err)
		return
	}
	s.metrics.observeGroupRead("page", readOK)
	w.Header().Set("X-Tree-Hash", page.Hash)
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGroupPath(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	path, err := s.svc.Tree.GetPath(r.Context(), id)
	if err != nil {
		s.metrics.observeGroupRead("path", readError)
		s.writeAppError(w, r, err)
		return
	}
	s.metrics.observeGroupRead("path", readOK)
	writeJSON(w, http.StatusOK, path)
}

func (s *Server) handleGroupProjectCount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	n, err := s.svc.CountGroupProjects(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"group_id": id, "count": n})
}

func (s *Server) handleGroupProjectSample(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	projects, err := s.svc.SampleProjects(r.Context(), id, limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func etag(hash string) string {
	return `"` + hash + `"`
}

// knownHash extracts the caller's hash from If-None-Match, falling back
// to X-Tree-Hash. Weak validators compare equal to strong ones.
func knownHash(r *http.Request) string {
	if inm := strings.TrimSpace(r.Header.Get("If-None-Match")); inm != "" {
		first, _, _ := strings.Cut(inm, ",")
		first = strings.TrimPrefix(strings.TrimSpace(first), "W/")
		return strings.Trim(first, `"`)
	}
	return strings.TrimSpace(r.Header.Get("X-Tree-Hash"))
}

// ifModifiedSince parses If-Modified-Since; an unparsable date is ignored.
func ifModifiedSince(r *http.Request) time.Time {
	raw := r.Header.Get("If-Modified-Since")
	if raw == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
