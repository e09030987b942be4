package grouptree

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/filevars/webui/internal/gitlab"
)

// Build assembles the group forest from a flat upstream listing. A group
// whose parent is not in the listing becomes a root, and so does a group
// that closes a parent cycle. Every level is sorted by case-insensitive
// name, then full path, then id. Duplicate ids keep the first occurrence.
func Build(groups []gitlab.Group) []*Node {
	nodes := make(map[int64]*Node, len(groups))
	ids := make([]int64, 0, len(groups))
	for _, g := range groups {
		if _, dup := nodes[g.ID]; dup {
			continue
		}
		var parent *int64
		if g.ParentID != nil {
			p := *g.ParentID
			parent = &p
		}
		nodes[g.ID] = &Node{
			ID:            g.ID,
			Name:          g.DisplayName(),
			FullPath:      g.FullPath,
			ParentID:      parent,
			ProjectsCount: g.ProjectsCount,
			Children:      []*Node{},
		}
		ids = append(ids, g.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parentOf := make(map[int64]int64, len(nodes))
	for _, id := range ids {
		if p := nodes[id].ParentID; p != nil && *p != id {
			if _, ok := nodes[*p]; ok {
				parentOf[id] = *p
			}
		}
	}
	breakCycles(ids, parentOf)

	var roots []*Node
	for _, id := range ids {
		n := nodes[id]
		if p, ok := parentOf[id]; ok {
			parent := nodes[p]
			parent.Children = append(parent.Children, n)
			continue
		}
		roots = append(roots, n)
	}
	if roots == nil {
		roots = []*Node{}
	}
	finish(roots)
	return roots
}

// breakCycles drops the parent link of the first node each walk revisits.
func breakCycles(ids []int64, parentOf map[int64]int64) {
	for _, start := range ids {
		seen := map[int64]bool{start: true}
		cur := start
		for {
			p, ok := parentOf[cur]
			if !ok {
				break
			}
			if seen[p] {
				delete(parentOf, p)
				break
			}
			seen[p] = true
			cur = p
		}
	}
}

func finish(nodes []*Node) {
	sortNodes(nodes)
	for _, n := range nodes {
		n.SubgroupsCount = len(n.Children)
		finish(n.Children)
	}
}

// Hash is the hex SHA-256 of the tree's JSON encoding. Field order is fixed
// by the struct definition, so equal trees always hash equally.
func Hash(roots []*Node) string {
	if roots == nil {
		roots = []*Node{}
	}
	data, err := json.Marshal(roots)
	if err != nil {
		// Node holds only plain values; encoding cannot fail.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LatestChange returns the newest updated_at (or created_at) in groups.
func LatestChange(groups []gitlab.Group) time.Time {
	var latest time.Time
	for _, g := range groups {
		if t := g.ChangedAt(); t.After(latest) {
			latest = t
		}
	}
	return latest
}
