package grouptree

import (
	"encoding/json"
	"sort"
	"strings"
)

// Node is one group in the published tree. Nodes reachable from a published
// Snapshot are never modified; filtering and paging work on copies.
type Node struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	FullPath       string  `json:"full_path"`
	ParentID       *int64  `json:"parent_id"`
	ProjectsCount  int     `json:"projects_count"`
	SubgroupsCount int     `json:"subgroups_count"`
	Children       []*Node `json:"children"`
}

// Summary is a Node without its subtree.
type Summary struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	FullPath       string `json:"full_path"`
	ParentID       *int64 `json:"parent_id"`
	ProjectsCount  int    `json:"projects_count"`
	SubgroupsCount int    `json:"subgroups_count"`
}

// MarshalJSON always emits children as an array so a tree encodes the same
// way whether it was built in memory or decoded from disk.
func (n *Node) MarshalJSON() ([]byte, error) {
	type plain Node
	p := plain(*n)
	if p.Children == nil {
		p.Children = []*Node{}
	}
	return json.Marshal(p)
}

// Summary returns the node's fields without children.
func (n *Node) Summary() Summary {
	return Summary{
		ID:             n.ID,
		Name:           n.Name,
		FullPath:       n.FullPath,
		ParentID:       n.ParentID,
		ProjectsCount:  n.ProjectsCount,
		SubgroupsCount: n.SubgroupsCount,
	}
}

// matches reports whether name or full path contains the lower-cased needle.
func (n *Node) matches(needle string) bool {
	return strings.Contains(strings.ToLower(n.Name), needle) ||
		strings.Contains(strings.ToLower(n.FullPath), needle)
}

// clone deep-copies the subtree rooted at n.
func (n *Node) clone() *Node {
	c := *n
	c.Children = make([]*Node, 0, len(n.Children))
	for _, child := range n.Children {
		c.Children = append(c.Children, child.clone())
	}
	return &c
}

// prune returns a copy of n keeping only matching nodes and the ancestors
// of matching nodes, or nil when nothing in the subtree matches.
func (n *Node) prune(needle string) *Node {
	var kept []*Node
	for _, child := range n.Children {
		if c := child.prune(needle); c != nil {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 && !n.matches(needle) {
		return nil
	}
	c := *n
	c.Children = kept
	if c.Children == nil {
		c.Children = []*Node{}
	}
	return &c
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		if a.FullPath != b.FullPath {
			return a.FullPath < b.FullPath
		}
		return a.ID < b.ID
	})
}

// CountNodes returns the number of nodes in the forest.
func CountNodes(roots []*Node) int {
	n := 0
	for _, r := range roots {
		n += 1 + CountNodes(r.Children)
	}
	return n
}

// Flatten lists every node in depth-first order as summaries.
func Flatten(roots []*Node) []Summary {
	out := make([]Summary, 0, len(roots))
	var walk func([]*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			out = append(out, n.Summary())
			walk(n.Children)
		}
	}
	walk(roots)
	return out
}
