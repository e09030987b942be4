package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/filevars/webui/internal/config"
	apperrors "github.com/filevars/webui/internal/errors"
	"github.com/filevars/webui/internal/grouptree"
	"github.com/filevars/webui/internal/service"
	"github.com/filevars/webui/internal/snapshot"
)

func newTreeCommand(cfg *config.Config) *cobra.Command {
	var (
		search string
		depth  int
		fetch  bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the cached group tree",
		Example: `  # Print the snapshot written by the server or by refresh
  filevars tree

  # Only branches matching "payments", two levels deep
  filevars tree --search payments --depth 2

  # Fetch from GitLab when the snapshot is missing or expired
  filevars tree --fetch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadTree(cmd, cfg, fetch)
			if err != nil {
				return err
			}

			roots := snap.Filter(search)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(roots)
			}

			if !isTerminal(cmd.OutOrStdout()) {
				pterm.DisableStyling()
				defer pterm.EnableStyling()
			}
			if err := renderTree(cmd.OutOrStdout(), roots, depth); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s groups, hash %s, last modified %s\n",
				color.CyanString(strconv.Itoa(snap.NodeCount())), shortHash(snap.Hash), snap.LastModifiedHTTP())
			return nil
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Keep groups whose name or path contains this text, plus their ancestors")
	cmd.Flags().IntVar(&depth, "depth", 0, "Maximum depth to print (0 prints everything)")
	cmd.Flags().BoolVar(&fetch, "fetch", false, "Fetch from GitLab if there is no usable snapshot")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the tree as JSON")
	return cmd
}

func loadTree(cmd *cobra.Command, cfg *config.Config, fetch bool) (*grouptree.Snapshot, error) {
	if fetch {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		svc, err := service.New(service.Options{
			Config:     cfg,
			Logger:     newLogger(cfg),
			Registerer: prometheus.NewRegistry(),
		})
		if err != nil {
			return nil, err
		}
		defer svc.Close()
		return svc.Tree.EnsureTree(cmd.Context())
	}

	snap, err := snapshot.NewFile(nil, cfg.SnapshotPath, newLogger(cfg)).Load()
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, apperrors.NotFound(fmt.Sprintf("no snapshot at %s; run 'filevars refresh' or pass --fetch", cfg.SnapshotPath))
	}
	return snap, nil
}

func renderTree(w io.Writer, roots []*grouptree.Node, maxDepth int) error {
	root := pterm.TreeNode{Text: "groups", Children: treeNodes(roots, 1, maxDepth)}
	out, err := pterm.DefaultTree.WithRoot(root).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, out)
	return err
}

func treeNodes(nodes []*grouptree.Node, depth, maxDepth int) []pterm.TreeNode {
	out := make([]pterm.TreeNode, 0, len(nodes))
	for _, n := range nodes {
		tn := pterm.TreeNode{Text: fmt.Sprintf("%s (%s, id %d)", n.Name, n.FullPath, n.ID)}
		if maxDepth <= 0 || depth < maxDepth {
			tn.Children = treeNodes(n.Children, depth+1, maxDepth)
		} else if len(n.Children) > 0 {
			tn.Text += fmt.Sprintf(" +%d", len(n.Children))
		}
		out = append(out, tn)
	}
	return out
}
