package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/filevars/webui/internal/config"
	"github.com/filevars/webui/internal/service"
)

func newRefreshCommand(cfg *config.Config) *cobra.Command {
	var (
		ifStale bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the group tree snapshot from GitLab",
		Long: `Fetch every group visible to the token, rebuild the tree and write the
snapshot file so the next server start is warm.

With --if-stale the latest group change is probed first and the full
fetch is skipped when nothing changed since the snapshot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}

			svc, err := service.New(service.Options{
				Config:     cfg,
				Logger:     newLogger(cfg),
				Registerer: prometheus.NewRegistry(),
			})
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			p := newProgress(cmd.ErrOrStderr(), "Fetching groups from "+cfg.GitLabBaseURL)
			p.Start()

			updated := true
			if ifStale {
				updated, err = svc.Tree.Refresh(ctx, false)
			} else {
				_, err = svc.RefreshTree(ctx)
			}
			if err != nil {
				p.Fail("Refresh failed")
				return err
			}

			st := svc.Tree.Stats()
			if !updated {
				p.Success(fmt.Sprintf("Tree is up to date (%d groups, hash %s)", st.Nodes, shortHash(st.Hash)))
				return nil
			}
			p.Success(fmt.Sprintf("Tree refreshed: %d groups, hash %s, saved to %s",
				st.Nodes, shortHash(st.Hash), svc.Snapshots.Path()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&ifStale, "if-stale", false, "Skip the fetch when GitLab reports no group changes")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall time budget")
	return cmd
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
