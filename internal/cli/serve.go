package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/filevars/webui/internal/config"
	"github.com/filevars/webui/internal/sentry"
	"github.com/filevars/webui/internal/service"
	"github.com/filevars/webui/internal/version"
	"github.com/filevars/webui/internal/webui"
)

func newServeCommand(cfg *config.Config) *cobra.Command {
	var (
		addr string
		warm bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and the web UI",
		Example: `  # Listen on the configured HTTP_ADDR
  filevars serve

  # Listen elsewhere and build the tree before accepting requests
  filevars serve --addr 127.0.0.1:9000 --warm`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd, cfg, warm)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	cmd.Flags().BoolVar(&warm, "warm", false, "Fetch the group tree before listening when no snapshot exists")
	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config, warm bool) error {
	log := newLogger(cfg)

	if err := sentry.Initialize(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     version.Version,
		BaseURL:     cfg.GitLabBaseURL,
	}); err != nil {
		log.Warn("sentry disabled", "error", err)
	}
	defer sentry.Flush(2 * time.Second)

	svc, err := service.New(service.Options{Config: cfg, Logger: log})
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if warm {
		if _, err := svc.Tree.EnsureTree(ctx); err != nil {
			return fmt.Errorf("warming group tree: %w", err)
		}
	}
	svc.Start(ctx)

	server := webui.NewServer(webui.ConfigFrom(cfg), svc, webui.Options{Logger: log})
	if err := server.Start(ctx); err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintf(cmd.ErrOrStderr(), "%s filevars %s serving %s for %s\n",
		green("✓"), version.Version, cyan(server.URL()), cfg.GitLabBaseURL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	if err := shutdown(server, svc, cancel); err != nil {
		log.Error("server shutdown", "error", err)
		return err
	}
	return nil
}

// shutdown stops accepting requests, lets the refresher finish its current
// tick and any running fetch, and only then cancels the serve context.
func shutdown(server interface{ Stop() error }, svc interface{ Close() }, cancel context.CancelFunc) error {
	defer cancel()
	err := server.Stop()
	svc.Close()
	return err
}
