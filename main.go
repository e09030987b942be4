package main

import (
	"fmt"
	"os"

	"github.com/filevars/webui/internal/cli"
	"github.com/filevars/webui/internal/config"
	apperrors "github.com/filevars/webui/internal/errors"
)

func main() {
	// Load the configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, apperrors.FormatSimple(err))
		os.Exit(apperrors.ExitCodeFromError(err))
	}

	// Execute with config
	if err := cli.Execute(cfg); err != nil {
		fmt.Fprintln(os.Stderr, apperrors.FormatSimple(err))
		os.Exit(apperrors.ExitCodeFromError(err))
	}
}
