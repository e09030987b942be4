package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/filevars/webui/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.New(color.Bold).Sprint("filevars"), version.GetVersion())
			fmt.Fprintf(cmd.OutOrStdout(), "hidden variables need GitLab >= %s\n", version.HiddenVariablesSince)
		},
	}
}
