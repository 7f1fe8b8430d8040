// Package root assembles the platform-admin command tree.
package root

import (
	"github.com/spf13/cobra"

	tenantcmd "github.com/craftline/craftline-platform/apps/cli-platform-admin/cmd/tenant"
)

var rootCmd = &cobra.Command{
	Use:           "craftline-admin",
	Short:         "Operator tooling for the Craftline platform control plane",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(tenantcmd.Command())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
