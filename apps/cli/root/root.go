package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the directory admin CLI. Subcommands (migrate, devtoken, etc.) are attached here.
var rootCmd = &cobra.Command{
	Use:           "palmyra-directory",
	Short:         "Palmyra directory admin CLI",
	Long:          "Administrative utilities for the directory service (migrations, dev tokens, personal contact imports).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
