// Package commands implements the CLI for the scribefs storage server.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "scribefs-storage",
	Short: "ScribeFS storage server",
	Long: `The scribefs storage server owns file contents for a ScribeFS
deployment. At startup it registers with the name server, advertising
its address and the files already on disk; clients are redirected here
for reads, writes, and streams.

Use "scribefs-storage [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to config file (default: $XDG_CONFIG_HOME/scribefs/config.yaml)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scribefs-storage %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}
