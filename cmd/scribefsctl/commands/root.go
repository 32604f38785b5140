// Package commands implements the interactive ScribeFS client.
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

var (
	nameServerAddr string
	usernameFlag   string
	noColor        bool
)

var rootCmd = &cobra.Command{
	Use:   "scribefsctl",
	Short: "ScribeFS interactive client",
	Long: `scribefsctl connects to a ScribeFS name server and runs an
interactive session. Metadata commands go to the name server; reads,
writes, and streams follow its redirects to the owning storage server.

Type "help" inside the session for the command list.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSession,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&nameServerAddr, "nameserver", "n", "127.0.0.1:5555", "Name server address")
	rootCmd.PersistentFlags().StringVarP(&usernameFlag, "user", "u", "", "Username (prompted when omitted)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scribefsctl %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}
