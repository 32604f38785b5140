package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scribefs/scribefs/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a configuration file populated with defaults.

The file goes to $XDG_CONFIG_HOME/scribefs/config.yaml unless --config
points elsewhere. Existing files are only overwritten with --force.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := config.Save(config.DefaultConfig(), path); err != nil {
		return err
	}
	fmt.Printf("Configuration file created at: %s\n", path)
	return nil
}
