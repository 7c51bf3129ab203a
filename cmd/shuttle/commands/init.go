package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/d4ckard/shuttle/pkg/config"
	"github.com/d4ckard/shuttle/pkg/project"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init <project-name>",
	Short: "Initialize a starter configuration file",
	Long: `Initialize a starter shuttle configuration file for a project.

By default, the configuration file is created at
$XDG_CONFIG_HOME/shuttle/shuttle.yaml. Use --config to specify a custom
path.

Examples:
  # Initialize with default location
  shuttle init hello-api

  # Initialize with custom path
  shuttle init hello-api --config ./shuttle.yaml

  # Force overwrite existing config
  shuttle init hello-api --force`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	name, err := project.NewName(args[0])
	if err != nil {
		return err
	}

	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	cfg := config.GetDefaultConfig()
	cfg.Project = name.String()

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to point 'source' at your unit")
	fmt.Println("  2. Serve the unit with: shuttle run")
	fmt.Printf("  3. Or specify custom config: shuttle run --config %s\n", configPath)

	return nil
}
