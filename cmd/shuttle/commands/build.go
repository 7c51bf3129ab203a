package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/d4ckard/shuttle/pkg/builder"
	"github.com/d4ckard/shuttle/pkg/config"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Compile the unit into a loadable artifact",
	Long: `Compile the unit's source tree into a loadable artifact without
serving it. The artifact is published atomically to the artifact
directory; a failed build leaves previously published artifacts intact.

Examples:
  # Build with the default config location
  shuttle build

  # Build with a custom config file
  shuttle build --config ./shuttle.yaml`,
	RunE: runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	b := builder.New(builder.Config{
		GoBinary:    cfg.Build.GoBinary,
		ArtifactDir: cfg.Build.ArtifactDir,
		GoVersion:   cfg.Build.GoVersion,
	})

	artifact, err := b.Build(context.Background(), cfg.Source)
	if err != nil {
		return err
	}

	fmt.Printf("Built %s\n", artifact.UnitName)
	fmt.Printf("  Artifact:   %s\n", artifact.Path)
	fmt.Printf("  Generation: %s\n", artifact.Generation)
	return nil
}
