package commands

import (
	"fmt"

	"workgraph/internal/config"
	"workgraph/internal/logging"
	"workgraph/internal/snapshot"
	"workgraph/internal/workspace"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose     bool
	snapshotDir string
	engineFile  string

	cfg    *config.AppConfig
	engine *config.Engine
)

var rootCmd = &cobra.Command{
	Use:   "workgraph",
	Short: "Workgraph builds a unified planning graph from GitHub and Azure DevOps",
	Long: `Workgraph merges crawled GitHub issues and Azure DevOps work items into one
hierarchy of themes, epics, user stories and tasks, reconstructs their change
history, and projects it onto product release milestones.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Init(logging.Options{Verbose: verbose}); err != nil {
			return fmt.Errorf("failed to initialise logging: %w", err)
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if snapshotDir != "" {
			cfg.SnapshotDir = snapshotDir
		}
		if engineFile != "" {
			cfg.EngineFile = engineFile
		}

		engine, err = config.LoadEngine(cfg.EngineFile)
		if err != nil {
			return err
		}

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Str("snapshot", cfg.SnapshotDir).
			Msg("Workgraph starting")
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&snapshotDir, "snapshot", "", "snapshot directory (overrides SNAPSHOT_DIR)")
	rootCmd.PersistentFlags().StringVar(&engineFile, "config", "", "engine configuration file (overrides WORKGRAPH_CONFIG)")

	rootCmd.AddCommand(newBuildCmd(), newRoadmapCmd(), newDiagnosticsCmd(), newTreeCmd(), newAgingCmd())
}

// loadWorkspace reads the snapshot directory and builds a workspace from it.
func loadWorkspace(eng *config.Engine, dir string, workers int) (*workspace.Workspace, error) {
	store := snapshot.NewStore()
	if err := store.Load(dir); err != nil {
		return nil, fmt.Errorf("failed to load snapshot from %s: %w", dir, err)
	}
	return workspace.Build(eng, store.Snapshot(), workspace.WithWorkers(workers))
}
