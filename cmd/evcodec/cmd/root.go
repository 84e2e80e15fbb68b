package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/faceless2/evcodec/internal/cli/config"
	"github.com/faceless2/evcodec/internal/cli/logger"
)

var (
	// Version is set at build time.
	Version = "dev"
	// Commit is set at build time.
	Commit = "none"

	debug      bool
	configPath string

	cfgLoader *config.Loader
	loadedCfg *config.Config
	runID     string
)

// rootCmd is the base command when evcodec is invoked with no subcommand.
var rootCmd = &cobra.Command{
	Use:   "evcodec",
	Short: "Streaming multi-format document codec (JSON/CBOR/Msgpack)",
	Long: `evcodec converts between textual JSON, CBOR (RFC 8949) and Msgpack
through a shared event stream, and can dump or reformat a document along
the way.

  evcodec convert --from json --to cbor < in.json > out.cbor
  evcodec inspect --from cbor < in.cbor
  evcodec fmt --sorted --indent 2 < in.json`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(debug)
		runID = uuid.NewString()
		logger.WithRunID(runID).Debug().
			Str("version", Version).
			Str("command", cmd.Name()).
			Msg("evcodec starting")

		cfgLoader = config.NewLoader()
		cfg, err := cfgLoader.Load(configPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load config")
		}
		loadedCfg = cfg
		if path := cfgLoader.ConfigFileUsed(); path != "" {
			logger.WithRunID(runID).Debug().Str("config_file", path).Msg("loaded config")
		}
	},
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to .evcodec.yaml config file")
	rootCmd.SetVersionTemplate(fmt.Sprintf("evcodec %s (commit: %s)\n", Version, Commit))
}

// currentConfig returns the config loaded by PersistentPreRun, or defaults
// if Execute() was never invoked (e.g. unit tests constructing subcommands
// directly).
func currentConfig() *config.Config {
	if loadedCfg == nil {
		cfg := config.DefaultConfig()
		return &cfg
	}
	return loadedCfg
}

// currentRunID returns the correlation id stamped on this invocation.
func currentRunID() string {
	if runID == "" {
		runID = uuid.NewString()
	}
	return runID
}
