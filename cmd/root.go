package cmd

import (
	"os"

	"marshmallow-backend/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "marshmallow",
	Short: "Marshmallow couples app backend",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		loaded = cfg
		setupLogger(cfg.Log)
		return nil
	},
	SilenceUsage: true,
}

// loaded is set by the root PersistentPreRunE before any subcommand runs
var loaded *config.Config

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, live subscriptions and the notification dispatcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		return Run(loaded)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedPresetsCmd)
	rootCmd.AddCommand(cleanupCoupleCmd)
}

// Execute runs the CLI. Without a subcommand it serves.
func Execute() {
	rootCmd.RunE = serveCmd.RunE
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
