package main

import (
	"github.com/spf13/cobra"

	"github.com/scrypster/recollect/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "recollect",
	Short: "Personal media memory with confidence-ranked recall",
	Long: `recollect stores photos, videos and voice notes, describes them with
vision and speech models, and answers questions like "where are my keys?"
from what it has seen, with proof and a confidence label.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default: $RECOLLECT_CONFIG)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(reanalyzeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(backupCmd)
}

// loadConfig resolves the --config flag, then RECOLLECT_CONFIG.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadConfigFile(configPath)
	}
	return config.LoadConfig()
}
