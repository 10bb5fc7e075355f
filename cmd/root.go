// Package cmd implements the filmeto-engine command line interface.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"filmeto.ai/engine/internal/config"
	"filmeto.ai/engine/internal/logging"
	"filmeto.ai/engine/internal/service"
)

// NewRootCommand builds the CLI entry point.
func NewRootCommand(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "filmeto-engine",
		Short: "Filmeto Engine - plugin task-execution engine",
		Long: `Filmeto Engine discovers out-of-process generation plugins, supervises
their worker processes, and executes generation tasks against them while
streaming progress back to the caller.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().String("config", "", "path to engine config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "log in JSON format")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newPluginsCommand())
	rootCmd.AddCommand(newToolsCommand())
	rootCmd.AddCommand(newCacheCommand())

	return rootCmd
}

// setup loads configuration, builds the logger, and wires the API stack.
// The returned context carries the logger.
func setup(cmd *cobra.Command) (context.Context, *service.API, config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, config.Config{}, err
	}

	level := cfg.Log.Level
	if flagLevel, _ := cmd.Flags().GetString("log-level"); flagLevel != "" {
		level = flagLevel
	}
	logJSON, _ := cmd.Flags().GetBool("log-json")
	logger := logging.New(&logging.Config{Level: level, JSON: logJSON || cfg.Log.JSON})
	ctx := logging.WithContext(cmd.Context(), logger)

	api, err := service.New(ctx, cfg)
	if err != nil {
		return nil, nil, config.Config{}, fmt.Errorf("initialize engine: %w", err)
	}
	return ctx, api, cfg, nil
}
