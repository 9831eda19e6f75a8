package main

import (
	"fmt"
	"os"

	"agent-wallet-bridge/config"
	"agent-wallet-bridge/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "bridge",
	Short:         "Custodial wallet bridge for the agent betting platform",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default ./config.yaml)")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bridge: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads config and builds the process logger.
func bootstrap() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(cfg.Log.Level, cfg.Log.Format), nil
}
