package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/presales-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "presales-cli",
	Short: "Lead qualification scoring for diagnostic questionnaires",
	Long:  "Runs the intake API and scoring engine: prospects answer weighted diagnostic surveys, submissions are scored into risk tiers, and each tier maps to a service package recommendation.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
