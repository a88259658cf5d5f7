// Package cmd holds the CLI entry points.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/example/plugwarden/internal/config"
	"github.com/example/plugwarden/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "plugwarden",
	Short: "Schedule-gated smart plug enforcement",
	Long: `plugwarden meters screen time through Tasmota smart plugs: users book
half-hour slots in a weekly calendar and spend a daily minute budget;
the service switches plugs off outside booked slots or when the budget
runs out, and reports through a Telegram group.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		level := slog.LevelInfo
		if parsed, ok := logging.ParseLevel(cfg.LogLevel); ok {
			level = parsed
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (environment variables are used by default)")
}
