package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/patrickspencer/opstrack/internal/config"
	"github.com/patrickspencer/opstrack/internal/logging"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "opstrack",
	Short: "Scheduled monitoring loops for operational records",
	Long: `opstrack watches documents, bonuses, tasks and reminders with a set of
monitoring loops. Each loop run is recorded, findings are deduplicated, and
follow-up reminders and tasks are created automatically.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "opstrack.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override logging format (json, console)")

	rootCmd.AddCommand(newServeCmd(), newRunCmd(), newStatusCmd(), newWatchdogCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and initialises logging. A missing file at
// the default path falls back to built-in defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return cfg, nil
}
