package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rpattn/incidentetl/internal/config"
	"github.com/rpattn/incidentetl/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configDir string
}

var rootCmd = &cobra.Command{
	Use:   "incidentctl",
	Short: "Clean and load incident exports",
	Long:  "incidentctl normalizes incident spreadsheet exports and loads them\ninto the incidents table.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.configDir, "config", ".", "directory containing config.yaml")
	rootCmd.AddCommand(transformCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.Version = version
}

// loadConfig reads configuration and initialises logging on stderr.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(rootFlags.configDir)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, cmd.ErrOrStderr())
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
