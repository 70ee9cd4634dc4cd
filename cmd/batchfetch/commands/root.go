// Package commands implements the batchfetch CLI.
package commands

import (
	"fmt"

	"github.com/Sternrassler/batch-fetcher/pkg/config"
	"github.com/Sternrassler/batch-fetcher/pkg/logging"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"

	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "batchfetch",
	Short: "Cache-aware batch downloader",
	Long: `batchfetch downloads batches of resources under one global concurrency cap,
serving repeats from a persisted slot store or a download directory.

Every configuration key can be overridden with BATCHFETCH_<SECTION>_<KEY>,
for example BATCHFETCH_FETCH_MAX_PARALLEL=8.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "batchfetch %s (commit: %s)\n", Version, Commit)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for tests.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// PrintErr prints a formatted line to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/batch-fetcher/batchfetch.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads configuration and installs the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return nil, err
		}
		cfg.Logging.Level = level
	}
	cfg.Logging.Output = cmd.ErrOrStderr()
	logging.Setup(cfg.Logging)
	return cfg, nil
}
