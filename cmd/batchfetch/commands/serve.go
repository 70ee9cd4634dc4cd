package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/batch-fetcher/pkg/fetch"
	"github.com/Sternrassler/batch-fetcher/pkg/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the batch API, health probe and Prometheus metrics.

Examples:
  batchfetch serve --addr :9090
  curl -XPOST localhost:9090/batches -d '{"tasks":[{"id":"a","url":"https://example.com/a.png"}],"wait":true}'`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slots, closeSlots, err := cfg.OpenSlots(ctx)
	if err != nil {
		return err
	}
	defer closeSlots()

	sched, err := fetch.NewScheduler(cfg.SchedulerConfig(slots))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := sched.Close(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Scheduler shutdown error")
		}
	}()

	log.Info().
		Str("config", configSource()).
		Str("backend", cfg.Cache.Backend).
		Str("slot", cfg.Cache.Slot).
		Str("policy", string(cfg.Cache.Policy)).
		Msg("Configuration loaded")

	srv := server.New(cfg.Server, sched, cfg.BatchConfig(), ctx)
	return srv.Start(ctx, cfg.ShutdownTimeout)
}

func configSource() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "defaults+search path"
}
