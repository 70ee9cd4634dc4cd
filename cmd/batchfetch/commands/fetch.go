package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/Sternrassler/batch-fetcher/pkg/fetch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	fetchURLs   []string
	fetchJSON   bool
	fetchStrict bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [manifest.yaml...]",
	Short: "Download one or more batches",
	Long: `Download every manifest as its own batch. All batches share the global
concurrency cap; tasks are served from cache when possible.

Examples:
  # Run two manifests concurrently
  batchfetch fetch icons.yaml portraits.yaml

  # Ad-hoc batch
  batchfetch fetch --url logo=https://example.com/logo.png`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringArrayVar(&fetchURLs, "url", nil, "task as id=url (repeatable)")
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "print final batch states as JSON")
	fetchCmd.Flags().BoolVar(&fetchStrict, "strict", false, "exit non-zero when any task fails")
}

type fetchResult struct {
	Manifest string           `json:"manifest"`
	State    fetch.BatchState `json:"state"`
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var manifests []*Manifest
	for _, path := range args {
		m, err := LoadManifest(path)
		if err != nil {
			return err
		}
		manifests = append(manifests, m)
	}
	if len(fetchURLs) > 0 {
		m, err := parseURLFlags(fetchURLs)
		if err != nil {
			return err
		}
		manifests = append(manifests, m)
	}
	if len(manifests) == 0 {
		return errors.New("nothing to fetch: pass manifest files or --url")
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
	defer sched.Close(context.Background())

	results := make([]fetchResult, len(manifests))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range manifests {
		i, m := i, m
		batchCfg, err := m.Apply(cfg.BatchConfig())
		if err != nil {
			return err
		}
		g.Go(func() error {
			batch, err := sched.Submit(gctx, m.Tasks, batchCfg)
			if err != nil {
				return fmt.Errorf("%s: %w", m.Name, err)
			}
			state, err := batch.Wait(gctx)
			if err != nil {
				return fmt.Errorf("%s: %w", m.Name, err)
			}
			results[i] = fetchResult{Manifest: m.Name, State: state}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := printResults(cmd, results); err != nil {
		return err
	}

	if fetchStrict {
		failed := 0
		for _, r := range results {
			failed += r.State.Failed
		}
		if failed > 0 {
			return fmt.Errorf("%d task(s) failed", failed)
		}
	}
	return nil
}

func printResults(cmd *cobra.Command, results []fetchResult) error {
	out := cmd.OutOrStdout()
	if fetchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MANIFEST\tTASK\tSTATUS\tSOURCE\tBYTES\tERROR")
	for _, r := range results {
		for _, o := range r.State.Outcomes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				r.Manifest, o.TaskID, o.Status, o.Source, len(o.Data), o.ErrorMessage)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, r := range results {
		fmt.Fprintf(out, "%s: %d/%d succeeded\n", r.Manifest, r.State.Completed-r.State.Failed, r.State.Total)
	}
	return nil
}
