package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear cache slots",
}

var cacheListCmd = &cobra.Command{
	Use:   "list [slot]",
	Short: "List the entries of a slot (default: cache.slot)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheList,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [slot]",
	Short: "Delete every entry of a slot (default: cache.slot)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func slotArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return ""
}

func runCacheList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	slots, closeSlots, err := cfg.OpenSlots(cmd.Context())
	if err != nil {
		return err
	}
	defer closeSlots()

	slot, err := slots.Open(cmd.Context(), slotArg(args))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBYTES\tCACHED\tURL")
	for _, e := range slot.Entries() {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", e.ID, e.Size(), e.CachedAt.Format(time.RFC3339), e.URL)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d entries in slot %s\n", slot.Len(), slot.Name())
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	slots, closeSlots, err := cfg.OpenSlots(cmd.Context())
	if err != nil {
		return err
	}
	defer closeSlots()

	name := slotArg(args)
	if name == "" {
		name = slots.DefaultName()
	}
	if err := slots.Clear(cmd.Context(), name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared slot %s\n", name)
	return nil
}
