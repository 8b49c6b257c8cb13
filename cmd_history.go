package main

import (
	"errors"
	"slices"

	"github.com/spf13/cobra"

	"github.com/evanofslack/zonesync/internal/journal"
	"github.com/evanofslack/zonesync/internal/reconcile"
)

const defaultHistoryLimit = 20

func newCmdHistory(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded applies from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRun(cmd, opts, "history", true)
			if err != nil {
				return err
			}
			defer r.close()

			if r.cfg.Journal.Path == "" {
				return errors.New("journal is disabled, set journal.path in the config")
			}

			var entries []journal.Entry
			for _, z := range r.zones {
				zoneEntries, err := r.journal.List(r.ctx, z.Name, limit)
				if err != nil {
					return err
				}
				entries = append(entries, zoneEntries...)
			}
			slices.SortStableFunc(entries, func(a, b journal.Entry) int {
				return b.At.Compare(a.At)
			})
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			r.printer.History(entries)
			return r.finish(reconcile.OutcomeOK)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "Maximum number of entries to show (0 for all)")
	return cmd
}
