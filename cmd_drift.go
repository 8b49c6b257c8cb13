package main

import (
	"github.com/spf13/cobra"

	"github.com/evanofslack/zonesync/internal/reconcile"
)

func newCmdDrift(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drift",
		Short: "Show how live DNS differs from the zone files",
		Long: `Compute the changes a sync would make without applying anything.
Exits 1 when any selected zone has drifted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRun(cmd, opts, "drift", false)
			if err != nil {
				return err
			}
			defer r.close()

			var (
				outcomes []reconcile.Outcome
				drifted  bool
				failed   bool
			)
			for _, z := range r.zones {
				res := r.engine.Drift(r.ctx, z)
				outcomes = append(outcomes, res.Outcome)
				if res.Err != nil {
					r.zoneError(res)
					failed = true
					continue
				}
				r.printer.Plan(z.Name, res.Plan.Entries)
				if res.Outcome == reconcile.OutcomeDrift {
					drifted = true
				}
			}
			if !failed || drifted {
				r.printer.Drift(drifted)
			}
			return r.finish(reconcile.Worst(outcomes...))
		},
	}
}
