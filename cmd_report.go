package main

import (
	"github.com/spf13/cobra"

	"github.com/evanofslack/zonesync/internal/reconcile"
)

func newCmdReport(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Compare the answers of every nameserver of a zone",
		Long: `Transfer each selected zone from all of its nameservers and report the
records they disagree on. Exits 1 when any zone is inconsistent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRun(cmd, opts, "report", false)
			if err != nil {
				return err
			}
			defer r.close()

			outcomes := make([]reconcile.Outcome, 0, len(r.zones))
			for _, z := range r.zones {
				res := r.engine.Report(r.ctx, z)
				if res.Report != nil {
					r.printer.Report(*res.Report)
				}
				if res.Err != nil {
					r.zoneError(res)
				}
				outcomes = append(outcomes, res.Outcome)
			}
			return r.finish(reconcile.Worst(outcomes...))
		},
	}
}
