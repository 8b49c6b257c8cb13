package main

import (
	"github.com/spf13/cobra"

	"github.com/evanofslack/zonesync/internal/reconcile"
)

func newCmdValidate(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check zone files without contacting nameservers or providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRun(cmd, opts, "validate", false)
			if err != nil {
				return err
			}
			defer r.close()

			outcomes := make([]reconcile.Outcome, 0, len(r.zones))
			for _, z := range r.zones {
				res := r.engine.Validate(r.ctx, z)
				if res.Err != nil {
					r.zoneError(res)
				} else {
					r.printer.Validated(z.Name, r.cfg.ZoneFile(z), res.Records)
				}
				outcomes = append(outcomes, res.Outcome)
			}
			return r.finish(reconcile.Worst(outcomes...))
		},
	}
}
