package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/evanofslack/zonesync/internal/provider"
	"github.com/evanofslack/zonesync/internal/reconcile"
)

// syncFlagAliases maps alternate flag names onto their canonical flag.
var syncFlagAliases = map[string]string{
	"doit": "apply",
}

func normalizeSyncFlag(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if canonical, ok := syncFlagAliases[name]; ok {
		name = canonical
	}
	return pflag.NormalizedName(name)
}

func newCmdSync(opts *rootOptions) *cobra.Command {
	var syncOpts reconcile.SyncOptions
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Plan and optionally apply changes to the DNS provider",
		Long: `Plan the changes that bring live DNS in line with the zone files. Nothing
is sent to the provider without --apply. Plans that exceed the safety
thresholds are refused unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRun(cmd, opts, "sync", syncOpts.Apply)
			if err != nil {
				return err
			}
			defer r.close()

			if syncOpts.Apply {
				if err := r.cfg.ResolveCredentials(); err != nil {
					return err
				}
			}

			outcomes := make([]reconcile.Outcome, 0, len(r.zones))
			for _, z := range r.zones {
				res := r.engine.Sync(r.ctx, z, syncOpts)
				outcomes = append(outcomes, res.Outcome)
				r.printSync(res, syncOpts)
			}
			return r.finish(reconcile.Worst(outcomes...))
		},
	}
	cmd.Flags().BoolVar(&syncOpts.Apply, "apply", false, "Send the planned changes to the provider (alias --doit)")
	cmd.Flags().BoolVar(&syncOpts.Force, "force", false, "Apply even when the safety thresholds are exceeded")
	cmd.Flags().SetNormalizeFunc(normalizeSyncFlag)
	return cmd
}

func (r *run) printSync(res reconcile.ZoneResult, opts reconcile.SyncOptions) {
	if res.Plan == nil || (res.Err != nil && res.Applied == nil) {
		r.zoneError(res)
		return
	}

	r.printer.Plan(res.Zone, res.Plan.Entries)
	r.printer.Decision(res.Plan.Decision)

	if res.Applied != nil {
		r.printer.Applied(*res.Applied)
		for _, err := range res.Applied.Failed {
			if provider.IsCredentialError(err) {
				fmt.Fprintf(r.stderr, "Error: %s: provider rejected the credentials, check the provider settings\n", res.Zone)
				break
			}
		}
		return
	}
	if !opts.Apply && res.Outcome == reconcile.OutcomeOK && len(res.Plan.Entries) > 0 {
		r.printer.DryRun()
	}
}
