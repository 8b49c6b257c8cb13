package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evanofslack/zonesync/internal/apply"
	"github.com/evanofslack/zonesync/internal/config"
	"github.com/evanofslack/zonesync/internal/diff"
	"github.com/evanofslack/zonesync/internal/filter"
	"github.com/evanofslack/zonesync/internal/gate"
	"github.com/evanofslack/zonesync/internal/journal"
	"github.com/evanofslack/zonesync/internal/metrics"
	"github.com/evanofslack/zonesync/internal/nameserver"
	"github.com/evanofslack/zonesync/internal/provider"
	"github.com/evanofslack/zonesync/internal/record"
	"github.com/evanofslack/zonesync/internal/risk"
	"github.com/evanofslack/zonesync/internal/zonefile"
)

// ProviderSource returns the provider configured under name.
type ProviderSource func(name string) (provider.Provider, error)

// ConfiguredProviders builds providers from the config on first use.
func ConfiguredProviders(cfg *config.Config, log *slog.Logger, m *metrics.Metrics) ProviderSource {
	var mu sync.Mutex
	built := make(map[string]provider.Provider)
	return func(name string) (provider.Provider, error) {
		mu.Lock()
		defer mu.Unlock()
		if p, ok := built[name]; ok {
			return p, nil
		}
		pc, ok := cfg.Providers[name]
		if !ok {
			return nil, fmt.Errorf("provider %q is not configured", name)
		}
		p, err := provider.New(pc.Type, pc.Settings, log, m)
		if err != nil {
			return nil, err
		}
		built[name] = p
		return p, nil
	}
}

// BuildPipeline creates the configured filters in order.
func BuildPipeline(cfg *config.Config, log *slog.Logger) (*filter.Pipeline, error) {
	filters := make([]filter.Filter, 0, len(cfg.Filters))
	for _, fc := range cfg.Filters {
		f, err := filter.New(fc.Name, fc.Settings)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filter.NewPipeline(log, filters...), nil
}

type Engine struct {
	cfg       *config.Config
	pipeline  *filter.Pipeline
	querier   nameserver.Querier
	providers ProviderSource
	journal   journal.Journal
	runID     string
	log       *slog.Logger
	metrics   *metrics.Metrics
}

func NewEngine(cfg *config.Config, pipeline *filter.Pipeline, q nameserver.Querier, providers ProviderSource, j journal.Journal, runID string, log *slog.Logger, m *metrics.Metrics) *Engine {
	if j == nil {
		j = journal.Discard{}
	}
	return &Engine{
		cfg:       cfg,
		pipeline:  pipeline,
		querier:   q,
		providers: providers,
		journal:   j,
		runID:     runID,
		log:       log,
		metrics:   m,
	}
}

// desired loads the zone file and checks every record against the model.
func (e *Engine) desired(z config.Zone) (record.Set, error) {
	path := e.cfg.ZoneFile(z)
	set, err := zonefile.Load(path, z.Name)
	if err != nil {
		return nil, fmt.Errorf("load zone %s: %w", z.Name, err)
	}

	var errs []error
	for _, k := range set.Keys() {
		if err := set[k].Validate(z.Name); err != nil {
			var malformed *record.MalformedError
			if errors.As(err, &malformed) {
				malformed.Source = path
			}
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("zone %s: %w", z.Name, errors.Join(errs...))
	}
	return set, nil
}

func (e *Engine) reconciler(z config.Zone, desired record.Set) (*nameserver.Reconciler, error) {
	nsCfg := e.cfg.NameserverConfig(z)
	if len(nsCfg.Nameservers) == 0 {
		nsCfg.Nameservers = zonefile.ApexNameservers(desired, z.Name)
		e.log.Debug("Using apex nameservers from zone file", "zone", z.Name, "nameservers", nsCfg.Nameservers)
	}
	if len(nsCfg.Nameservers) == 0 {
		return nil, fmt.Errorf("zone %s: no nameservers configured and none at the apex of the zone file", z.Name)
	}
	return nameserver.New(e.querier, nsCfg, e.log, e.metrics), nil
}

// zoneScope binds the pipeline to the desired set and every nameserver
// answer, so the vote only sees records this zone manages.
type zoneScope struct {
	pipeline *filter.Pipeline
	zone     string
	desired  record.Set
	bound    *filter.Bound
}

func (s *zoneScope) narrow(answers []record.Snapshot) func(record.Snapshot) record.Snapshot {
	sets := make([]record.Set, 0, len(answers)+1)
	sets = append(sets, s.desired)
	for _, a := range answers {
		sets = append(sets, a.Records())
	}
	s.bound = s.pipeline.Bind(s.zone, sets...)
	return func(snap record.Snapshot) record.Snapshot {
		out, _ := s.bound.Apply(snap)
		return out
	}
}

// Validate checks the zone file and its records without touching the network.
func (e *Engine) Validate(ctx context.Context, z config.Zone) ZoneResult {
	set, err := e.desired(z)
	if err != nil {
		return result(z.Name, err)
	}
	res := result(z.Name, nil)
	res.Records = len(set)
	return res
}

// Plan computes the classified and gated diff between the zone file and the
// reconciled live view. The same bound filters apply to both sides.
func (e *Engine) Plan(ctx context.Context, z config.Zone) (*ZonePlan, error) {
	set, err := e.desired(z)
	if err != nil {
		return nil, err
	}
	rec, err := e.reconciler(z, set)
	if err != nil {
		return nil, err
	}

	scope := &zoneScope{pipeline: e.pipeline, zone: z.Name, desired: set}
	report, err := rec.WithScope(scope.narrow).Reconcile(ctx, z.Name)
	plan := &ZonePlan{Zone: z.Name, Report: report}
	if err != nil {
		return plan, err
	}

	plan.Desired, plan.DesiredStats = scope.bound.Apply(record.NewSnapshot(z.Name, record.SourceDesired, set, time.Now()))
	plan.Live = report.Resolved

	entries := diff.Compute(plan.Desired, plan.Live)
	plan.Entries = risk.ClassifyAll(entries, risk.ContextOf(report.Resolved))
	plan.Summary = diff.Summarize(entries)
	plan.Decision = gate.Evaluate(z.Name, plan.Entries, plan.Desired.Len(), plan.Live.Len(), e.cfg.ThresholdsFor(z))

	for _, c := range plan.Entries {
		e.metrics.IncDiffEntry(z.Name, string(c.Kind), string(c.Risk))
	}
	e.metrics.IncGateDecision(z.Name, plan.Decision.Approved, false)

	counts := risk.Count(plan.Entries)
	e.log.Info("Planned changes",
		"zone", z.Name,
		"creates", plan.Summary.Creates,
		"updates", plan.Summary.Updates,
		"deletes", plan.Summary.Deletes,
		"destructive", counts[risk.Destructive],
		"caution", counts[risk.Caution],
		"approved", plan.Decision.Approved)
	return plan, nil
}

// Drift reports whether live DNS differs from the zone file.
func (e *Engine) Drift(ctx context.Context, z config.Zone) ZoneResult {
	plan, err := e.Plan(ctx, z)
	res := result(z.Name, err)
	res.Plan = plan
	if err != nil {
		return res
	}
	if len(plan.Entries) > 0 {
		res.Outcome = OutcomeDrift
	}
	return res
}

// Sync plans the zone and, when asked to and allowed by the gate, applies the
// changes. A rejected plan never reaches the provider unless forced.
func (e *Engine) Sync(ctx context.Context, z config.Zone, opts SyncOptions) ZoneResult {
	plan, err := e.Plan(ctx, z)
	res := result(z.Name, err)
	res.Plan = plan
	if err != nil || len(plan.Entries) == 0 {
		return res
	}

	if plan.Decision.Rejected() {
		if !opts.Force {
			e.log.Warn("Safety threshold exceeded, not applying", "zone", z.Name, "reasons", len(plan.Decision.Reasons))
			res.Outcome = OutcomeThreshold
			return res
		}
		plan.Decision = plan.Decision.Force()
		e.metrics.IncGateDecision(z.Name, true, true)
		e.log.Warn("Safety threshold overridden", "zone", z.Name, "reasons", len(plan.Decision.Reasons))
	}

	if !opts.Apply {
		e.log.Info("Dry run, not applying", "zone", z.Name, "entries", len(plan.Entries))
		return res
	}

	p, err := e.providers(z.Provider)
	if err != nil {
		return result(z.Name, fmt.Errorf("zone %s: %w", z.Name, err))
	}
	applied := apply.New(p, e.journal, e.log, e.metrics).Apply(ctx, z.Name, plan.Changes(), apply.Options{
		RunID:  e.runID,
		Forced: plan.Decision.Forced,
	})
	res.Applied = &applied
	if err := applied.Err(); err != nil {
		res.Err = err
		res.Outcome = OutcomeOf(err)
	}
	return res
}

// Report reconciles the nameservers of a zone without diffing. A zone whose
// nameservers disagree is reported as drift.
func (e *Engine) Report(ctx context.Context, z config.Zone) ZoneResult {
	var desired record.Set
	if len(z.Nameservers) == 0 {
		set, err := e.desired(z)
		if err != nil {
			return result(z.Name, err)
		}
		desired = set
	}
	rec, err := e.reconciler(z, desired)
	if err != nil {
		return result(z.Name, err)
	}

	scope := &zoneScope{pipeline: e.pipeline, zone: z.Name, desired: desired}
	report, err := rec.WithScope(scope.narrow).Reconcile(ctx, z.Name)
	res := result(z.Name, err)
	res.Report = &report
	if err == nil && !report.Consistent() {
		res.Outcome = OutcomeDrift
	}
	return res
}
