package apply

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/evanofslack/zonesync/internal/diff"
	"github.com/evanofslack/zonesync/internal/journal"
	"github.com/evanofslack/zonesync/internal/metrics"
	"github.com/evanofslack/zonesync/internal/provider"
	"github.com/evanofslack/zonesync/internal/record"
)

// Result is what happened to each key of one zone batch.
type Result struct {
	Zone      string
	Succeeded []record.Key
	Failed    map[record.Key]error
	Duration  time.Duration
}

// Err returns a *PartialFailureError when any key failed.
func (r Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &PartialFailureError{Zone: r.Zone, Succeeded: len(r.Succeeded), Failed: r.Failed}
}

// PartialFailureError reports keys the provider rejected. Changes that
// succeeded stay applied.
type PartialFailureError struct {
	Zone      string
	Succeeded int
	Failed    map[record.Key]error
}

func (e *PartialFailureError) Error() string {
	keys := make([]record.Key, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, record.Key.Compare)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e.Failed[k]))
	}
	return fmt.Sprintf("zone %s: %d changes failed (%d applied): %s",
		e.Zone, len(e.Failed), e.Succeeded, strings.Join(parts, "; "))
}

// Applier sends approved entries to the provider, one batch per zone.
type Applier struct {
	provider provider.Provider
	journal  journal.Journal
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func New(p provider.Provider, j journal.Journal, log *slog.Logger, m *metrics.Metrics) *Applier {
	if j == nil {
		j = journal.Discard{}
	}
	return &Applier{provider: p, journal: j, log: log, metrics: m}
}

// Options describe the run an apply belongs to.
type Options struct {
	RunID  string
	Forced bool
}

// Apply runs the batch to completion even if ctx is cancelled, so the zone is
// never left half-applied by an interrupt. Nothing is retried.
func (a *Applier) Apply(ctx context.Context, zone string, entries []diff.Entry, opts Options) Result {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	a.log.Info("Applying changes", "zone", zone, "provider", a.provider.Name(), "entries", len(entries), "forced", opts.Forced)

	batch := a.provider.ApplyBatch(ctx, zone, entries)
	res := Result{
		Zone:      zone,
		Succeeded: batch.Succeeded,
		Failed:    batch.Failed,
		Duration:  time.Since(start),
	}

	kinds := make(map[record.Key]diff.Kind, len(entries))
	for _, e := range entries {
		kinds[e.Key] = e.Kind
	}
	for _, k := range res.Succeeded {
		a.metrics.IncApplyOperation(string(kinds[k]), zone, true)
	}
	for k := range res.Failed {
		a.metrics.IncApplyOperation(string(kinds[k]), zone, false)
	}

	if err := a.journal.Append(ctx, a.entry(res, opts)); err != nil {
		a.log.Warn("Failed to journal apply result", "zone", zone, "error", err)
	}

	a.log.Info("Applied changes",
		"zone", zone,
		"succeeded", len(res.Succeeded),
		"failed", len(res.Failed),
		"duration", res.Duration)
	return res
}

func (a *Applier) entry(res Result, opts Options) journal.Entry {
	e := journal.Entry{
		RunID:  opts.RunID,
		Zone:   res.Zone,
		At:     time.Now(),
		Forced: opts.Forced,
	}
	for _, k := range res.Succeeded {
		e.Succeeded = append(e.Succeeded, k.String())
	}
	if len(res.Failed) > 0 {
		e.Failed = make(map[string]string, len(res.Failed))
		for k, err := range res.Failed {
			e.Failed[k.String()] = err.Error()
		}
	}
	return e
}
