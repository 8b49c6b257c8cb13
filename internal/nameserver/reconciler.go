package nameserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/evanofslack/zonesync/internal/metrics"
	"github.com/evanofslack/zonesync/internal/record"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultRetryInterval = 500 * time.Millisecond
)

// Querier fetches the full record set a nameserver serves for a zone.
type Querier interface {
	Query(ctx context.Context, nameserver, zone string) (record.Set, error)
}

// QueryFailure records a nameserver that could not be queried. It is
// reported, never fatal on its own.
type QueryFailure struct {
	Nameserver string
	Attempts   int
	Err        error
}

func (f *QueryFailure) Error() string {
	return fmt.Sprintf("query %s failed after %d attempts: %v", f.Nameserver, f.Attempts, f.Err)
}

func (f *QueryFailure) Unwrap() error { return f.Err }

// InsufficientReachableError aborts a run when too few nameservers answered
// for the live view to be trusted.
type InsufficientReachableError struct {
	Zone      string
	Reachable int
	Required  int
	Failures  []*QueryFailure
}

func (e *InsufficientReachableError) Error() string {
	return fmt.Sprintf("zone %s: %d of %d required nameservers reachable", e.Zone, e.Reachable, e.Required)
}

// Config tunes a Reconciler. A negative RetryInterval disables retries.
type Config struct {
	Nameservers   []string
	Timeout       time.Duration
	MinReachable  int
	Primary       string
	RetryInterval time.Duration
}

// Scope narrows the answer of every reachable nameserver before the vote.
// It receives all answers at once so ownership can be decided across them.
type Scope func(answers []record.Snapshot) func(record.Snapshot) record.Snapshot

type Reconciler struct {
	querier Querier
	cfg     Config
	scope   Scope
	log     *slog.Logger
	metrics *metrics.Metrics
}

func New(q Querier, cfg Config, log *slog.Logger, m *metrics.Metrics) *Reconciler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.MinReachable <= 0 {
		cfg.MinReachable = 1
	}
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.New(false)
	}
	return &Reconciler{querier: q, cfg: cfg, log: log, metrics: m}
}

// Nameservers returns the configured nameservers in order.
func (r *Reconciler) Nameservers() []string {
	return slices.Clone(r.cfg.Nameservers)
}

// WithNameservers returns a reconciler querying a different nameserver list.
func (r *Reconciler) WithNameservers(nameservers []string) *Reconciler {
	out := *r
	out.cfg.Nameservers = slices.Clone(nameservers)
	return &out
}

// WithScope returns a reconciler that votes only on what scope keeps.
func (r *Reconciler) WithScope(scope Scope) *Reconciler {
	out := *r
	out.scope = scope
	return &out
}

// Result is the outcome of querying one nameserver.
type Result struct {
	Nameserver string
	Snapshot   record.Snapshot
	Failure    *QueryFailure
	Duration   time.Duration
}

func (r Result) Reachable() bool { return r.Failure == nil }

// Answer is what one nameserver holds at a key. Record is nil when the key
// is absent there.
type Answer struct {
	Nameserver string
	Record     *record.Record
}

// Disagreement is a key on which reachable nameservers did not agree.
type Disagreement struct {
	Key      record.Key
	Answers  []Answer
	Resolved *record.Record
	Winner   string
	Tie      bool
}

// Report is the consistency report of one reconciliation.
type Report struct {
	Zone          string
	Results       []Result
	Resolved      record.Snapshot
	Disagreements []Disagreement
}

// Reachable lists the nameservers that answered, in configured order.
func (r Report) Reachable() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Reachable() {
			out = append(out, res)
		}
	}
	return out
}

// Malformed returns the first failure caused by zone data that could not be
// parsed, or nil.
func (r Report) Malformed() *QueryFailure {
	for _, f := range r.Failures() {
		var malformed *record.MalformedError
		if errors.As(f.Err, &malformed) {
			return f
		}
	}
	return nil
}

func (r Report) Failures() []*QueryFailure {
	var out []*QueryFailure
	for _, res := range r.Results {
		if res.Failure != nil {
			out = append(out, res.Failure)
		}
	}
	return out
}

// Consistent reports whether every reachable nameserver served the same zone.
func (r Report) Consistent() bool {
	return len(r.Disagreements) == 0
}

// Reconcile queries every nameserver concurrently and resolves one live view
// by majority vote per key. The error is an *InsufficientReachableError when
// fewer than MinReachable nameservers answered; the report is still filled in.
func (r *Reconciler) Reconcile(ctx context.Context, zone string) (Report, error) {
	zone = record.NormalizeName(zone)
	report := Report{Zone: zone, Results: make([]Result, len(r.cfg.Nameservers))}
	if len(r.cfg.Nameservers) == 0 {
		return report, fmt.Errorf("zone %s: no nameservers configured", zone)
	}

	wg := &sync.WaitGroup{}
	for i, ns := range r.cfg.Nameservers {
		wg.Add(1)
		go func(i int, ns string) {
			defer wg.Done()
			report.Results[i] = r.query(ctx, ns, zone)
		}(i, ns)
	}
	wg.Wait()

	// bad data is never outvoted
	if f := report.Malformed(); f != nil {
		return report, fmt.Errorf("zone %s: %w", zone, f)
	}

	reachable := report.Reachable()
	for _, f := range report.Failures() {
		r.log.Warn("Nameserver unreachable", "zone", zone, "nameserver", f.Nameserver, "attempts", f.Attempts, "error", f.Err)
	}
	if len(reachable) < r.cfg.MinReachable {
		return report, &InsufficientReachableError{
			Zone:      zone,
			Reachable: len(reachable),
			Required:  r.cfg.MinReachable,
			Failures:  report.Failures(),
		}
	}

	if r.scope != nil {
		answers := make([]record.Snapshot, 0, len(reachable))
		for _, res := range reachable {
			answers = append(answers, res.Snapshot)
		}
		keep := r.scope(answers)
		for i := range report.Results {
			if report.Results[i].Reachable() {
				report.Results[i].Snapshot = keep(report.Results[i].Snapshot)
			}
		}
		reachable = report.Reachable()
	}

	resolved, disagreements := r.resolve(reachable)
	report.Resolved = record.NewSnapshot(zone, record.SourceResolved, resolved, time.Now())
	report.Disagreements = disagreements
	r.metrics.SetDisagreements(zone, len(disagreements))

	for _, d := range disagreements {
		r.log.Warn("Nameservers disagree", "zone", zone, "key", d.Key.String(), "winner", d.Winner, "tie", d.Tie)
	}
	r.log.Info("Reconciled nameservers",
		"zone", zone,
		"reachable", len(reachable),
		"configured", len(r.cfg.Nameservers),
		"records", report.Resolved.Len(),
		"disagreements", len(disagreements))
	return report, nil
}

// query retries within the nameserver timeout.
func (r *Reconciler) query(ctx context.Context, ns, zone string) Result {
	start := time.Now()
	qctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	attempts := 0
	for {
		attempts++
		set, err := r.querier.Query(qctx, ns, zone)
		if err == nil {
			r.metrics.IncNameserverQuery(ns, true)
			r.log.Debug("Queried nameserver", "zone", zone, "nameserver", ns, "records", len(set), "attempts", attempts, "duration", time.Since(start))
			return Result{
				Nameserver: ns,
				Snapshot:   record.NewSnapshot(zone, record.LiveSource(ns), set, time.Now()),
				Duration:   time.Since(start),
			}
		}
		r.metrics.IncNameserverQuery(ns, false)
		r.log.Debug("Nameserver query failed", "zone", zone, "nameserver", ns, "attempt", attempts, "error", err)

		var malformed *record.MalformedError
		if errors.As(err, &malformed) {
			r.log.Error("Nameserver served malformed zone data", "zone", zone, "nameserver", ns, "error", err)
			return r.failed(qctx, ns, attempts, err, start)
		}
		if r.cfg.RetryInterval < 0 || qctx.Err() != nil {
			return r.failed(qctx, ns, attempts, err, start)
		}
		select {
		case <-qctx.Done():
			return r.failed(qctx, ns, attempts, err, start)
		case <-time.After(r.cfg.RetryInterval):
		}
	}
}

func (r *Reconciler) failed(qctx context.Context, ns string, attempts int, err error, start time.Time) Result {
	if cerr := qctx.Err(); cerr != nil && !errors.Is(err, cerr) {
		err = fmt.Errorf("%w (last error: %v)", cerr, err)
	}
	return Result{
		Nameserver: ns,
		Failure:    &QueryFailure{Nameserver: ns, Attempts: attempts, Err: err},
		Duration:   time.Since(start),
	}
}

type group struct {
	record  *record.Record
	members []string
	first   int
}

func (r *Reconciler) resolve(reachable []Result) (record.Set, []Disagreement) {
	keys := make(map[record.Key]struct{})
	for _, res := range reachable {
		for _, k := range res.Snapshot.Keys() {
			keys[k] = struct{}{}
		}
	}
	ordered := make([]record.Key, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	slices.SortFunc(ordered, record.Key.Compare)

	resolved := make(record.Set, len(ordered))
	var disagreements []Disagreement
	for _, k := range ordered {
		answers := make([]Answer, 0, len(reachable))
		var groups []*group
		index := make(map[string]*group)
		for i, res := range reachable {
			var rec *record.Record
			if got, ok := res.Snapshot.Get(k); ok {
				rec = &got
			}
			answers = append(answers, Answer{Nameserver: res.Nameserver, Record: rec})

			sig := signature(rec)
			g, ok := index[sig]
			if !ok {
				g = &group{record: rec, first: i}
				index[sig] = g
				groups = append(groups, g)
			}
			g.members = append(g.members, res.Nameserver)
		}

		winner, tie := r.vote(groups)
		if winner.record != nil {
			resolved[k] = winner.record.Clone()
		}
		if len(groups) > 1 {
			disagreements = append(disagreements, Disagreement{
				Key:      k,
				Answers:  answers,
				Resolved: winner.record,
				Winner:   strings.Join(winner.members, ","),
				Tie:      tie,
			})
		}
	}
	return resolved, disagreements
}

// vote picks the largest group. On a tie the group holding the primary
// nameserver wins, otherwise the group whose first member was configured
// earliest.
func (r *Reconciler) vote(groups []*group) (*group, bool) {
	best := 0
	for _, g := range groups {
		best = max(best, len(g.members))
	}
	var tied []*group
	for _, g := range groups {
		if len(g.members) == best {
			tied = append(tied, g)
		}
	}
	if len(tied) == 1 {
		return tied[0], false
	}
	if r.cfg.Primary != "" {
		for _, g := range tied {
			if slices.Contains(g.members, r.cfg.Primary) {
				return g, true
			}
		}
	}
	earliest := tied[0]
	for _, g := range tied[1:] {
		if g.first < earliest.first {
			earliest = g
		}
	}
	return earliest, true
}

func signature(r *record.Record) string {
	if r == nil {
		return "-"
	}
	values := slices.Clone(r.Values)
	slices.Sort(values)
	return strconv.FormatUint(uint64(r.TTL), 10) + "\x00" + strings.Join(values, "\x00")
}
