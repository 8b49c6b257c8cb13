package reconcile

import (
	"errors"

	"github.com/evanofslack/zonesync/internal/apply"
	"github.com/evanofslack/zonesync/internal/diff"
	"github.com/evanofslack/zonesync/internal/filter"
	"github.com/evanofslack/zonesync/internal/gate"
	"github.com/evanofslack/zonesync/internal/nameserver"
	"github.com/evanofslack/zonesync/internal/record"
	"github.com/evanofslack/zonesync/internal/risk"
)

// Outcome is the result class of one zone. Its value is the process exit
// code, and a higher value is more severe.
type Outcome int

const (
	OutcomeOK        Outcome = 0
	OutcomeDrift     Outcome = 1
	OutcomeError     Outcome = 2
	OutcomeThreshold Outcome = 3
	OutcomeQuorum    Outcome = 4
	OutcomePartial   Outcome = 5
	OutcomeMalformed Outcome = 6
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeDrift:
		return "drift"
	case OutcomeThreshold:
		return "threshold"
	case OutcomeQuorum:
		return "quorum"
	case OutcomePartial:
		return "partial"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "error"
	}
}

// Worst returns the most severe of the given outcomes.
func Worst(outcomes ...Outcome) Outcome {
	worst := OutcomeOK
	for _, o := range outcomes {
		worst = max(worst, o)
	}
	return worst
}

// OutcomeOf classifies an error returned while handling a zone.
func OutcomeOf(err error) Outcome {
	var (
		malformed    *record.MalformedError
		insufficient *nameserver.InsufficientReachableError
		partial      *apply.PartialFailureError
	)
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &malformed):
		return OutcomeMalformed
	case errors.As(err, &partial):
		return OutcomePartial
	case errors.As(err, &insufficient):
		return OutcomeQuorum
	default:
		return OutcomeError
	}
}

// ZonePlan is everything computed for one zone before anything is applied.
type ZonePlan struct {
	Zone         string
	Desired      record.Snapshot
	Live         record.Snapshot
	Report       nameserver.Report
	Entries      []risk.Classified
	Summary      diff.Summary
	Decision     gate.Decision
	DesiredStats filter.Stats
}

// Changes returns the planned diff entries in application order.
func (p *ZonePlan) Changes() []diff.Entry {
	out := make([]diff.Entry, 0, len(p.Entries))
	for _, c := range p.Entries {
		out = append(out, c.Entry)
	}
	return out
}

// SyncOptions controls whether a sync reaches the provider.
type SyncOptions struct {
	Apply bool
	Force bool
}

// ZoneResult is the outcome of one command for one zone.
type ZoneResult struct {
	Zone    string
	Outcome Outcome
	Records int
	Plan    *ZonePlan
	Report  *nameserver.Report
	Applied *apply.Result
	Err     error
}

func result(zone string, err error) ZoneResult {
	return ZoneResult{Zone: zone, Outcome: OutcomeOf(err), Err: err}
}
