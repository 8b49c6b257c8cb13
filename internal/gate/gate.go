package gate

import (
	"fmt"
	"math"

	"github.com/evanofslack/zonesync/internal/risk"
)

const (
	RuleDestructive = "max_destructive"
	RuleChangeRatio = "max_change_ratio"
)

// Thresholds bounds what a single run may change without --force.
type Thresholds struct {
	MaxDestructive     int     `yaml:"maxDestructive"`
	MaxChangeRatio     float64 `yaml:"maxChangeRatio"`
	MinRecordsForRatio int     `yaml:"minRecordsForRatio"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxDestructive:     10,
		MaxChangeRatio:     0.3,
		MinRecordsForRatio: 10,
	}
}

// Reason describes one violated rule.
type Reason struct {
	Rule    string
	Limit   float64
	Actual  float64
	Message string
}

// Decision is the gate outcome for one zone. A rejection is a normal
// result, not an error.
type Decision struct {
	Zone        string
	Approved    bool
	Forced      bool
	Destructive int
	NonSafe     int
	Ratio       float64
	Reasons     []Reason
}

// Rejected reports whether the changes must not be applied.
func (d Decision) Rejected() bool {
	return !d.Approved
}

// Force approves a rejected decision, keeping the overridden reasons.
func (d Decision) Force() Decision {
	if d.Approved {
		return d
	}
	d.Approved = true
	d.Forced = true
	return d
}

// Evaluate checks classified entries against the thresholds. desired and
// live are the record counts of the filtered snapshots.
func Evaluate(zone string, classified []risk.Classified, desired, live int, t Thresholds) Decision {
	d := Decision{Zone: zone}
	for _, c := range classified {
		switch c.Risk {
		case risk.Destructive:
			d.Destructive++
			d.NonSafe++
		case risk.Caution:
			d.NonSafe++
		}
	}

	switch {
	case d.NonSafe == 0:
		d.Ratio = 0
	case desired == 0:
		d.Ratio = math.Inf(1)
	default:
		d.Ratio = float64(d.NonSafe) / float64(desired)
	}

	if d.Destructive > t.MaxDestructive {
		d.Reasons = append(d.Reasons, Reason{
			Rule:   RuleDestructive,
			Limit:  float64(t.MaxDestructive),
			Actual: float64(d.Destructive),
			Message: fmt.Sprintf("%s: %d destructive changes (limit %d)",
				zone, d.Destructive, t.MaxDestructive),
		})
	}
	// An empty desired zone is always held to the ratio rule, however small
	// the live zone is.
	sized := desired == 0 || max(desired, live) >= t.MinRecordsForRatio
	if sized && d.Ratio > t.MaxChangeRatio {
		d.Reasons = append(d.Reasons, Reason{
			Rule:    RuleChangeRatio,
			Limit:   t.MaxChangeRatio,
			Actual:  d.Ratio,
			Message: ratioMessage(zone, d.NonSafe, desired, d.Ratio, t.MaxChangeRatio),
		})
	}

	d.Approved = len(d.Reasons) == 0
	return d
}

func ratioMessage(zone string, nonSafe, desired int, ratio, limit float64) string {
	if math.IsInf(ratio, 1) {
		return fmt.Sprintf("%s: %d risky changes against an empty desired zone (limit %.0f%%)",
			zone, nonSafe, limit*100)
	}
	return fmt.Sprintf("%s: %.0f%% risky changes (%d/%d records, limit %.0f%%)",
		zone, ratio*100, nonSafe, desired, limit*100)
}
