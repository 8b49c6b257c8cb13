package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/evanofslack/zonesync/internal/apply"
	"github.com/evanofslack/zonesync/internal/diff"
	"github.com/evanofslack/zonesync/internal/gate"
	"github.com/evanofslack/zonesync/internal/journal"
	"github.com/evanofslack/zonesync/internal/record"
	"github.com/evanofslack/zonesync/internal/risk"
)

type Verbosity int

const (
	Quiet Verbosity = iota
	Normal
	Debug
)

func (v Verbosity) String() string {
	switch v {
	case Quiet:
		return "quiet"
	case Debug:
		return "debug"
	default:
		return "normal"
	}
}

const rule = "================================================================================"

// Printer writes human readable command output. Quiet keeps summaries and
// warnings, Debug adds per-value detail.
type Printer struct {
	w io.Writer
	v Verbosity
}

func New(w io.Writer, v Verbosity) *Printer {
	return &Printer{w: w, v: v}
}

func (p *Printer) Verbosity() Verbosity { return p.v }

func (p *Printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

// Plan prints the header and change lines of one zone.
func (p *Printer) Plan(zone string, classified []risk.Classified) {
	entries := make([]diff.Entry, 0, len(classified))
	for _, c := range classified {
		entries = append(entries, c.Entry)
	}
	s := diff.Summarize(entries)
	if s.Total() == 0 {
		if p.v > Quiet {
			p.printf("%s: no changes\n", zone)
		}
		return
	}

	p.printf("%s (%d creates, %d updates, %d deletes)\n", zone, s.Creates, s.Updates, s.Deletes)
	if p.v == Quiet {
		return
	}
	for _, c := range classified {
		p.printf("%s\n", Line(zone, c))
		if p.v == Debug && c.Kind == diff.Update {
			if added := c.AddedValues(); len(added) > 0 {
				p.printf("    added %v\n", added)
			}
			if removed := c.RemovedValues(); len(removed) > 0 {
				p.printf("    removed %v\n", removed)
			}
		}
	}
	p.printf("\n")
}

// Line renders one classified entry with its name relative to zone.
func Line(zone string, c risk.Classified) string {
	name := record.Relative(c.Key.Name, zone)
	var line string
	switch {
	case c.Kind == diff.Create:
		line = fmt.Sprintf("+ %s %s %v", c.Key.Type, name, c.After.Values)
	case c.Kind == diff.Delete:
		line = fmt.Sprintf("- %s %s", c.Key.Type, name)
	case c.TTLOnly():
		line = fmt.Sprintf("~ %s %s TTL %d->%d", c.Key.Type, name, c.Before.TTL, c.After.TTL)
	default:
		line = fmt.Sprintf("~ %s %s %v->%v", c.Key.Type, name, c.Before.Values, c.After.Values)
	}
	return fmt.Sprintf("%s (%s)", line, c.Risk)
}

// Decision prints the violated thresholds of a rejected or forced decision.
func (p *Printer) Decision(d gate.Decision) {
	if len(d.Reasons) == 0 {
		return
	}
	if d.Forced {
		p.printf("Warning: safety threshold overridden with --force:\n")
	} else {
		p.printf("Warning: safety threshold exceeded:\n")
	}
	for _, r := range d.Reasons {
		p.printf("   %s\n", r.Message)
	}
	if !d.Forced {
		p.printf("\n   rerun with --force to apply\n")
	}
	p.printf("\n")
}

// DryRun prints the hint shown after a plan that was not applied.
func (p *Printer) DryRun() {
	if p.v == Quiet {
		return
	}
	p.printf("Dry run: rerun with --apply to make these changes\n\n")
}

// Drift prints the drift verdict over all zones.
func (p *Printer) Drift(drifted bool) {
	if drifted {
		p.printf("Drift detected: live DNS differs from local zones\n")
		return
	}
	p.printf("No drift detected\n")
}

// Applied prints the outcome of one zone batch.
func (p *Printer) Applied(res apply.Result) {
	p.printf("%s: applied %d changes", res.Zone, len(res.Succeeded))
	if len(res.Failed) > 0 {
		p.printf(", %d failed", len(res.Failed))
	}
	p.printf("\n")

	if p.v == Debug {
		for _, k := range res.Succeeded {
			p.printf("  ok     %s\n", k)
		}
	}
	keys := make([]record.Key, 0, len(res.Failed))
	for k := range res.Failed {
		keys = append(keys, k)
	}
	sortKeys(keys)
	for _, k := range keys {
		p.printf("  failed %s: %v\n", k, res.Failed[k])
	}
}

// Validated prints the result of checking one zone file.
func (p *Printer) Validated(zone, file string, records int) {
	if p.v == Quiet {
		return
	}
	p.printf("%s: %s ok (%d records)\n", zone, file, records)
}

// History prints journal entries as a table.
func (p *Printer) History(entries []journal.Entry) {
	if len(entries) == 0 {
		p.printf("No applies recorded\n")
		return
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tZONE\tRUN\tAPPLIED\tFAILED\tFORCED")
	for _, e := range entries {
		forced := ""
		if e.Forced {
			forced = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			e.At.Local().Format("2006-01-02 15:04:05"), e.Zone, e.RunID, len(e.Succeeded), len(e.Failed), forced)
	}
	tw.Flush()

	if p.v == Debug {
		for _, e := range entries {
			for k, msg := range e.Failed {
				p.printf("%s %s: %s\n", e.RunID, k, msg)
			}
		}
	}
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func joinValues(r *record.Record) string {
	if r == nil {
		return ""
	}
	return strings.Join(r.Values, ", ")
}
