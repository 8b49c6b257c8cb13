package render

import (
	"fmt"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/evanofslack/zonesync/internal/nameserver"
	"github.com/evanofslack/zonesync/internal/record"
)

const (
	maxNameWidth  = 30
	maxValueWidth = 40
)

func sortKeys(keys []record.Key) {
	slices.SortFunc(keys, record.Key.Compare)
}

// Report prints the consistency report of one zone: unreachable
// nameservers, a summary of inconsistent keys and the full per-nameserver
// table. Quiet stops after the summary.
func (p *Printer) Report(r nameserver.Report) {
	p.printf("\n%s\n  ZONE: %s\n%s\n", rule, r.Zone, rule)

	for _, f := range r.Failures() {
		p.printf("Unreachable: %s after %d attempts: %v\n", f.Nameserver, f.Attempts, f.Err)
	}

	if len(r.Disagreements) > 0 {
		p.printf("\nWarning: INCONSISTENCIES DETECTED (%d records)\n%s\n", len(r.Disagreements), rule)
		tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "Name\tType\tStatus\tResolved by")
		for _, d := range r.Disagreements {
			status := "Inconsistent"
			if d.Tie {
				status = "Tie"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", truncate(d.Key.Name, maxValueWidth), d.Key.Type, status, d.Winner)
		}
		tw.Flush()
	} else {
		p.printf("\nAll records consistent across nameservers\n")
	}

	if p.v == Quiet {
		return
	}

	reachable := r.Reachable()
	if len(reachable) == 0 {
		return
	}
	disagree := make(map[record.Key]bool, len(r.Disagreements))
	for _, d := range r.Disagreements {
		disagree[d.Key] = true
	}

	keySet := make(map[record.Key]struct{})
	for _, res := range reachable {
		for _, k := range res.Snapshot.Keys() {
			keySet[k] = struct{}{}
		}
	}
	keys := make([]record.Key, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sortKeys(keys)

	p.printf("\nFULL REPORT\n%s\n", rule)
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "Name\tType\tTTL")
	for _, res := range reachable {
		fmt.Fprintf(tw, "\t%s", res.Nameserver)
	}
	fmt.Fprintln(tw, "\tOK")

	for _, k := range keys {
		ttl := ""
		if rec, ok := r.Resolved.Get(k); ok {
			ttl = strconv.FormatUint(uint64(rec.TTL), 10)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s", truncate(k.Name, maxNameWidth), k.Type, ttl)
		for _, res := range reachable {
			var value string
			if rec, ok := res.Snapshot.Get(k); ok {
				value = joinValues(&rec)
			}
			fmt.Fprintf(tw, "\t%s", truncate(value, maxValueWidth))
		}
		ok := "Y"
		if disagree[k] {
			ok = "N"
		}
		fmt.Fprintf(tw, "\t%s\n", ok)
	}
	tw.Flush()
	p.printf("\n")
}
