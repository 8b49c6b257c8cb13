package risk

import (
	"github.com/evanofslack/zonesync/internal/diff"
	"github.com/evanofslack/zonesync/internal/record"
)

type Label string

const (
	Safe        Label = "safe"
	Caution     Label = "caution"
	Destructive Label = "destructive"
)

// Severity orders labels from safe to destructive.
func (l Label) Severity() int {
	switch l {
	case Destructive:
		return 2
	case Caution:
		return 1
	}
	return 0
}

// Context is what the classifier knows about the live zone apex.
type Context struct {
	Zone    string
	LiveSOA bool
	LiveNS  bool
}

// ContextOf derives the classifier context from a live snapshot.
func ContextOf(live record.Snapshot) Context {
	apex := record.NormalizeName(live.Zone())
	_, soa := live.Get(record.Key{Name: apex, Type: "SOA"})
	_, ns := live.Get(record.Key{Name: apex, Type: "NS"})
	return Context{Zone: apex, LiveSOA: soa, LiveNS: ns}
}

// declares reports whether the live apex already holds k. NS below the apex
// are delegations and never count.
func (c Context) declares(k record.Key) bool {
	if k.Name != c.Zone {
		return false
	}
	switch k.Type {
	case "SOA":
		return c.LiveSOA
	case "NS":
		return c.LiveNS
	}
	return false
}

// Classify labels one entry. Under the key model a delete always removes the
// last value at its key and is destructive; removing some of several values is
// an update whose after-values are a strict subset of the before-values.
func Classify(e diff.Entry, ctx Context) Label {
	switch e.Kind {
	case diff.Delete:
		return Destructive
	case diff.Create:
		if record.IsInfrastructure(e.Key.Type) && ctx.declares(e.Key) {
			return Destructive
		}
		return Safe
	case diff.Update:
		if e.TTLOnly() {
			return Safe
		}
		return Caution
	}
	return Caution
}

// Classified pairs an entry with its label.
type Classified struct {
	diff.Entry
	Risk Label
}

func ClassifyAll(entries []diff.Entry, ctx Context) []Classified {
	out := make([]Classified, 0, len(entries))
	for _, e := range entries {
		out = append(out, Classified{Entry: e, Risk: Classify(e, ctx)})
	}
	return out
}

// Count returns the number of entries per label.
func Count(classified []Classified) map[Label]int {
	counts := map[Label]int{Safe: 0, Caution: 0, Destructive: 0}
	for _, c := range classified {
		counts[c.Risk]++
	}
	return counts
}
