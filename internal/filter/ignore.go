package filter

import (
	"fmt"
	"strings"

	"github.com/evanofslack/zonesync/internal/record"
)

func init() {
	Register("ignore", newIgnore)
}

// Ignore drops records by name or type. Names may be relative to the zone
// and may start with "*." to match every name below a suffix.
type Ignore struct {
	names []string
	types map[string]bool
	zone  string
}

func newIgnore(settings map[string]string) (Filter, error) {
	f := &Ignore{types: make(map[string]bool)}
	for _, n := range splitList(settings["names"]) {
		f.names = append(f.names, strings.ToLower(n))
	}
	for _, t := range splitList(settings["types"]) {
		f.types[strings.ToUpper(t)] = true
	}
	if len(f.names) == 0 && len(f.types) == 0 {
		return nil, fmt.Errorf("at least one of names or types is required")
	}
	return f, nil
}

func (f *Ignore) Name() string { return "ignore" }

// Bind qualifies relative names against the zone.
func (f *Ignore) Bind(zone string, _ ...record.Set) Filter {
	return &Ignore{names: f.names, types: f.types, zone: record.NormalizeName(zone)}
}

func (f *Ignore) Keep(r record.Record) bool {
	if f.types[r.Type] {
		return false
	}
	for _, pattern := range f.names {
		if f.matches(pattern, r.Name) {
			return false
		}
	}
	return true
}

func (f *Ignore) matches(pattern, name string) bool {
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return strings.HasSuffix(name, "."+f.qualify(suffix))
	}
	return name == f.qualify(pattern)
}

func (f *Ignore) qualify(name string) string {
	if f.zone == "" || strings.HasSuffix(name, ".") {
		return record.NormalizeName(name)
	}
	return record.Qualify(name, f.zone)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	}) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
