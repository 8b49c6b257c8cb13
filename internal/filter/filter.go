package filter

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/evanofslack/zonesync/internal/record"
)

// Filter is a pure predicate that keeps a record under this tool's
// management. Records failing any filter are invisible to the diff.
type Filter interface {
	Name() string
	Keep(r record.Record) bool
}

// ValueFilter strips individual values from records that are otherwise kept.
// A record left without values is excluded.
type ValueFilter interface {
	KeepValue(r record.Record, value string) bool
}

// Binder is implemented by filters that need zone context, such as sibling
// ownership records, before they can decide. Bind must not retain the sets.
type Binder interface {
	Bind(zone string, sets ...record.Set) Filter
}

// Factory builds a filter from its configured settings.
type Factory func(settings map[string]string) (Filter, error)

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

// Register adds a named filter. It is called from init in the filter files.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("filter: %q already registered", name))
	}
	factories[name] = f
}

// Names lists the registered filters.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the named filter.
func New(name string, settings map[string]string) (Filter, error) {
	mu.Lock()
	f, ok := factories[name]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown filter %q (registered: %v)", name, Names())
	}
	if settings == nil {
		settings = map[string]string{}
	}
	filter, err := f(settings)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", name, err)
	}
	return filter, nil
}

// Pipeline is the ordered list of configured filters.
type Pipeline struct {
	filters []Filter
	log     *slog.Logger
}

func NewPipeline(log *slog.Logger, filters ...Filter) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{filters: slices.Clone(filters), log: log}
}

// Filters returns the names of the filters in application order.
func (p *Pipeline) Filters() []string {
	names := make([]string, 0, len(p.filters))
	for _, f := range p.filters {
		names = append(names, f.Name())
	}
	return names
}

// Bind resolves context-dependent filters against the union of the given
// record sets. The result is fixed for the run and applied to both sides.
func (p *Pipeline) Bind(zone string, sets ...record.Set) *Bound {
	bound := make([]Filter, 0, len(p.filters))
	for _, f := range p.filters {
		if b, ok := f.(Binder); ok {
			bound = append(bound, b.Bind(zone, sets...))
			continue
		}
		bound = append(bound, f)
	}
	return &Bound{filters: bound, log: p.log}
}

// Bound is a pipeline whose predicates no longer depend on zone content.
type Bound struct {
	filters []Filter
	log     *slog.Logger
}

// Stats counts excluded records and stripped values per filter.
type Stats struct {
	Excluded map[string]int
	Stripped map[string]int
}

func (s Stats) Total() int {
	n := 0
	for _, c := range s.Excluded {
		n += c
	}
	return n
}

// Keep runs r through every filter. It returns the record with stripped
// values and whether it survived.
func (b *Bound) Keep(r record.Record) (record.Record, bool) {
	out, ok, _, _ := b.keep(r)
	return out, ok
}

func (b *Bound) keep(r record.Record) (record.Record, bool, string, map[string]int) {
	for _, f := range b.filters {
		if !f.Keep(r) {
			return r, false, f.Name(), nil
		}
	}

	var stripped map[string]int
	values := make([]string, 0, len(r.Values))
	for _, v := range r.Values {
		keep := true
		for _, f := range b.filters {
			vf, ok := f.(ValueFilter)
			if ok && !vf.KeepValue(r, v) {
				if stripped == nil {
					stripped = make(map[string]int)
				}
				stripped[f.Name()]++
				keep = false
				break
			}
		}
		if keep {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return r, false, "", stripped
	}
	out := r.Clone()
	out.Values = values
	return out, true, "", stripped
}

// ApplySet filters a record set.
func (b *Bound) ApplySet(set record.Set) (record.Set, Stats) {
	stats := Stats{Excluded: map[string]int{}, Stripped: map[string]int{}}
	out := make(record.Set, len(set))
	for _, k := range set.Keys() {
		r, ok, by, stripped := b.keep(set[k])
		for name, n := range stripped {
			stats.Stripped[name] += n
		}
		if !ok {
			if by != "" {
				stats.Excluded[by]++
			}
			continue
		}
		out[k] = r
	}
	return out, stats
}

// Apply filters a snapshot and logs what each filter removed.
func (b *Bound) Apply(s record.Snapshot) (record.Snapshot, Stats) {
	set, stats := b.ApplySet(s.Records())
	for _, f := range b.filters {
		name := f.Name()
		if stats.Excluded[name] > 0 || stats.Stripped[name] > 0 {
			b.log.Info("Filter removed records",
				"filter", name,
				"zone", s.Zone(),
				"source", s.Source(),
				"records", stats.Excluded[name],
				"values", stats.Stripped[name])
		}
	}
	return s.WithRecords(set), stats
}
