package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/evanofslack/zonesync/internal/diff"
	"github.com/evanofslack/zonesync/internal/metrics"
	"github.com/evanofslack/zonesync/internal/record"
)

// Provider applies diff entries to an authoritative DNS service. ApplyBatch
// reports per key what happened; it never rolls back.
type Provider interface {
	Name() string
	ApplyBatch(ctx context.Context, zone string, entries []diff.Entry) Result
}

// Result is the per-key outcome of one batch.
type Result struct {
	Succeeded []record.Key
	Failed    map[record.Key]error
}

func (r *Result) succeed(k record.Key) {
	r.Succeeded = append(r.Succeeded, k)
}

func (r *Result) fail(k record.Key, err error) {
	if r.Failed == nil {
		r.Failed = make(map[record.Key]error)
	}
	r.Failed[k] = err
}

// ApplyEach runs fn for every entry in order and collects the outcome.
func ApplyEach(ctx context.Context, log *slog.Logger, zone string, entries []diff.Entry, fn func(context.Context, diff.Entry) error) Result {
	var res Result
	for _, e := range entries {
		log.Debug("Start apply entry", "zone", zone, "kind", e.Kind, "name", e.Key.Name, "type", e.Key.Type)
		if err := fn(ctx, e); err != nil {
			log.Error("Failed to apply entry", "zone", zone, "kind", e.Kind, "name", e.Key.Name, "type", e.Key.Type, "error", err)
			res.fail(e.Key, err)
			continue
		}
		res.succeed(e.Key)
	}
	return res
}

// Factory builds a provider from its configured settings.
type Factory func(settings map[string]string, log *slog.Logger, m *metrics.Metrics) (Provider, error)

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

// Register adds a provider type. It is called from init in the provider packages.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("provider: %q already registered", name))
	}
	factories[name] = f
}

func Types() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds a provider of the given type.
func New(typ string, settings map[string]string, log *slog.Logger, m *metrics.Metrics) (Provider, error) {
	mu.Lock()
	f, ok := factories[typ]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider type %q (registered: %v)", typ, Types())
	}
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.New(false)
	}
	p, err := f(settings, log, m)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", typ, err)
	}
	return p, nil
}

var authMarkers = []string{
	"unauthorized",
	"forbidden",
	"invalid token",
	"authentication",
	"api key",
	"credentials",
	"missing env var",
}

// IsCredentialError reports whether err looks like an authentication
// failure at the provider.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
