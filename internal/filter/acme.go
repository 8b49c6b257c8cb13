package filter

import (
	"strings"

	"github.com/evanofslack/zonesync/internal/record"
)

const acmeLabel = "_acme-challenge"

func init() {
	Register("acme", func(map[string]string) (Filter, error) { return Acme{}, nil })
	Register("soa", func(map[string]string) (Filter, error) { return SOA{}, nil })
}

// Acme drops ACME validation records, which certificate authorities
// create and remove on their own schedule.
type Acme struct{}

func (Acme) Name() string { return "acme" }

func (Acme) Keep(r record.Record) bool {
	return !strings.HasPrefix(record.FirstLabel(r.Name), acmeLabel)
}

// SOA drops SOA records; their serials never match between file and server.
type SOA struct{}

func (SOA) Name() string { return "soa" }

func (SOA) Keep(r record.Record) bool {
	return r.Type != "SOA"
}
