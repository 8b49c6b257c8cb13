package record

import (
	"fmt"
	"slices"
	"strings"

	"github.com/miekg/dns"
)

// Key identifies a record within a zone snapshot.
type Key struct {
	Name string
	Type string
}

func (k Key) String() string {
	return k.Name + "/" + k.Type
}

// Compare orders keys by name, then type.
func (k Key) Compare(o Key) int {
	if c := strings.Compare(k.Name, o.Name); c != 0 {
		return c
	}
	return strings.Compare(k.Type, o.Type)
}

// Infrastructure reports whether the key holds zone infrastructure (SOA, NS).
func (k Key) Infrastructure() bool {
	return IsInfrastructure(k.Type)
}

func IsInfrastructure(rtype string) bool {
	return rtype == "SOA" || rtype == "NS"
}

// Record is one DNS record set: every value stored under a (name, type) pair.
// Values are presentation-format RDATA; MX and SRV priorities live inside them.
type Record struct {
	Name   string
	Type   string
	TTL    uint32
	Values []string
}

func (r Record) Key() Key {
	return Key{Name: r.Name, Type: r.Type}
}

// Normalize returns a copy with a lower-case fully qualified name, an upper-case
// type and trimmed values.
func (r Record) Normalize() Record {
	out := Record{
		Name:   NormalizeName(r.Name),
		Type:   strings.ToUpper(strings.TrimSpace(r.Type)),
		TTL:    r.TTL,
		Values: make([]string, 0, len(r.Values)),
	}
	for _, v := range r.Values {
		out.Values = append(out.Values, strings.TrimSpace(v))
	}
	return out
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	r.Values = slices.Clone(r.Values)
	return r
}

// SameValues compares value sets without regard to order.
func (r Record) SameValues(o Record) bool {
	if len(r.Values) != len(o.Values) {
		return false
	}
	a := slices.Clone(r.Values)
	b := slices.Clone(o.Values)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// Equal reports whether both records carry the same key, TTL and value set.
func (r Record) Equal(o Record) bool {
	return r.Key() == o.Key() && r.TTL == o.TTL && r.SameValues(o)
}

// HasValue reports whether v is one of the record values.
func (r Record) HasValue(v string) bool {
	return slices.Contains(r.Values, v)
}

func (r Record) String() string {
	return fmt.Sprintf("%s %d %s %v", r.Name, r.TTL, r.Type, r.Values)
}

// NormalizeName lower-cases a name and adds the trailing dot.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	return dns.Fqdn(name)
}

// Qualify turns a zone-relative name into a fully qualified one. "@" and the
// empty string denote the apex; names ending in a dot are already absolute.
func Qualify(name, zone string) string {
	zone = NormalizeName(zone)
	name = strings.TrimSpace(name)
	switch {
	case name == "" || name == "@":
		return zone
	case dns.IsFqdn(name):
		return NormalizeName(name)
	default:
		return NormalizeName(name + "." + zone)
	}
}

// Relative returns name relative to zone, "@" for the apex.
func Relative(name, zone string) string {
	name = NormalizeName(name)
	zone = NormalizeName(zone)
	if name == zone {
		return "@"
	}
	if trimmed, ok := strings.CutSuffix(name, "."+zone); ok {
		return trimmed
	}
	return name
}

// FirstLabel returns the left-most label of a name.
func FirstLabel(name string) string {
	labels := dns.SplitDomainName(name)
	if len(labels) == 0 {
		return ""
	}
	return labels[0]
}
