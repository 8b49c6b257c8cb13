package filter

import (
	"strings"

	"github.com/evanofslack/zonesync/internal/record"
)

const (
	defaultTXTPrefix = "extdns-"
	heritageMarker   = "heritage=external-dns"
	ownerMarker      = "external-dns/owner="
)

func init() {
	Register("external-dns", func(settings map[string]string) (Filter, error) {
		return NewExternalDNS(settings["txtPrefix"], settings["ownerId"]), nil
	})
}

// ExternalDNS drops records owned by external-dns. Ownership is declared by
// TXT markers named <prefix><type>.<host> whose value carries the heritage
// marker; the marker and the record it names are both excluded.
type ExternalDNS struct {
	prefix  string
	owner   string
	zone    string
	claimed map[record.Key]bool
}

func NewExternalDNS(prefix, owner string) *ExternalDNS {
	if prefix == "" {
		prefix = defaultTXTPrefix
	}
	return &ExternalDNS{prefix: strings.ToLower(prefix), owner: owner}
}

func (f *ExternalDNS) Name() string { return "external-dns" }

// Bind collects the records claimed by markers found in any of the sets.
func (f *ExternalDNS) Bind(zone string, sets ...record.Set) Filter {
	bound := &ExternalDNS{
		prefix:  f.prefix,
		owner:   f.owner,
		zone:    record.NormalizeName(zone),
		claimed: make(map[record.Key]bool),
	}
	for _, set := range sets {
		for _, r := range set {
			if key, ok := bound.claim(r); ok {
				bound.claimed[key] = true
			}
		}
	}
	return bound
}

func (f *ExternalDNS) Keep(r record.Record) bool {
	if _, ok := f.claim(r); ok {
		return false
	}
	return !f.claimed[r.Key()]
}

// KeepValue strips heritage values left inside shared TXT records.
func (f *ExternalDNS) KeepValue(r record.Record, value string) bool {
	return r.Type != "TXT" || !strings.Contains(value, heritageMarker)
}

// claim reports the key a marker record declares ownership of.
func (f *ExternalDNS) claim(r record.Record) (record.Key, bool) {
	if r.Type != "TXT" || f.zone == "" {
		return record.Key{}, false
	}
	owned := false
	for _, v := range r.Values {
		if !strings.Contains(v, heritageMarker) {
			continue
		}
		if f.owner == "" || strings.Contains(v, ownerMarker+f.owner) {
			owned = true
			break
		}
	}
	if !owned {
		return record.Key{}, false
	}

	host, rtype, ok := ParseMarkerName(record.Relative(r.Name, f.zone), f.prefix, f.zone)
	if !ok || rtype == "" {
		return record.Key{}, false
	}
	return record.Key{Name: record.Qualify(host, f.zone), Type: rtype}, true
}

// ParseMarkerName splits a zone-relative marker name into the host and type
// it claims. Supported forms, for prefix "extdns-":
//
//	extdns-a.www      -> ("www", "A")
//	extdns-a-www      -> ("www", "A")   old dash form
//	extdns-a          -> ("", "A")      apex
//
// In the dash form a host equal to the zone name also means the apex.
func ParseMarkerName(name, prefix, zone string) (host, rtype string, ok bool) {
	name = strings.ToLower(name)
	rest, found := strings.CutPrefix(name, prefix)
	if !found {
		return "", "", false
	}

	if typePart, h, dot := strings.Cut(rest, "."); dot && !strings.Contains(typePart, "-") {
		return h, strings.ToUpper(typePart), true
	}
	if typePart, h, dash := strings.Cut(rest, "-"); dash {
		if h == strings.TrimSuffix(zone, ".") {
			h = ""
		}
		return h, strings.ToUpper(typePart), true
	}
	return "", strings.ToUpper(rest), true
}
