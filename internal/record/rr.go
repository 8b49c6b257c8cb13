package record

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// signed types are produced by the server and never declared in zone files
var skipTypes = map[uint16]bool{
	dns.TypeRRSIG:      true,
	dns.TypeNSEC:       true,
	dns.TypeNSEC3:      true,
	dns.TypeNSEC3PARAM: true,
}

// FromRRs folds wire RRs into one record per key. A key's TTL is the lowest
// TTL among its RRs. Only the first SOA is kept, so the closing SOA of a zone
// transfer is dropped.
func FromRRs(source string, rrs []dns.RR) (Set, error) {
	set := make(Set)
	seenSOA := false
	for _, rr := range rrs {
		h := rr.Header()
		if skipTypes[h.Rrtype] {
			continue
		}
		if h.Rrtype == dns.TypeSOA {
			if seenSOA {
				continue
			}
			seenSOA = true
		}
		rtype, ok := dns.TypeToString[h.Rrtype]
		if !ok {
			return nil, &MalformedError{
				Key:    Key{Name: NormalizeName(h.Name), Type: fmt.Sprintf("TYPE%d", h.Rrtype)},
				Source: source,
				Reason: "unknown record type",
			}
		}

		r := Record{Name: h.Name, Type: rtype, TTL: h.Ttl, Values: []string{Value(rr)}}.Normalize()
		existing, ok := set[r.Key()]
		if !ok {
			set[r.Key()] = r
			continue
		}
		existing.TTL = min(existing.TTL, r.TTL)
		if !existing.HasValue(r.Values[0]) {
			existing.Values = append(existing.Values, r.Values[0])
		}
		set[r.Key()] = existing
	}
	return set, nil
}

// Value returns the presentation RDATA of rr without its header.
func Value(rr dns.RR) string {
	return strings.TrimPrefix(rr.String(), rr.Header().String())
}
