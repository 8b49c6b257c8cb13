package record

import (
	"fmt"
	"math"
	"time"

	"github.com/libdns/libdns"
	"github.com/miekg/dns"
)

// Validate checks r against the record model for the given zone. Values of
// common types are parsed into libdns typed records; every value must also
// be valid presentation-format RDATA.
func (r Record) Validate(zone string) error {
	zone = NormalizeName(zone)
	fail := func(format string, args ...any) error {
		return &MalformedError{Key: r.Key(), Reason: fmt.Sprintf(format, args...)}
	}

	if r.Name == "" || !dns.IsSubDomain(zone, r.Name) {
		return fail("name is outside zone %s", zone)
	}
	if _, ok := dns.StringToType[r.Type]; !ok {
		return fail("unknown record type")
	}
	if len(r.Values) == 0 {
		return fail("no values")
	}
	if uint64(r.TTL) > math.MaxInt32 {
		return fail("ttl %d out of range", r.TTL)
	}
	if (r.Type == "CNAME" || r.Type == "SOA") && len(r.Values) > 1 {
		return fail("%s must have a single value, got %d", r.Type, len(r.Values))
	}
	if r.Type == "SOA" && r.Name != zone {
		return fail("SOA outside the zone apex")
	}

	for _, v := range r.Values {
		if err := r.validateValue(zone, v); err != nil {
			return fail("value %q: %v", v, err)
		}
	}
	return nil
}

func (r Record) rr(value string) (dns.RR, error) {
	return dns.NewRR(fmt.Sprintf("%s %d IN %s %s", r.Name, r.TTL, r.Type, value))
}

func (r Record) validateValue(zone, value string) error {
	if _, err := r.rr(value); err != nil {
		return err
	}

	// SRV is left to dns.NewRR: libdns expects _service._proto.name and
	// rejects SRV records owned directly by the apex.
	switch r.Type {
	case "A", "AAAA", "CNAME", "MX", "NS", "TXT", "CAA":
	default:
		return nil
	}
	parsed, err := r.libdnsRR(zone, value).Parse()
	if err != nil {
		return err
	}
	if addr, ok := parsed.(libdns.Address); ok {
		switch {
		case r.Type == "A" && !addr.IP.Is4():
			return fmt.Errorf("not an IPv4 address")
		case r.Type == "AAAA" && (!addr.IP.Is6() || addr.IP.Is4In6()):
			return fmt.Errorf("not an IPv6 address")
		}
	}
	return nil
}

func (r Record) libdnsRR(zone, value string) libdns.RR {
	return libdns.RR{
		Name: libdns.RelativeName(r.Name, zone),
		TTL:  time.Duration(r.TTL) * time.Second,
		Type: r.Type,
		Data: value,
	}
}

// Priority is the ordering data carried by one MX or SRV value.
type Priority struct {
	Value    string
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

// Priorities parses the priority and weight fields out of MX and SRV values.
func (r Record) Priorities() ([]Priority, error) {
	out := make([]Priority, 0, len(r.Values))
	for _, v := range r.Values {
		parsed, err := r.rr(v)
		if err != nil {
			return nil, fmt.Errorf("parse %s value %q: %w", r.Type, v, err)
		}
		switch p := parsed.(type) {
		case *dns.MX:
			out = append(out, Priority{Value: v, Priority: p.Preference, Target: p.Mx})
		case *dns.SRV:
			out = append(out, Priority{Value: v, Priority: p.Priority, Weight: p.Weight, Port: p.Port, Target: p.Target})
		default:
			return nil, fmt.Errorf("%s records carry no priority", r.Type)
		}
	}
	return out, nil
}
