package zonefile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/miekg/dns"

	"github.com/evanofslack/zonesync/internal/record"
)

// DefaultTTL applies to records that declare no TTL of their own.
const DefaultTTL = 3600

// Load reads the desired state of zone from path. Files ending in .yaml or
// .yml use the YAML layout; anything else is parsed as an RFC 1035 master file
// with the zone as origin.
func Load(path, zone string) (record.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zone file: %w", err)
	}
	zone = record.NormalizeName(zone)

	var set record.Set
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		set, err = parseYAML(data, path, zone)
	default:
		set, err = parseMaster(data, path, zone)
	}
	if err != nil {
		var malformed *record.MalformedError
		if errors.As(err, &malformed) && malformed.Source == "" {
			malformed.Source = path
		}
		return nil, err
	}
	return set, nil
}

func parseMaster(data []byte, source, zone string) (record.Set, error) {
	zp := dns.NewZoneParser(bytes.NewReader(data), zone, source)
	zp.SetDefaultTTL(DefaultTTL)

	var rrs []dns.RR
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		rrs = append(rrs, rr)
	}
	if err := zp.Err(); err != nil {
		return nil, &record.MalformedError{Source: source, Reason: err.Error()}
	}
	return record.FromRRs(source, rrs)
}

// canonical parses one value the way a master file line would be parsed, so
// values from YAML compare equal to values read from a nameserver.
func canonical(r record.Record, value, zone string) (string, error) {
	line := fmt.Sprintf("%s %d IN %s %s", r.Name, r.TTL, r.Type, value)
	zp := dns.NewZoneParser(strings.NewReader(line), zone, "")
	rr, ok := zp.Next()
	if !ok {
		if err := zp.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("empty value")
	}
	return record.Value(rr), nil
}

// ApexNameservers returns the NS values at the zone apex without their
// trailing dot.
func ApexNameservers(set record.Set, zone string) []string {
	r, ok := set.Get(record.Key{Name: record.NormalizeName(zone), Type: "NS"})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(r.Values))
	for _, v := range r.Values {
		out = append(out, strings.TrimSuffix(v, "."))
	}
	return out
}
