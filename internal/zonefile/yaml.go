package zonefile

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/evanofslack/zonesync/internal/record"
)

// yamlRecord is one entry of a YAML zone file. A name maps to a single entry
// or a list of them; "" and "@" denote the apex.
type yamlRecord struct {
	Type   string      `yaml:"type"`
	TTL    *uint32     `yaml:"ttl"`
	Value  yaml.Node   `yaml:"value"`
	Values []yaml.Node `yaml:"values"`
}

const maxTXTChunk = 255

func parseYAML(data []byte, source, zone string) (record.Set, error) {
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &record.MalformedError{Source: source, Reason: err.Error()}
	}

	set := make(record.Set)
	for name, node := range doc {
		var entries []yamlRecord
		switch node.Kind {
		case yaml.SequenceNode:
			if err := node.Decode(&entries); err != nil {
				return nil, &record.MalformedError{Source: source, Reason: fmt.Sprintf("name %q: %v", name, err)}
			}
		case yaml.MappingNode:
			var entry yamlRecord
			if err := node.Decode(&entry); err != nil {
				return nil, &record.MalformedError{Source: source, Reason: fmt.Sprintf("name %q: %v", name, err)}
			}
			entries = append(entries, entry)
		default:
			return nil, &record.MalformedError{Source: source, Reason: fmt.Sprintf("name %q: expected a record or a list of records", name)}
		}

		for _, entry := range entries {
			r, err := entry.record(name, zone)
			if err != nil {
				return nil, err
			}
			if err := set.Add(r); err != nil {
				return nil, err
			}
		}
	}
	return set, nil
}

func (y yamlRecord) record(name, zone string) (record.Record, error) {
	r := record.Record{
		Name: record.Qualify(name, zone),
		Type: strings.ToUpper(strings.TrimSpace(y.Type)),
		TTL:  DefaultTTL,
	}
	if y.TTL != nil {
		r.TTL = *y.TTL
	}
	fail := func(format string, args ...any) error {
		return &record.MalformedError{Key: r.Key(), Reason: fmt.Sprintf(format, args...)}
	}
	if r.Type == "" {
		return r, fail("missing type")
	}

	nodes := y.Values
	if y.Value.Kind != 0 {
		nodes = append([]yaml.Node{y.Value}, nodes...)
	}
	if len(nodes) == 0 {
		return r, fail("no values")
	}

	for i := range nodes {
		raw, err := presentation(r.Type, &nodes[i])
		if err != nil {
			return r, fail("%v", err)
		}
		v, err := canonical(r, raw, zone)
		if err != nil {
			return r, fail("value %q: %v", raw, err)
		}
		r.Values = append(r.Values, v)
	}
	return r, nil
}

// presentation turns one YAML value into RDATA text. Scalars are taken as is
// except for TXT, which is quoted when it is not already. MX, SRV and CAA may
// also be written as mappings of their fields.
func presentation(rtype string, node *yaml.Node) (string, error) {
	if node.Kind == yaml.ScalarNode {
		if rtype == "TXT" || rtype == "SPF" {
			return quoteTXT(node.Value), nil
		}
		return node.Value, nil
	}
	if node.Kind != yaml.MappingNode {
		return "", fmt.Errorf("value must be a string or a mapping")
	}

	var fields map[string]string
	if err := node.Decode(&fields); err != nil {
		return "", err
	}
	get := func(names ...string) (string, error) {
		for _, n := range names {
			if v, ok := fields[n]; ok {
				return v, nil
			}
		}
		return "", fmt.Errorf("%s value is missing %q", rtype, names[0])
	}

	var parts []string
	switch rtype {
	case "MX":
		parts = []string{"preference", "exchange"}
	case "SRV":
		parts = []string{"priority", "weight", "port", "target"}
	case "CAA":
		parts = []string{"flags", "tag", "value"}
	default:
		return "", fmt.Errorf("%s values must be strings", rtype)
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		names := []string{p}
		if p == "exchange" {
			names = append(names, "value")
		}
		v, err := get(names...)
		if err != nil {
			return "", err
		}
		if rtype == "CAA" && p == "value" {
			v = quoteTXT(v)
		}
		out = append(out, v)
	}
	return strings.Join(out, " "), nil
}

// quoteTXT quotes an unquoted TXT value, splitting it into 255-byte strings.
func quoteTXT(v string) string {
	if strings.HasPrefix(v, `"`) {
		return v
	}
	var chunks []string
	for len(v) > maxTXTChunk {
		chunks = append(chunks, v[:maxTXTChunk])
		v = v[maxTXTChunk:]
	}
	chunks = append(chunks, v)

	for i, c := range chunks {
		chunks[i] = `"` + strings.ReplaceAll(c, `"`, `\"`) + `"`
	}
	return strings.Join(chunks, " ")
}
