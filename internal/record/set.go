package record

import (
	"fmt"
	"maps"
	"slices"
)

// Set maps identity keys to records. A key appears at most once; several
// values of one type at one name are a single Record.
type Set map[Key]Record

// NewSet builds a set from records, rejecting duplicate keys.
func NewSet(records ...Record) (Set, error) {
	s := make(Set, len(records))
	for _, r := range records {
		if err := s.Add(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add normalizes r and inserts it. A second record under the same key or a
// repeated value inside one record is malformed.
func (s Set) Add(r Record) error {
	r = r.Normalize()
	if r.Name == "" || r.Type == "" {
		return &MalformedError{Key: r.Key(), Reason: "empty name or type"}
	}
	if _, exists := s[r.Key()]; exists {
		return &MalformedError{Key: r.Key(), Reason: "duplicate identity key"}
	}
	seen := make(map[string]bool, len(r.Values))
	for _, v := range r.Values {
		if seen[v] {
			return &MalformedError{Key: r.Key(), Reason: fmt.Sprintf("duplicate value %q", v)}
		}
		seen[v] = true
	}
	s[r.Key()] = r
	return nil
}

// Put stores r, replacing any record under the same key.
func (s Set) Put(r Record) {
	r = r.Normalize()
	s[r.Key()] = r
}

func (s Set) Get(k Key) (Record, bool) {
	r, ok := s[k]
	if !ok {
		return Record{}, false
	}
	return r.Clone(), true
}

// Keys returns every key in lexical order.
func (s Set) Keys() []Key {
	keys := slices.Collect(maps.Keys(s))
	slices.SortFunc(keys, Key.Compare)
	return keys
}

// Records returns copies of every record in key order.
func (s Set) Records() []Record {
	out := make([]Record, 0, len(s))
	for _, k := range s.Keys() {
		out = append(out, s[k].Clone())
	}
	return out
}

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, r := range s {
		out[k] = r.Clone()
	}
	return out
}

// Equal compares two sets key by key with order-insensitive values.
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for k, r := range s {
		other, ok := o[k]
		if !ok || !r.Equal(other) {
			return false
		}
	}
	return true
}

// HasType reports whether any record of the given type exists.
func (s Set) HasType(rtype string) bool {
	for k := range s {
		if k.Type == rtype {
			return true
		}
	}
	return false
}
