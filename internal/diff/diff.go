package diff

import (
	"fmt"
	"slices"
	"strings"

	"github.com/evanofslack/zonesync/internal/record"
)

type Kind string

const (
	Create Kind = "create"
	Update Kind = "update"
	Delete Kind = "delete"
)

// Entry is one change needed to turn the live state into the desired state.
// Before is nil for creates, After is nil for deletes.
type Entry struct {
	Key    record.Key
	Kind   Kind
	Before *record.Record
	After  *record.Record
}

// TTLOnly reports whether an update changes nothing but the TTL.
func (e Entry) TTLOnly() bool {
	return e.Kind == Update && e.Before.SameValues(*e.After) && e.Before.TTL != e.After.TTL
}

// AddedValues lists values present after the change but not before.
func (e Entry) AddedValues() []string {
	switch e.Kind {
	case Create:
		return slices.Clone(e.After.Values)
	case Update:
		return missing(e.After.Values, e.Before)
	}
	return nil
}

// RemovedValues lists values present before the change but not after.
func (e Entry) RemovedValues() []string {
	switch e.Kind {
	case Delete:
		return slices.Clone(e.Before.Values)
	case Update:
		return missing(e.Before.Values, e.After)
	}
	return nil
}

func (e Entry) String() string {
	switch e.Kind {
	case Create:
		return fmt.Sprintf("create %s %v", e.Key, e.After.Values)
	case Delete:
		return fmt.Sprintf("delete %s", e.Key)
	default:
		return fmt.Sprintf("update %s %v -> %v", e.Key, e.Before.Values, e.After.Values)
	}
}

func missing(values []string, from *record.Record) []string {
	var out []string
	for _, v := range values {
		if !from.HasValue(v) {
			out = append(out, v)
		}
	}
	return out
}

// Compute returns the entries that transform live into desired. Both
// snapshots must describe the same zone. Identical records produce no entry.
func Compute(desired, live record.Snapshot) []Entry {
	keys := make(map[record.Key]struct{})
	for _, k := range desired.Keys() {
		keys[k] = struct{}{}
	}
	for _, k := range live.Keys() {
		keys[k] = struct{}{}
	}

	entries := make([]Entry, 0)
	for k := range keys {
		want, inDesired := desired.Get(k)
		have, inLive := live.Get(k)
		switch {
		case inDesired && !inLive:
			entries = append(entries, Entry{Key: k, Kind: Create, After: &want})
		case !inDesired && inLive:
			entries = append(entries, Entry{Key: k, Kind: Delete, Before: &have})
		case !want.Equal(have):
			entries = append(entries, Entry{Key: k, Kind: Update, Before: &have, After: &want})
		}
	}
	Sort(entries)
	return entries
}

// Sort orders entries for application: zone infrastructure last, deletions
// ahead of other changes at the same name, then name and type.
func Sort(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if ai, bi := a.Key.Infrastructure(), b.Key.Infrastructure(); ai != bi {
			if ai {
				return 1
			}
			return -1
		}
		if c := strings.Compare(a.Key.Name, b.Key.Name); c != 0 {
			return c
		}
		if ad, bd := a.Kind == Delete, b.Kind == Delete; ad != bd {
			if ad {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Key.Type, b.Key.Type)
	})
}

// Summary counts entries per kind.
type Summary struct {
	Creates int
	Updates int
	Deletes int
}

func Summarize(entries []Entry) Summary {
	var s Summary
	for _, e := range entries {
		switch e.Kind {
		case Create:
			s.Creates++
		case Update:
			s.Updates++
		case Delete:
			s.Deletes++
		}
	}
	return s
}

func (s Summary) Total() int {
	return s.Creates + s.Updates + s.Deletes
}

// Apply returns a copy of set with entries applied.
func Apply(set record.Set, entries []Entry) record.Set {
	out := set.Clone()
	for _, e := range entries {
		switch e.Kind {
		case Create, Update:
			out.Put(e.After.Clone())
		case Delete:
			delete(out, e.Key)
		}
	}
	return out
}
