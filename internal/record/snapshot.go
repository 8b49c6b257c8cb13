package record

import (
	"strings"
	"time"
)

const (
	SourceDesired  = "desired"
	SourceResolved = "live:resolved"
)

// LiveSource names the snapshot produced by one nameserver.
func LiveSource(nameserver string) string {
	return "live:" + nameserver
}

// Snapshot is the immutable state of one zone as seen from one source.
type Snapshot struct {
	zone    string
	records Set
	source  string
	taken   time.Time
}

// NewSnapshot copies records so later changes to the caller's set are not
// visible through the snapshot.
func NewSnapshot(zone, source string, records Set, taken time.Time) Snapshot {
	if records == nil {
		records = Set{}
	}
	return Snapshot{
		zone:    NormalizeName(zone),
		records: records.Clone(),
		source:  source,
		taken:   taken,
	}
}

func (s Snapshot) Zone() string { return s.zone }
func (s Snapshot) Source() string { return s.source }
func (s Snapshot) Taken() time.Time { return s.taken }
func (s Snapshot) Len() int { return len(s.records) }
func (s Snapshot) Records() Set { return s.records.Clone() }
func (s Snapshot) Keys() []Key { return s.records.Keys() }
func (s Snapshot) HasType(t string) bool { return s.records.HasType(t) }

func (s Snapshot) Get(k Key) (Record, bool) {
	return s.records.Get(k)
}

// IsLive reports whether the snapshot came from a nameserver.
func (s Snapshot) IsLive() bool {
	return strings.HasPrefix(s.source, "live:")
}

// WithRecords returns a snapshot of the same zone and source holding records.
func (s Snapshot) WithRecords(records Set) Snapshot {
	return NewSnapshot(s.zone, s.source, records, s.taken)
}
