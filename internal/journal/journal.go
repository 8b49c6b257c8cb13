package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/evanofslack/zonesync/internal/metrics"
)

const applyPrefix = "apply:"

// Entry is the audit record of one apply run for one zone.
type Entry struct {
	RunID     string            `json:"runId"`
	Zone      string            `json:"zone"`
	At        time.Time         `json:"at"`
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
	Forced    bool              `json:"forced"`
}

// Journal is an append-only log of apply outcomes. It is never read back to
// make decisions.
type Journal interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, zone string, limit int) ([]Entry, error)
	Close() error
}

type badgerJournal struct {
	db      *badger.DB
	metrics *metrics.Metrics
}

// Open opens the journal at path. An empty path returns a journal that
// discards appends.
func Open(path string, metrics *metrics.Metrics) (Journal, error) {
	if path == "" {
		return Discard{}, nil
	}
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable Badger's internal logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &badgerJournal{db: db, metrics: metrics}, nil
}

func zonePrefix(zone string) string {
	return applyPrefix + zone + ":"
}

// key sorts by time within a zone; the nanosecond stamp is zero padded.
func key(e Entry) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", zonePrefix(e.Zone), e.At.UnixNano(), e.RunID))
}

func (j *badgerJournal) Append(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		j.metrics.IncJournalRequest("create", false)
		return err
	}
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(e), data)
	})
	j.metrics.IncJournalRequest("create", err == nil)
	return err
}

// List returns up to limit entries for zone, newest first. An empty zone
// lists every zone; limit <= 0 means no limit.
func (j *badgerJournal) List(ctx context.Context, zone string, limit int) ([]Entry, error) {
	prefix := []byte(applyPrefix)
	if zone != "" {
		prefix = []byte(zonePrefix(zone))
	}

	var entries []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return err
				}
				entries = append(entries, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	j.metrics.IncJournalRequest("read", err == nil)
	if err != nil {
		return nil, err
	}

	// keys of different zones interleave, so order by time explicitly
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return b.At.Compare(a.At)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (j *badgerJournal) Close() error {
	return j.db.Close()
}

// Discard is the journal used when no path is configured.
type Discard struct{}

func (Discard) Append(context.Context, Entry) error { return nil }

func (Discard) List(context.Context, string, int) ([]Entry, error) { return nil, nil }

func (Discard) Close() error { return nil }
