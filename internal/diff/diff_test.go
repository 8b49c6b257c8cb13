package diff

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/evanofslack/zonesync/internal/record"
)

func snapshot(t *testing.T, source string, records ...record.Record) record.Snapshot {
	t.Helper()
	set, err := record.NewSet(records...)
	if err != nil {
		t.Fatalf("building set: %v", err)
	}
	return record.NewSnapshot("example.com.", source, set, time.Unix(0, 0))
}

func a(name string, ttl uint32, values ...string) record.Record {
	return record.Record{Name: name, Type: "A", TTL: ttl, Values: values}
}

func TestComputeSelfIsEmpty(t *testing.T) {
	s := snapshot(t, record.SourceDesired,
		a("www.example.com.", 300, "1.2.3.4", "1.2.3.5"),
		record.Record{Name: "example.com.", Type: "MX", TTL: 300, Values: []string{"10 mx.example.com."}},
	)
	if got := Compute(s, s); len(got) != 0 {
		t.Errorf("expected no entries, got %v", got)
	}
}

func TestComputeKinds(t *testing.T) {
	desired := snapshot(t, record.SourceDesired,
		a("new.example.com.", 300, "1.1.1.1"),
		a("ttl.example.com.", 60, "2.2.2.2"),
		a("vals.example.com.", 300, "3.3.3.3", "3.3.3.4"),
		a("same.example.com.", 300, "4.4.4.4"),
	)
	live := snapshot(t, record.LiveSource("ns1"),
		a("old.example.com.", 300, "5.5.5.5"),
		a("ttl.example.com.", 300, "2.2.2.2"),
		a("vals.example.com.", 300, "3.3.3.4"),
		a("same.example.com.", 300, "4.4.4.4"),
	)

	entries := Compute(desired, live)
	got := make(map[string]Kind)
	for _, e := range entries {
		got[e.Key.Name] = e.Kind
	}
	want := map[string]Kind{
		"new.example.com.":  Create,
		"old.example.com.":  Delete,
		"ttl.example.com.":  Update,
		"vals.example.com.": Update,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("kinds mismatch (-want +got):\n%s", diff)
	}

	for _, e := range entries {
		switch e.Key.Name {
		case "ttl.example.com.":
			if !e.TTLOnly() {
				t.Error("expected ttl entry to be TTL-only")
			}
		case "vals.example.com.":
			if e.TTLOnly() {
				t.Error("value change reported as TTL-only")
			}
			if diff := cmp.Diff([]string{"3.3.3.3"}, e.AddedValues()); diff != "" {
				t.Errorf("added values (-want +got):\n%s", diff)
			}
			if len(e.RemovedValues()) != 0 {
				t.Errorf("unexpected removed values %v", e.RemovedValues())
			}
		}
	}

	if s := Summarize(entries); s != (Summary{Creates: 1, Updates: 2, Deletes: 1}) {
		t.Errorf("summary = %+v", s)
	}
}

func TestComputeRoundTrip(t *testing.T) {
	desired := snapshot(t, record.SourceDesired,
		a("www.example.com.", 300, "1.2.3.4"),
		record.Record{Name: "example.com.", Type: "TXT", TTL: 300, Values: []string{`"v=spf1 -all"`}},
		record.Record{Name: "example.com.", Type: "NS", TTL: 3600, Values: []string{"ns1.example.com.", "ns2.example.com."}},
	)
	live := snapshot(t, record.LiveSource("ns1"),
		a("www.example.com.", 60, "9.9.9.9"),
		a("gone.example.com.", 300, "8.8.8.8"),
		record.Record{Name: "example.com.", Type: "NS", TTL: 3600, Values: []string{"ns1.example.com."}},
	)

	applied := Apply(live.Records(), Compute(desired, live))
	if !applied.Equal(desired.Records()) {
		t.Errorf("applying the diff did not reproduce desired:\n%s", cmp.Diff(desired.Records(), applied))
	}
}

func TestComputeOrdering(t *testing.T) {
	desired := snapshot(t, record.SourceDesired,
		record.Record{Name: "example.com.", Type: "NS", TTL: 3600, Values: []string{"ns1.example.com."}},
		a("app.example.com.", 300, "1.1.1.1"),
		a("b.example.com.", 300, "2.2.2.2"),
		a("c.example.com.", 300, "3.3.3.3"),
	)
	live := snapshot(t, record.LiveSource("ns1"),
		record.Record{Name: "app.example.com.", Type: "CNAME", TTL: 300, Values: []string{"lb.example.net."}},
		a("z.example.com.", 300, "9.9.9.9"),
	)

	var got []string
	for _, e := range Compute(desired, live) {
		got = append(got, string(e.Kind)+" "+e.Key.String())
	}
	want := []string{
		"delete app.example.com./CNAME",
		"create app.example.com./A",
		"create b.example.com./A",
		"create c.example.com./A",
		"delete z.example.com./A",
		"create example.com./NS",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ordering mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	desired := snapshot(t, record.SourceDesired,
		a("a.example.com.", 300, "1.1.1.1"),
		a("b.example.com.", 300, "1.1.1.2"),
		a("c.example.com.", 300, "1.1.1.3"),
	)
	live := snapshot(t, record.LiveSource("ns1"))
	first := Compute(desired, live)
	for i := 0; i < 20; i++ {
		if diff := cmp.Diff(first, Compute(desired, live)); diff != "" {
			t.Fatalf("run %d differed:\n%s", i, diff)
		}
	}
}
