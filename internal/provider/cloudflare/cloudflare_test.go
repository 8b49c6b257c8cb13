package cloudflare

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/cloudflare/cloudflare-go"
	"github.com/google/go-cmp/cmp"

	"github.com/evanofslack/zonesync/internal/diff"
	"github.com/evanofslack/zonesync/internal/logger"
	"github.com/evanofslack/zonesync/internal/metrics"
	"github.com/evanofslack/zonesync/internal/record"
)

type MockAPI struct {
	records   []cloudflare.DNSRecord
	created   []cloudflare.CreateDNSRecordParams
	updated   []cloudflare.UpdateDNSRecordParams
	deleted   []string
	createErr error
	zoneErr   error
	nextID    int
}

func (m *MockAPI) ZoneIDByName(zoneName string) (string, error) {
	return "zone-" + zoneName, m.zoneErr
}

func (m *MockAPI) ListDNSRecords(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.ListDNSRecordsParams) ([]cloudflare.DNSRecord, *cloudflare.ResultInfo, error) {
	var out []cloudflare.DNSRecord
	for _, r := range m.records {
		if r.Name == params.Name && r.Type == params.Type {
			out = append(out, r)
		}
	}
	return out, &cloudflare.ResultInfo{Page: 1, TotalPages: 1}, nil
}

func (m *MockAPI) CreateDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.CreateDNSRecordParams) (cloudflare.DNSRecord, error) {
	if m.createErr != nil {
		return cloudflare.DNSRecord{}, m.createErr
	}
	for _, r := range m.records {
		if r.Name == params.Name && (r.Type == "CNAME" || params.Type == "CNAME") {
			return cloudflare.DNSRecord{}, errors.New("a CNAME record with that host already exists")
		}
	}
	m.nextID++
	r := cloudflare.DNSRecord{ID: fmt.Sprintf("new-%d", m.nextID), Name: params.Name, Type: params.Type, Content: params.Content, TTL: params.TTL}
	m.records = append(m.records, r)
	m.created = append(m.created, params)
	return r, nil
}

func (m *MockAPI) UpdateDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.UpdateDNSRecordParams) (cloudflare.DNSRecord, error) {
	for i, r := range m.records {
		if r.ID == params.ID {
			m.records[i].Content = params.Content
			m.records[i].TTL = params.TTL
		}
	}
	m.updated = append(m.updated, params)
	return cloudflare.DNSRecord{}, nil
}

func (m *MockAPI) DeleteDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, recordID string) error {
	m.records = slices.DeleteFunc(m.records, func(r cloudflare.DNSRecord) bool { return r.ID == recordID })
	m.deleted = append(m.deleted, recordID)
	return nil
}

func rec(name, rtype string, ttl uint32, values ...string) *record.Record {
	return &record.Record{Name: name, Type: rtype, TTL: ttl, Values: values}
}

func TestApplyBatch(t *testing.T) {
	mock := &MockAPI{records: []cloudflare.DNSRecord{
		{ID: "a1", Name: "www.example.com", Type: "A", Content: "1.1.1.1", TTL: 300},
		{ID: "a2", Name: "www.example.com", Type: "A", Content: "2.2.2.2", TTL: 300},
		{ID: "old", Name: "old.example.com", Type: "CNAME", Content: "target.example.net", TTL: 300},
	}}
	p := newWithClient(mock, slog.Default(), metrics.New(false))

	entries := []diff.Entry{
		{Key: record.Key{Name: "example.com.", Type: "MX"}, Kind: diff.Create, After: rec("example.com.", "MX", 300, "10 mx.example.com.")},
		{Key: record.Key{Name: "old.example.com.", Type: "CNAME"}, Kind: diff.Delete, Before: rec("old.example.com.", "CNAME", 300, "target.example.net.")},
		{
			Key:    record.Key{Name: "www.example.com.", Type: "A"},
			Kind:   diff.Update,
			Before: rec("www.example.com.", "A", 300, "1.1.1.1", "2.2.2.2"),
			After:  rec("www.example.com.", "A", 60, "1.1.1.1", "3.3.3.3"),
		},
	}
	res := p.ApplyBatch(context.Background(), "example.com.", entries)

	if len(res.Failed) != 0 {
		t.Fatalf("unexpected failures: %v", res.Failed)
	}
	if len(res.Succeeded) != 3 {
		t.Errorf("succeeded = %d, want 3", len(res.Succeeded))
	}

	if len(mock.created) != 1 {
		t.Fatalf("created = %+v", mock.created)
	}
	mx := mock.created[0]
	if mx.Content != "mx.example.com" || mx.Priority == nil || *mx.Priority != 10 {
		t.Errorf("mx params = %+v", mx)
	}

	if len(mock.deleted) != 1 || mock.deleted[0] != "old" {
		t.Errorf("deleted = %v", mock.deleted)
	}
	if len(mock.updated) != 2 {
		t.Fatalf("updated = %+v", mock.updated)
	}
	if u := mock.updated[0]; u.ID != "a2" || u.Content != "3.3.3.3" || u.TTL != 60 {
		t.Errorf("replaced value params = %+v", u)
	}
	if u := mock.updated[1]; u.ID != "a1" || u.Content != "1.1.1.1" || u.TTL != 60 {
		t.Errorf("ttl update params = %+v", u)
	}
}

func TestApplyBatchSkipsSOA(t *testing.T) {
	tests := []struct {
		name     string
		suppress bool
		wantLog  bool
	}{
		{"warning logged", false, true},
		{"warning suppressed", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			mock := &MockAPI{}
			p := newWithClient(mock, logger.New(&buf, "info", "prod", tt.suppress), metrics.New(false))

			soa := record.Key{Name: "example.com.", Type: "SOA"}
			res := p.ApplyBatch(context.Background(), "example.com.", []diff.Entry{
				{Key: soa, Kind: diff.Create, After: rec("example.com.", "SOA", 3600, "ns1.example.com. admin.example.com. 1 7200 3600 1209600 300")},
			})
			if len(res.Failed) != 0 || len(res.Succeeded) != 1 {
				t.Errorf("result = %+v", res)
			}
			if len(mock.created) != 0 {
				t.Errorf("created = %+v", mock.created)
			}
			if got := strings.Contains(buf.String(), "Unsupported SOA record"); got != tt.wantLog {
				t.Errorf("warning logged = %v, want %v:\n%s", got, tt.wantLog, buf.String())
			}
		})
	}
}

func TestApplyBatchCNAMEChange(t *testing.T) {
	tests := []struct {
		name   string
		before *record.Record
		after  *record.Record
	}{
		{
			name:   "cname target change",
			before: rec("www.example.com.", "CNAME", 300, "lb1.example.net."),
			after:  rec("www.example.com.", "CNAME", 300, "lb2.example.net."),
		},
		{
			name:   "cname target and ttl change",
			before: rec("www.example.com.", "CNAME", 300, "lb1.example.net."),
			after:  rec("www.example.com.", "CNAME", 60, "lb2.example.net."),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockAPI{records: []cloudflare.DNSRecord{
				{ID: "c1", Name: "www.example.com", Type: "CNAME", Content: "lb1.example.net", TTL: 300},
			}}
			p := newWithClient(mock, slog.Default(), metrics.New(false))

			key := record.Key{Name: "www.example.com.", Type: "CNAME"}
			res := p.ApplyBatch(context.Background(), "example.com.", []diff.Entry{
				{Key: key, Kind: diff.Update, Before: tt.before, After: tt.after},
			})
			if len(res.Failed) != 0 {
				t.Fatalf("unexpected failures: %v", res.Failed)
			}
			want := []cloudflare.DNSRecord{{ID: "c1", Name: "www.example.com", Type: "CNAME", Content: "lb2.example.net", TTL: int(tt.after.TTL)}}
			if diff := cmp.Diff(want, mock.records); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyBatchPartialFailure(t *testing.T) {
	mock := &MockAPI{
		records:   []cloudflare.DNSRecord{{ID: "x", Name: "gone.example.com", Type: "A", Content: "1.1.1.1"}},
		createErr: errors.New("rate limited"),
	}
	p := newWithClient(mock, slog.Default(), metrics.New(false))

	create := record.Key{Name: "new.example.com.", Type: "A"}
	del := record.Key{Name: "gone.example.com.", Type: "A"}
	res := p.ApplyBatch(context.Background(), "example.com.", []diff.Entry{
		{Key: create, Kind: diff.Create, After: rec("new.example.com.", "A", 300, "1.2.3.4")},
		{Key: del, Kind: diff.Delete, Before: rec("gone.example.com.", "A", 300, "1.1.1.1")},
	})

	if _, ok := res.Failed[create]; !ok {
		t.Error("expected create to fail")
	}
	if len(res.Succeeded) != 1 || res.Succeeded[0] != del {
		t.Errorf("succeeded = %v", res.Succeeded)
	}
}

func TestApplyBatchUnknownZone(t *testing.T) {
	mock := &MockAPI{zoneErr: errors.New("zone not found")}
	p := newWithClient(mock, slog.Default(), metrics.New(false))

	res := p.ApplyBatch(context.Background(), "missing.org.", []diff.Entry{
		{Key: record.Key{Name: "a.missing.org.", Type: "A"}, Kind: diff.Create, After: rec("a.missing.org.", "A", 300, "1.1.1.1")},
	})
	if len(res.Failed) != 1 || len(res.Succeeded) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestToContent(t *testing.T) {
	tests := []struct {
		name  string
		rtype string
		rname string
		value string
		want  string
	}{
		{"txt unquoted", "TXT", "example.com.", `"v=spf1 -all"`, "v=spf1 -all"},
		{"txt split strings", "TXT", "example.com.", `"abc" "def"`, "abcdef"},
		{"cname trailing dot", "CNAME", "www.example.com.", "lb.example.net.", "lb.example.net"},
		{"a passthrough", "A", "www.example.com.", "1.2.3.4", "1.2.3.4"},
		{"mx", "MX", "example.com.", "20 mx2.example.com.", "20 mx2.example.com"},
		{"srv at service name", "SRV", "_sip._tcp.example.com.", "10 5 5060 sip.example.com.", "10 5 5060 sip.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := record.Record{Name: tt.rname, Type: tt.rtype, TTL: 300, Values: []string{tt.value}}
			c, err := toContent(r, tt.value)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := c.match(); got != tt.want {
				t.Errorf("match = %q, want %q", got, tt.want)
			}
		})
	}
}
