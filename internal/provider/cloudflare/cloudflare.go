package cloudflare

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/miekg/dns"

	"github.com/evanofslack/zonesync/internal/diff"
	"github.com/evanofslack/zonesync/internal/metrics"
	"github.com/evanofslack/zonesync/internal/provider"
	"github.com/evanofslack/zonesync/internal/record"
)

const name = "cloudflare"

func init() {
	provider.Register(name, func(settings map[string]string, log *slog.Logger, m *metrics.Metrics) (provider.Provider, error) {
		return New(settings["token"], log, m)
	})
}

// api is the part of the cloudflare client the provider uses.
type api interface {
	ZoneIDByName(zoneName string) (string, error)
	ListDNSRecords(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.ListDNSRecordsParams) ([]cloudflare.DNSRecord, *cloudflare.ResultInfo, error)
	CreateDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.CreateDNSRecordParams) (cloudflare.DNSRecord, error)
	UpdateDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.UpdateDNSRecordParams) (cloudflare.DNSRecord, error)
	DeleteDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, recordID string) error
}

type CloudflareProvider struct {
	client  api
	log     *slog.Logger
	metrics *metrics.Metrics
	zones   map[string]string // Cache zone name to ID mapping
}

func New(token string, log *slog.Logger, metrics *metrics.Metrics) (*CloudflareProvider, error) {
	if token == "" {
		return nil, fmt.Errorf("cloudflare API token required")
	}

	client, err := cloudflare.NewWithAPIToken(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloudflare client: %w", err)
	}
	return newWithClient(client, log, metrics), nil
}

func newWithClient(client api, log *slog.Logger, metrics *metrics.Metrics) *CloudflareProvider {
	return &CloudflareProvider{
		client:  client,
		log:     log,
		metrics: metrics,
		zones:   make(map[string]string),
	}
}

func (p *CloudflareProvider) Name() string { return name }

func (p *CloudflareProvider) zoneID(zone string) (string, error) {
	if id, ok := p.zones[zone]; ok {
		return id, nil
	}
	id, err := p.client.ZoneIDByName(strings.TrimSuffix(zone, "."))
	if err != nil {
		return "", fmt.Errorf("failed to get zone ID for %s: %w", zone, err)
	}
	p.zones[zone] = id
	return id, nil
}

// ApplyBatch applies entries one by one. Cloudflare stores one record per
// value, so a key maps onto several API records.
func (p *CloudflareProvider) ApplyBatch(ctx context.Context, zone string, entries []diff.Entry) provider.Result {
	zoneID, err := p.zoneID(zone)
	if err != nil {
		res := provider.Result{Failed: make(map[record.Key]error, len(entries))}
		for _, e := range entries {
			res.Failed[e.Key] = err
		}
		return res
	}
	rc := cloudflare.ZoneIdentifier(zoneID)

	return provider.ApplyEach(ctx, p.log, zone, entries, func(ctx context.Context, e diff.Entry) error {
		// Cloudflare owns the SOA and has no API for it.
		if e.Key.Type == "SOA" {
			p.log.Warn("Unsupported SOA record, skipping", "zone", zone, "name", e.Key.Name, "kind", e.Kind)
			return nil
		}
		if e.Kind == diff.Create {
			return p.createValues(ctx, rc, zone, *e.After, e.After.Values)
		}
		existing, err := p.listRecords(ctx, rc, zone, e.Key)
		if err != nil {
			return err
		}
		switch e.Kind {
		case diff.Delete:
			return p.deleteRecords(ctx, rc, zone, existing)
		default:
			return p.update(ctx, rc, zone, e, existing)
		}
	})
}

func (p *CloudflareProvider) listRecords(ctx context.Context, rc *cloudflare.ResourceContainer, zone string, key record.Key) ([]cloudflare.DNSRecord, error) {
	start := time.Now()

	// Get all records for the key with pagination
	var allRecords []cloudflare.DNSRecord
	page := 1
	for {
		params := cloudflare.ListDNSRecordsParams{
			Name: strings.TrimSuffix(key.Name, "."),
			Type: key.Type,
			ResultInfo: cloudflare.ResultInfo{
				Page:    page,
				PerPage: 100,
			},
		}

		records, resultInfo, err := p.client.ListDNSRecords(ctx, rc, params)
		if err != nil {
			p.metrics.IncProviderRequest(name, "read", zone, false)
			return nil, fmt.Errorf("failed to list DNS records: %w", err)
		}

		allRecords = append(allRecords, records...)
		if resultInfo == nil || page >= resultInfo.TotalPages {
			break
		}
		page++
	}

	p.metrics.IncProviderRequest(name, "read", zone, true)
	p.log.Debug("Retrieved DNS records", "zone", zone, "key", key.String(), "count", len(allRecords), "duration", time.Since(start))
	return allRecords, nil
}

func (p *CloudflareProvider) update(ctx context.Context, rc *cloudflare.ResourceContainer, zone string, e diff.Entry, existing []cloudflare.DNSRecord) error {
	want := make(map[string]bool)
	for _, v := range e.After.Values {
		c, err := toContent(*e.After, v)
		if err != nil {
			return err
		}
		want[c.match()] = true
	}

	var stale, kept []cloudflare.DNSRecord
	have := make(map[string]bool)
	for _, r := range existing {
		m := matchKey(r)
		if want[m] {
			kept = append(kept, r)
			have[m] = true
			continue
		}
		stale = append(stale, r)
	}

	var added []string
	for _, v := range e.After.Values {
		c, _ := toContent(*e.After, v)
		if !have[c.match()] {
			added = append(added, v)
		}
	}

	// Stale records are rewritten in place so a name never holds a second
	// CNAME; leftovers are deleted before anything is created.
	n := min(len(stale), len(added))
	for i := 0; i < n; i++ {
		if err := p.replaceValue(ctx, rc, zone, stale[i], *e.After, added[i]); err != nil {
			return err
		}
	}
	if err := p.deleteRecords(ctx, rc, zone, stale[n:]); err != nil {
		return err
	}
	if err := p.createValues(ctx, rc, zone, *e.After, added[n:]); err != nil {
		return err
	}
	for _, r := range kept {
		if r.TTL == int(e.After.TTL) {
			continue
		}
		if err := p.updateTTL(ctx, rc, zone, r, int(e.After.TTL)); err != nil {
			return err
		}
	}
	return nil
}

func (p *CloudflareProvider) createValues(ctx context.Context, rc *cloudflare.ResourceContainer, zone string, r record.Record, values []string) error {
	for _, v := range values {
		c, err := toContent(r, v)
		if err != nil {
			return err
		}
		p.log.Info("Creating DNS record", "zone", zone, "name", r.Name, "type", r.Type, "data", v)
		start := time.Now()

		params := cloudflare.CreateDNSRecordParams{
			Type:     r.Type,
			Name:     strings.TrimSuffix(r.Name, "."),
			Content:  c.content,
			Priority: c.priority,
			TTL:      int(r.TTL),
		}
		if c.data != nil {
			params.Data = c.data
		}
		if _, err := p.client.CreateDNSRecord(ctx, rc, params); err != nil {
			p.metrics.IncProviderRequest(name, "create", zone, false)
			return fmt.Errorf("failed to create DNS record: %w", err)
		}
		p.metrics.IncProviderRequest(name, "create", zone, true)
		p.log.Debug("Created DNS record", "zone", zone, "name", r.Name, "type", r.Type, "duration", time.Since(start))
	}
	return nil
}

func (p *CloudflareProvider) replaceValue(ctx context.Context, rc *cloudflare.ResourceContainer, zone string, old cloudflare.DNSRecord, r record.Record, value string) error {
	c, err := toContent(r, value)
	if err != nil {
		return err
	}
	p.log.Info("Updating DNS record", "zone", zone, "name", r.Name, "type", r.Type, "from", old.Content, "data", value)

	params := cloudflare.UpdateDNSRecordParams{
		ID:       old.ID,
		Type:     r.Type,
		Name:     strings.TrimSuffix(r.Name, "."),
		Content:  c.content,
		Priority: c.priority,
		TTL:      int(r.TTL),
	}
	if c.data != nil {
		params.Data = c.data
	}
	return p.updateRecord(ctx, rc, zone, params)
}

func (p *CloudflareProvider) updateTTL(ctx context.Context, rc *cloudflare.ResourceContainer, zone string, r cloudflare.DNSRecord, ttl int) error {
	p.log.Info("Updating DNS record", "zone", zone, "name", r.Name, "type", r.Type, "ttl", ttl)

	return p.updateRecord(ctx, rc, zone, cloudflare.UpdateDNSRecordParams{
		ID:       r.ID,
		Type:     r.Type,
		Name:     r.Name,
		Content:  r.Content,
		Data:     r.Data,
		Priority: r.Priority,
		TTL:      ttl,
	})
}

func (p *CloudflareProvider) updateRecord(ctx context.Context, rc *cloudflare.ResourceContainer, zone string, params cloudflare.UpdateDNSRecordParams) error {
	if _, err := p.client.UpdateDNSRecord(ctx, rc, params); err != nil {
		p.metrics.IncProviderRequest(name, "update", zone, false)
		return fmt.Errorf("failed to update DNS record: %w", err)
	}
	p.metrics.IncProviderRequest(name, "update", zone, true)
	return nil
}

func (p *CloudflareProvider) deleteRecords(ctx context.Context, rc *cloudflare.ResourceContainer, zone string, records []cloudflare.DNSRecord) error {
	for _, r := range records {
		p.log.Info("Deleting DNS record", "zone", zone, "name", r.Name, "type", r.Type, "data", r.Content)
		if err := p.client.DeleteDNSRecord(ctx, rc, r.ID); err != nil {
			p.metrics.IncProviderRequest(name, "delete", zone, false)
			return fmt.Errorf("failed to delete DNS record: %w", err)
		}
		p.metrics.IncProviderRequest(name, "delete", zone, true)
	}
	return nil
}

// content is one value in the shape the Cloudflare API expects.
type content struct {
	content  string
	priority *uint16
	data     map[string]any
}

func (c content) match() string {
	return matchParts(c.content, c.priority, c.data)
}

func matchKey(r cloudflare.DNSRecord) string {
	var data map[string]any
	if m, ok := r.Data.(map[string]any); ok {
		data = m
	}
	return matchParts(r.Content, r.Priority, data)
}

func matchParts(c string, priority *uint16, data map[string]any) string {
	if data != nil {
		return fmt.Sprintf("%v %v %v %v", data["priority"], data["weight"], data["port"], strings.TrimSuffix(fmt.Sprint(data["target"]), "."))
	}
	c = strings.TrimSuffix(strings.Trim(c, `"`), ".")
	if priority != nil {
		return fmt.Sprintf("%d %s", *priority, c)
	}
	return c
}

func toContent(r record.Record, value string) (content, error) {
	switch r.Type {
	case "MX", "SRV":
		single := r
		single.Values = []string{value}
		prios, err := single.Priorities()
		if err != nil {
			return content{}, err
		}
		pr := prios[0]
		if r.Type == "MX" {
			return content{content: strings.TrimSuffix(pr.Target, "."), priority: &pr.Priority}, nil
		}
		return content{data: map[string]any{
			"priority": pr.Priority,
			"weight":   pr.Weight,
			"port":     pr.Port,
			"target":   strings.TrimSuffix(pr.Target, "."),
		}}, nil
	case "TXT":
		rr, err := dns.NewRR(fmt.Sprintf("%s 0 IN TXT %s", r.Name, value))
		if err != nil {
			return content{}, err
		}
		return content{content: strings.Join(rr.(*dns.TXT).Txt, "")}, nil
	case "CNAME", "NS", "PTR":
		return content{content: strings.TrimSuffix(value, ".")}, nil
	}
	return content{content: value}, nil
}
