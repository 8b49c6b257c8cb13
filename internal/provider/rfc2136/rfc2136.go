package rfc2136

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/evanofslack/zonesync/internal/diff"
	"github.com/evanofslack/zonesync/internal/metrics"
	"github.com/evanofslack/zonesync/internal/provider"
	"github.com/evanofslack/zonesync/internal/record"
)

const (
	name           = "rfc2136"
	defaultTimeout = 10 * time.Second
)

func init() {
	provider.Register(name, func(settings map[string]string, log *slog.Logger, m *metrics.Metrics) (provider.Provider, error) {
		timeout := defaultTimeout
		if s := settings["timeout"]; s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("parse timeout %q: %w", s, err)
			}
			timeout = d
		}
		return New(Config{
			Server:    settings["server"],
			KeyName:   settings["keyName"],
			Secret:    settings["secret"],
			Algorithm: settings["algorithm"],
			Timeout:   timeout,
		}, log, m)
	})
}

type Config struct {
	Server    string
	KeyName   string
	Secret    string
	Algorithm string
	Timeout   time.Duration
}

// Provider sends dynamic updates (RFC 2136) to a primary server. Each key is
// one UPDATE message, so every key is applied atomically on its own.
type Provider struct {
	cfg     Config
	client  *dns.Client
	log     *slog.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, log *slog.Logger, m *metrics.Metrics) (*Provider, error) {
	if cfg.Server == "" {
		return nil, fmt.Errorf("server address required")
	}
	if _, _, err := net.SplitHostPort(cfg.Server); err != nil {
		cfg.Server = net.JoinHostPort(cfg.Server, "53")
	}
	if cfg.KeyName != "" && cfg.Secret == "" {
		return nil, fmt.Errorf("tsig secret required for key %s (missing credentials)", cfg.KeyName)
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = dns.HmacSHA256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	client := &dns.Client{Net: "tcp", Timeout: cfg.Timeout}
	if cfg.KeyName != "" {
		cfg.KeyName = dns.Fqdn(cfg.KeyName)
		client.TsigSecret = map[string]string{cfg.KeyName: cfg.Secret}
	}
	return &Provider{cfg: cfg, client: client, log: log, metrics: m}, nil
}

func (p *Provider) Name() string { return name }

func (p *Provider) ApplyBatch(ctx context.Context, zone string, entries []diff.Entry) provider.Result {
	zone = record.NormalizeName(zone)
	return provider.ApplyEach(ctx, p.log, zone, entries, func(ctx context.Context, e diff.Entry) error {
		// Servers ignore deletion of the apex NS RRset (RFC 2136 3.4.2.4).
		if e.Kind == diff.Delete && e.Key == (record.Key{Name: zone, Type: "NS"}) {
			p.log.Warn("Root NS record supported, but no record is configured, skipping", "zone", zone)
			return nil
		}
		msg, err := p.message(zone, e)
		if err != nil {
			return err
		}
		return p.send(ctx, zone, e, msg)
	})
}

func (p *Provider) message(zone string, e diff.Entry) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetUpdate(zone)

	switch e.Kind {
	case diff.Create:
		rrs, err := toRRs(*e.After)
		if err != nil {
			return nil, err
		}
		msg.Insert(rrs)
	case diff.Delete:
		msg.RemoveRRset([]dns.RR{&dns.ANY{Hdr: dns.RR_Header{Name: e.Key.Name, Rrtype: dns.StringToType[e.Key.Type], Class: dns.ClassINET}}})
	case diff.Update:
		rrs, err := toRRs(*e.After)
		if err != nil {
			return nil, err
		}
		msg.RemoveRRset(rrs[:1])
		msg.Insert(rrs)
	}

	if p.cfg.KeyName != "" {
		msg.SetTsig(p.cfg.KeyName, dns.Fqdn(strings.ToLower(p.cfg.Algorithm)), 300, time.Now().Unix())
	}
	return msg, nil
}

func (p *Provider) send(ctx context.Context, zone string, e diff.Entry, msg *dns.Msg) error {
	op := string(e.Kind)
	p.log.Info("Sending DNS update", "zone", zone, "server", p.cfg.Server, "kind", e.Kind, "name", e.Key.Name, "type", e.Key.Type)
	start := time.Now()

	resp, _, err := p.client.ExchangeContext(ctx, msg, p.cfg.Server)
	if err != nil {
		p.metrics.IncProviderRequest(name, op, zone, false)
		return fmt.Errorf("send update: %w", err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		p.metrics.IncProviderRequest(name, op, zone, false)
		return fmt.Errorf("update rejected: %s", dns.RcodeToString[resp.Rcode])
	}
	p.metrics.IncProviderRequest(name, op, zone, true)
	p.log.Debug("Applied DNS update", "zone", zone, "name", e.Key.Name, "type", e.Key.Type, "duration", time.Since(start))
	return nil
}

func toRRs(r record.Record) ([]dns.RR, error) {
	rrs := make([]dns.RR, 0, len(r.Values))
	for _, v := range r.Values {
		rr, err := dns.NewRR(fmt.Sprintf("%s %d IN %s %s", r.Name, r.TTL, r.Type, v))
		if err != nil {
			return nil, fmt.Errorf("build %s record: %w", r.Key(), err)
		}
		rrs = append(rrs, rr)
	}
	if len(rrs) == 0 {
		return nil, fmt.Errorf("%s has no values", r.Key())
	}
	return rrs, nil
}
