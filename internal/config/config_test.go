package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/evanofslack/zonesync/internal/gate"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sample = `
log:
  level: debug
  env: dev
zones:
  - name: example.com
    nameservers: [ns1.example.com, ns2.example.com]
    minReachable: 2
    thresholds:
      maxDestructive: 0
  - name: example.org.
    file: other/example.org.zone
    provider: cf
nameservers:
  timeout: 5s
  primary: ns1.example.com
  tsig:
    keyName: transfer
    secret: c2VjcmV0
thresholds:
  maxChangeRatio: 0.5
providers:
  cf:
    type: cloudflare
    settings:
      token: env/CF_TOKEN
journal:
  path: /var/lib/zonesync
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Env != "dev" || !cfg.Log.Suppress() {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Nameservers.Timeout != 5*time.Second || cfg.Nameservers.MinReachable != 1 {
		t.Errorf("nameservers = %+v", cfg.Nameservers)
	}
	if cfg.Nameservers.TSIG == nil || cfg.Nameservers.TSIG.KeyName != "transfer" {
		t.Errorf("tsig = %+v", cfg.Nameservers.TSIG)
	}

	com, ok := cfg.Zone("EXAMPLE.com")
	if !ok {
		t.Fatal("example.com not found")
	}
	if com.Provider != "default" {
		t.Errorf("provider = %q", com.Provider)
	}
	if got, want := cfg.ZoneFile(com), filepath.Join("zones", "example.com.yaml"); got != want {
		t.Errorf("ZoneFile = %q, want %q", got, want)
	}
	want := gate.Thresholds{MaxDestructive: 0, MaxChangeRatio: 0.5, MinRecordsForRatio: 10}
	if diff := cmp.Diff(want, cfg.ThresholdsFor(com)); diff != "" {
		t.Errorf("thresholds mismatch (-want +got):\n%s", diff)
	}
	ns := cfg.NameserverConfig(com)
	if ns.MinReachable != 2 || ns.Primary != "ns1.example.com" || len(ns.Nameservers) != 2 {
		t.Errorf("nameserver config = %+v", ns)
	}

	org, _ := cfg.Zone("example.org")
	if got := cfg.ZoneFile(org); got != "other/example.org.zone" {
		t.Errorf("ZoneFile = %q", got)
	}
	wantOrg := gate.Thresholds{MaxDestructive: 10, MaxChangeRatio: 0.5, MinRecordsForRatio: 10}
	if diff := cmp.Diff(wantOrg, cfg.ThresholdsFor(org)); diff != "" {
		t.Errorf("thresholds mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]Filter{{Name: "acme"}, {Name: "soa"}}, cfg.Filters); diff != "" {
		t.Errorf("default filters mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ZONESYNC_LOG_LEVEL", "warn")
	t.Setenv("ZONESYNC_ZONES_DIR", "/srv/zones")
	t.Setenv("ZONESYNC_NAMESERVER_TIMEOUT", "2s")
	t.Setenv("ZONESYNC_MAX_DESTRUCTIVE", "3")
	t.Setenv("ZONESYNC_JOURNAL_PATH", "/tmp/journal")

	cfg, err := Load(writeConfig(t, "zones:\n  - name: example.com\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "warn" || cfg.Defaults.ZonesDir != "/srv/zones" || cfg.Journal.Path != "/tmp/journal" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Nameservers.Timeout != 2*time.Second {
		t.Errorf("timeout = %v", cfg.Nameservers.Timeout)
	}
	z, _ := cfg.Zone("example.com.")
	if got := cfg.ThresholdsFor(z).MaxDestructive; got != 3 {
		t.Errorf("maxDestructive = %d", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if cfg.Log.Level != "info" || cfg.Nameservers.Timeout != 10*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error without zones")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"ratio out of range", "zones: [{name: a.com}]\nthresholds: {maxChangeRatio: 1.5}\n", "maxChangeRatio"},
		{"negative destructive", "zones: [{name: a.com, thresholds: {maxDestructive: -1}}]\n", "maxDestructive"},
		{"min reachable over nameservers", "zones: [{name: a.com, nameservers: [ns1], minReachable: 2}]\n", "exceeds"},
		{"duplicate zone", "zones: [{name: a.com}, {name: A.com.}]\n", "configured twice"},
		{"unknown provider", "zones: [{name: a.com, provider: nope}]\n", "unknown provider"},
		{"provider without type", "zones: [{name: a.com}]\nproviders: {default: {settings: {token: x}}}\n", "missing type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.content))
			if err != nil {
				t.Fatal(err)
			}
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSelect(t *testing.T) {
	cfg := &Config{Zones: []Zone{{Name: "a.com."}, {Name: "b.com."}}}

	all, err := cfg.Select(nil)
	if err != nil || len(all) != 2 {
		t.Errorf("Select(nil) = %v, %v", all, err)
	}
	one, err := cfg.Select([]string{"b.com"})
	if err != nil || len(one) != 1 || one[0].Name != "b.com." {
		t.Errorf("Select(b.com) = %v, %v", one, err)
	}
	if _, err := cfg.Select([]string{"c.com"}); err == nil {
		t.Error("expected error for unknown zone")
	}
}

func TestResolveCredentials(t *testing.T) {
	env := map[string]string{"CF_TOKEN": "secret-token"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := &Config{Providers: map[string]Provider{
		"cf":      {Type: "cloudflare", Settings: map[string]string{"token": "env/CF_TOKEN"}},
		"hetzner": {Type: "rfc2136", Settings: map[string]string{"secret": "${ZZ_SECRET}", "server": "ns1"}},
		"other":   {Type: "rfc2136", Settings: map[string]string{"secret": "env/AA_SECRET"}},
	}}

	err := cfg.resolveCredentials(lookup)
	var missing *MissingCredentialsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingCredentialsError, got %v", err)
	}
	if got := cfg.Providers["cf"].Settings["token"]; got != "secret-token" {
		t.Errorf("token = %q", got)
	}
	if got := cfg.Providers["hetzner"].Settings["server"]; got != "ns1" {
		t.Errorf("plain setting changed: %q", got)
	}

	want := strings.Join([]string{
		"Missing API credentials:",
		"  - AA_SECRET (provider: other)",
		"  - ZZ_SECRET (provider: hetzner)",
		"",
		"Set these environment variables or put the values in the provider settings",
	}, "\n")
	if diff := cmp.Diff(want, err.Error()); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}
