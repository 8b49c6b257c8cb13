package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evanofslack/zonesync/internal/gate"
	"github.com/evanofslack/zonesync/internal/nameserver"
	"github.com/evanofslack/zonesync/internal/record"
)

const (
	defaultZonesDir          = "zones"
	defaultLogLevel          = "info"
	defaultLogEnv            = "prod"
	defaultNameserverTimeout = 10 * time.Second
	defaultProvider          = "default"
	defaultMetricsJob        = "zonesync"
)

type Config struct {
	Log         Log                 `yaml:"log"`
	Defaults    Defaults            `yaml:"defaults"`
	Zones       []Zone              `yaml:"zones"`
	Nameservers Nameservers         `yaml:"nameservers"`
	Thresholds  Thresholds          `yaml:"thresholds"`
	Filters     []Filter            `yaml:"filters"`
	Providers   map[string]Provider `yaml:"providers"`
	Journal     Journal             `yaml:"journal"`
	Metrics     Metrics             `yaml:"metrics"`
}

type Log struct {
	Level         string `yaml:"level"`
	Env           string `yaml:"env"`
	SuppressNoise *bool  `yaml:"suppressNoise"`
}

// Suppress reports whether known provider noise is dropped from the log.
func (l Log) Suppress() bool {
	return l.SuppressNoise == nil || *l.SuppressNoise
}

type Defaults struct {
	ZonesDir string `yaml:"zonesDir"`
}

type Zone struct {
	Name         string     `yaml:"name"`
	File         string     `yaml:"file"`
	Nameservers  []string   `yaml:"nameservers"`
	MinReachable *int       `yaml:"minReachable"`
	Thresholds   Thresholds `yaml:"thresholds"`
	Provider     string     `yaml:"provider"`
}

type Nameservers struct {
	Timeout       time.Duration    `yaml:"timeout"`
	MinReachable  int              `yaml:"minReachable"`
	Primary       string           `yaml:"primary"`
	RetryInterval time.Duration    `yaml:"retryInterval"`
	TSIG          *nameserver.TSIG `yaml:"tsig"`
}

// Thresholds holds gate limits where only the fields that are set override
// the level below them.
type Thresholds struct {
	MaxDestructive     *int     `yaml:"maxDestructive"`
	MaxChangeRatio     *float64 `yaml:"maxChangeRatio"`
	MinRecordsForRatio *int     `yaml:"minRecordsForRatio"`
}

func (t Thresholds) apply(to gate.Thresholds) gate.Thresholds {
	if t.MaxDestructive != nil {
		to.MaxDestructive = *t.MaxDestructive
	}
	if t.MaxChangeRatio != nil {
		to.MaxChangeRatio = *t.MaxChangeRatio
	}
	if t.MinRecordsForRatio != nil {
		to.MinRecordsForRatio = *t.MinRecordsForRatio
	}
	return to
}

type Filter struct {
	Name     string            `yaml:"name"`
	Settings map[string]string `yaml:"settings"`
}

type Provider struct {
	Type     string            `yaml:"type"`
	Settings map[string]string `yaml:"settings"`
}

type Journal struct {
	Path string `yaml:"path"`
}

type Metrics struct {
	Textfile string `yaml:"textfile"`
	PushURL  string `yaml:"pushUrl"`
	Job      string `yaml:"job"`
}

func Load(path string) (*Config, error) {
	configFile := true
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Default().Warn("fail find config file, proceeding", "path", path)
		configFile = false
	}

	var cfg Config
	if configFile {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			f.Close()
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			slog.Default().Warn("fail close config file", "path", path, "error", err)
		}
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	if cfg.Log.Env == "" {
		cfg.Log.Env = defaultLogEnv
	}
	if cfg.Defaults.ZonesDir == "" {
		cfg.Defaults.ZonesDir = defaultZonesDir
	}
	if cfg.Nameservers.Timeout == 0 {
		cfg.Nameservers.Timeout = defaultNameserverTimeout
	}
	if cfg.Nameservers.MinReachable == 0 {
		cfg.Nameservers.MinReachable = 1
	}
	if cfg.Filters == nil {
		cfg.Filters = []Filter{{Name: "acme"}, {Name: "soa"}}
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = defaultMetricsJob
	}
	for i := range cfg.Zones {
		cfg.Zones[i].Name = record.NormalizeName(cfg.Zones[i].Name)
		if cfg.Zones[i].Provider == "" {
			cfg.Zones[i].Provider = defaultProvider
		}
	}

	// Override from environment if set
	if loglevel := os.Getenv("ZONESYNC_LOG_LEVEL"); loglevel != "" {
		cfg.Log.Level = loglevel
	}
	if logenv := os.Getenv("ZONESYNC_LOG_ENV"); logenv != "" {
		cfg.Log.Env = logenv
	}
	if zonesDir := os.Getenv("ZONESYNC_ZONES_DIR"); zonesDir != "" {
		cfg.Defaults.ZonesDir = zonesDir
	}
	if journalPath := os.Getenv("ZONESYNC_JOURNAL_PATH"); journalPath != "" {
		cfg.Journal.Path = journalPath
	}
	if timeout := os.Getenv("ZONESYNC_NAMESERVER_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Nameservers.Timeout = d
		} else {
			slog.Default().Warn("fail parse nameserver timeout to duration from string", "timeout", timeout, "error", err)
		}
	}
	if minReachable := os.Getenv("ZONESYNC_MIN_REACHABLE"); minReachable != "" {
		if n, err := strconv.Atoi(minReachable); err == nil {
			cfg.Nameservers.MinReachable = n
		} else {
			slog.Default().Warn("fail parse min reachable to int from string", "minReachable", minReachable, "error", err)
		}
	}
	if maxDestructive := os.Getenv("ZONESYNC_MAX_DESTRUCTIVE"); maxDestructive != "" {
		if n, err := strconv.Atoi(maxDestructive); err == nil {
			cfg.Thresholds.MaxDestructive = &n
		} else {
			slog.Default().Warn("fail parse max destructive to int from string", "maxDestructive", maxDestructive, "error", err)
		}
	}
	if maxRatio := os.Getenv("ZONESYNC_MAX_CHANGE_RATIO"); maxRatio != "" {
		if f, err := strconv.ParseFloat(maxRatio, 64); err == nil {
			cfg.Thresholds.MaxChangeRatio = &f
		} else {
			slog.Default().Warn("fail parse max change ratio to float from string", "maxChangeRatio", maxRatio, "error", err)
		}
	}
	if textfile := os.Getenv("ZONESYNC_METRICS_TEXTFILE"); textfile != "" {
		cfg.Metrics.Textfile = textfile
	}
	if pushURL := os.Getenv("ZONESYNC_METRICS_PUSH_URL"); pushURL != "" {
		cfg.Metrics.PushURL = pushURL
	}
	return &cfg, nil
}

// Validate checks ranges and references that decoding cannot.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Zones) == 0 {
		errs = append(errs, errors.New("no zones configured"))
	}
	if c.Nameservers.Timeout < 0 {
		errs = append(errs, fmt.Errorf("nameservers.timeout must not be negative"))
	}
	if c.Nameservers.MinReachable < 1 {
		errs = append(errs, fmt.Errorf("nameservers.minReachable must be at least 1, got %d", c.Nameservers.MinReachable))
	}
	errs = append(errs, c.Thresholds.validate("thresholds")...)

	seen := make(map[string]bool, len(c.Zones))
	for _, z := range c.Zones {
		if z.Name == "" {
			errs = append(errs, errors.New("zone without a name"))
			continue
		}
		if seen[z.Name] {
			errs = append(errs, fmt.Errorf("zone %s configured twice", z.Name))
		}
		seen[z.Name] = true

		errs = append(errs, z.Thresholds.validate("zone "+z.Name+" thresholds")...)
		if z.MinReachable != nil {
			if *z.MinReachable < 1 {
				errs = append(errs, fmt.Errorf("zone %s: minReachable must be at least 1", z.Name))
			}
			if len(z.Nameservers) > 0 && *z.MinReachable > len(z.Nameservers) {
				errs = append(errs, fmt.Errorf("zone %s: minReachable %d exceeds the %d configured nameservers", z.Name, *z.MinReachable, len(z.Nameservers)))
			}
		}
		if _, ok := c.Providers[z.Provider]; !ok && z.Provider != defaultProvider {
			errs = append(errs, fmt.Errorf("zone %s: unknown provider %q", z.Name, z.Provider))
		}
	}

	for name, p := range c.Providers {
		if p.Type == "" {
			errs = append(errs, fmt.Errorf("provider %s: missing type", name))
		}
	}
	for i, f := range c.Filters {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("filters[%d]: missing name", i))
		}
	}
	return errors.Join(errs...)
}

func (t Thresholds) validate(where string) []error {
	var errs []error
	if t.MaxDestructive != nil && *t.MaxDestructive < 0 {
		errs = append(errs, fmt.Errorf("%s: maxDestructive must not be negative", where))
	}
	if t.MaxChangeRatio != nil && (*t.MaxChangeRatio < 0 || *t.MaxChangeRatio > 1) {
		errs = append(errs, fmt.Errorf("%s: maxChangeRatio must be within [0, 1], got %g", where, *t.MaxChangeRatio))
	}
	if t.MinRecordsForRatio != nil && *t.MinRecordsForRatio < 0 {
		errs = append(errs, fmt.Errorf("%s: minRecordsForRatio must not be negative", where))
	}
	return errs
}

// Zone returns the configured zone with the given name.
func (c *Config) Zone(name string) (Zone, bool) {
	name = record.NormalizeName(name)
	for _, z := range c.Zones {
		if z.Name == name {
			return z, true
		}
	}
	return Zone{}, false
}

// Select returns the named zones in the order given, or every zone when
// names is empty. An unknown name is an error.
func (c *Config) Select(names []string) ([]Zone, error) {
	if len(names) == 0 {
		return c.Zones, nil
	}
	out := make([]Zone, 0, len(names))
	for _, n := range names {
		z, ok := c.Zone(n)
		if !ok {
			return nil, fmt.Errorf("zone %s is not configured", record.NormalizeName(n))
		}
		out = append(out, z)
	}
	return out, nil
}

// ZoneFile returns the desired state file of z.
func (c *Config) ZoneFile(z Zone) string {
	if z.File != "" {
		return z.File
	}
	return filepath.Join(c.Defaults.ZonesDir, strings.TrimSuffix(z.Name, ".")+".yaml")
}

// ThresholdsFor layers the global and zone overrides over the defaults.
func (c *Config) ThresholdsFor(z Zone) gate.Thresholds {
	return z.Thresholds.apply(c.Thresholds.apply(gate.DefaultThresholds()))
}

// NameserverConfig returns the reconciler settings for z. Nameservers is
// empty when the zone lists none.
func (c *Config) NameserverConfig(z Zone) nameserver.Config {
	cfg := nameserver.Config{
		Nameservers:   z.Nameservers,
		Timeout:       c.Nameservers.Timeout,
		MinReachable:  c.Nameservers.MinReachable,
		Primary:       c.Nameservers.Primary,
		RetryInterval: c.Nameservers.RetryInterval,
	}
	if z.MinReachable != nil {
		cfg.MinReachable = *z.MinReachable
	}
	return cfg
}
