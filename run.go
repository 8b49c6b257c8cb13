package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/evanofslack/zonesync/internal/config"
	"github.com/evanofslack/zonesync/internal/journal"
	"github.com/evanofslack/zonesync/internal/logger"
	"github.com/evanofslack/zonesync/internal/metrics"
	"github.com/evanofslack/zonesync/internal/nameserver"
	"github.com/evanofslack/zonesync/internal/provider"
	"github.com/evanofslack/zonesync/internal/reconcile"
	"github.com/evanofslack/zonesync/internal/render"
)

const pushTimeout = 10 * time.Second

func (o *rootOptions) verbosity() render.Verbosity {
	switch {
	case o.debug:
		return render.Debug
	case o.quiet:
		return render.Quiet
	default:
		return render.Normal
	}
}

// logLevel lets the CLI verbosity win over the configured level.
func (o *rootOptions) logLevel(configured string) string {
	switch {
	case o.debug:
		return "debug"
	case o.quiet:
		return "warn"
	default:
		return configured
	}
}

// run is the state of one command invocation.
type run struct {
	command string
	cfg     *config.Config
	zones   []config.Zone
	log     *slog.Logger
	metrics *metrics.Metrics
	journal journal.Journal
	engine  *reconcile.Engine
	printer *render.Printer
	stderr  io.Writer
	ctx     context.Context
	cancel  context.CancelFunc
	start   time.Time
}

// newRun loads the config and wires the engine for the selected zones. The
// journal is only opened when withJournal is set.
func newRun(cmd *cobra.Command, opts *rootOptions, command string, withJournal bool) (*run, error) {
	start := time.Now()
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", opts.configPath, err)
	}

	runID := uuid.NewString()
	log := logger.New(cmd.ErrOrStderr(), opts.logLevel(cfg.Log.Level), cfg.Log.Env, cfg.Log.Suppress()).
		With("run", runID)

	zones, err := cfg.Select(opts.zones)
	if err != nil {
		return nil, err
	}

	m := metrics.New(true)
	var j journal.Journal = journal.Discard{}
	if withJournal {
		j, err = journal.Open(cfg.Journal.Path, m)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	pipeline, err := reconcile.BuildPipeline(cfg, log)
	if err != nil {
		j.Close()
		return nil, fmt.Errorf("build filters: %w", err)
	}

	engine := reconcile.NewEngine(
		cfg,
		pipeline,
		nameserver.NewAXFR(cfg.Nameservers.TSIG),
		reconcile.ConfiguredProviders(cfg, log, m),
		j,
		runID,
		log,
		m,
	)

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if opts.timeout > 0 {
		ctx, cancel = context.WithTimeout(cmd.Context(), opts.timeout)
	} else {
		ctx, cancel = context.WithCancel(cmd.Context())
	}

	log.Debug("Starting run", "command", command, "zones", len(zones), "version", version)
	return &run{
		command: command,
		cfg:     cfg,
		zones:   zones,
		log:     log,
		metrics: m,
		journal: j,
		engine:  engine,
		printer: render.New(cmd.OutOrStdout(), opts.verbosity()),
		stderr:  cmd.ErrOrStderr(),
		ctx:     ctx,
		cancel:  cancel,
		start:   start,
	}, nil
}

func (r *run) close() {
	r.cancel()
	if err := r.journal.Close(); err != nil {
		r.log.Warn("Failed to close journal", "error", err)
	}
}

// zoneError reports a failed zone on stderr.
func (r *run) zoneError(res reconcile.ZoneResult) {
	r.log.Error("Zone failed", "zone", res.Zone, "outcome", res.Outcome.String(), "error", res.Err)

	var missing *config.MissingCredentialsError
	switch {
	case errors.As(res.Err, &missing):
		fmt.Fprintln(r.stderr, missing.Error())
	case provider.IsCredentialError(res.Err):
		fmt.Fprintf(r.stderr, "Error: %s: provider rejected the credentials: %v\n", res.Zone, res.Err)
	default:
		fmt.Fprintf(r.stderr, "Error: %v\n", res.Err)
	}
}

// finish records the run metrics, exports them and returns the exit error for
// the outcome.
func (r *run) finish(outcome reconcile.Outcome) error {
	duration := time.Since(r.start)
	r.metrics.IncRun(r.command, outcome.String())
	r.metrics.SetRunDuration(duration)

	if path := r.cfg.Metrics.Textfile; path != "" {
		if err := r.metrics.WriteTextfile(path); err != nil {
			r.log.Warn("Failed to write metrics", "path", path, "error", err)
		}
	}
	if url := r.cfg.Metrics.PushURL; url != "" {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		if err := r.metrics.Push(ctx, url, r.cfg.Metrics.Job); err != nil {
			r.log.Warn("Failed to push metrics", "url", url, "error", err)
		}
		cancel()
	}

	r.log.Info("Run finished", "command", r.command, "outcome", outcome.String(), "duration", duration)
	return exitFor(outcome)
}
