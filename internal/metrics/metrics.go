package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

type Metrics struct {
	registry         *prometheus.Registry
	runs             *prometheus.CounterVec // total runs
	runDuration      prometheus.Histogram   // time per run
	diffEntries      *prometheus.CounterVec // planned changes
	nsQueries        *prometheus.CounterVec // nameserver zone transfers
	disagreements    *prometheus.GaugeVec   // keys without nameserver unanimity
	gateDecisions    *prometheus.CounterVec // threshold gate outcomes
	applyOperations  *prometheus.CounterVec // record changes sent to providers
	providerRequests *prometheus.CounterVec // dns provider requests
	journalRequests  *prometheus.CounterVec // badgerdb requests
}

// Public interface for metrics operations
func (m *Metrics) IncRun(command, outcome string) {
	m.runs.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) SetRunDuration(duration time.Duration) {
	m.runDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncDiffEntry(zone, kind, risk string) {
	if !isValidOperation(kind) || zone == "" {
		return
	}
	m.diffEntries.WithLabelValues(zone, kind, risk).Inc()
}

func (m *Metrics) IncNameserverQuery(nameserver string, success bool) {
	status := boolToResult(success)
	m.nsQueries.WithLabelValues(nameserver, status).Inc()
}

func (m *Metrics) SetDisagreements(zone string, count int) {
	m.disagreements.WithLabelValues(zone).Set(float64(count))
}

func (m *Metrics) IncGateDecision(zone string, approved, forced bool) {
	m.gateDecisions.WithLabelValues(zone, boolToStr(approved), boolToStr(forced)).Inc()
}

func (m *Metrics) IncApplyOperation(operation, zone string, success bool) {
	if !isValidOperation(operation) || zone == "" {
		return
	}
	status := boolToResult(success)
	m.applyOperations.WithLabelValues(operation, zone, status).Inc()
}

func (m *Metrics) IncProviderRequest(provider, operation, zone string, success bool) {
	if !isValidOperation(operation) || zone == "" {
		return
	}
	status := boolToResult(success)
	m.providerRequests.WithLabelValues(provider, operation, zone, status).Inc()
}

func (m *Metrics) IncJournalRequest(operation string, success bool) {
	if !isValidOperation(operation) {
		return
	}
	status := boolToResult(success)
	m.journalRequests.WithLabelValues(operation, status).Inc()
}

// Validation helpers
func boolToResult(b bool) string {
	if b {
		return "success"
	}
	return "failure"
}

func boolToStr(b bool) string {
	return strconv.FormatBool(b)
}

func isValidOperation(op string) bool {
	switch op {
	case "create", "read", "update", "delete":
		return true
	}
	return false
}

func New(register bool) *Metrics {
	registry := prometheus.NewRegistry()
	namespace := "zonesync"

	m := &Metrics{
		registry: registry,

		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of runs by command and outcome",
		}, []string{"command", "outcome"}),

		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		diffEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diff_entries_total",
			Help:      "Planned record changes by kind and risk",
		}, []string{"zone", "kind", "risk"}),

		nsQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nameserver_queries_total",
			Help:      "Total nameserver zone queries",
		}, []string{"nameserver", "status"}),

		disagreements: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nameserver_disagreements",
			Help:      "Record keys on which nameservers disagree",
		}, []string{"zone"}),

		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Threshold gate decisions",
		}, []string{"zone", "approved", "forced"}),

		applyOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apply_operations_total",
			Help:      "Record changes applied through providers",
		}, []string{"operation", "zone", "status"}),

		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total DNS provider requests",
		}, []string{"provider", "operation", "zone", "status"}),

		journalRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badgerdb_requests_total",
			Help:      "Total badgerdb requests",
		}, []string{"operation", "status"}),
	}

	if register {
		registry.MustRegister(
			m.runs,
			m.runDuration,
			m.diffEntries,
			m.nsQueries,
			m.disagreements,
			m.gateDecisions,
			m.applyOperations,
			m.providerRequests,
			m.journalRequests,
		)
	}
	return m
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the registry in text format for the node_exporter
// textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Push sends the registry to a Prometheus pushgateway.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
