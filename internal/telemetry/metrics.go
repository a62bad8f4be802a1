package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/prometheus/client_golang/prometheus"

	"sysroot-txn/internal/types"
)

const defaultNamespace = "sysroot_txn"

const (
	StatusSuccess   = "success"
	StatusFailure   = "failure"
	StatusCancelled = "cancelled"
)

// Metrics records transaction outcomes on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	transactions     *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	deployments      prometheus.Counter
	importedPackages prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Total number of executed transactions",
			},
			[]string{"kind", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_duration_seconds",
				Help:      "Duration of transaction execution in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		deployments: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_written_total",
				Help:      "Total number of deployments written to the sysroot",
			},
		),
		importedPackages: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imported_packages_total",
				Help:      "Total number of local packages imported into the content store",
			},
		),
	}
	registry.MustRegister(m.transactions, m.duration, m.deployments, m.importedPackages)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordTransaction counts one finished transaction under the status
// derived from its error.
func (m *Metrics) RecordTransaction(kind types.TransactionKind, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(string(kind), Status(err)).Inc()
	m.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordDeployment() {
	if m == nil {
		return
	}
	m.deployments.Inc()
}

func (m *Metrics) RecordImportedPackages(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.importedPackages.Add(float64(n))
}

// WriteTextfile dumps the registry in the text exposition format, for
// node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write metrics textfile").
			WithCause(err)
	}
	return nil
}

func Status(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	default:
		return StatusFailure
	}
}
