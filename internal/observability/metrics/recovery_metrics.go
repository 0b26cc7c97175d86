package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ReplayReasonDeadlineExceeded     = "deadline_exceeded"
	ReplayReasonDBLockTimeout        = "db_lock_timeout"
	ReplayReasonSerializationFailure = "serialization_failure"
	ReplayReasonUniqueViolation      = "unique_violation"
	ReplayReasonUnknown              = "unknown"

	SweepSkippedLockHeld = "lock_held"
	SweepSkippedLockErr  = "lock_error"
)

// RecoveryMetrics captures the health of the webhook replay sweep.
type RecoveryMetrics struct {
	sweepRuns      prometheus.Counter
	sweepDuration  prometheus.Histogram
	sweepSkipped   *prometheus.CounterVec
	eventsReplayed *prometheus.CounterVec
	replayErrors   *prometheus.CounterVec
	backlog        prometheus.Gauge
}

var (
	recoveryMetricsOnce sync.Once
	recoveryMetrics     *RecoveryMetrics
)

// Recovery returns the process-wide recovery metrics registered on the default registry.
func Recovery(cfg Config) *RecoveryMetrics {
	recoveryMetricsOnce.Do(func() {
		recoveryMetrics = NewRecoveryMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return recoveryMetrics
}

func NewRecoveryMetrics(registerer prometheus.Registerer, cfg Config) *RecoveryMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "partnerpay"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"service": serviceName, "env": environment}

	m := &RecoveryMetrics{
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "partnerpay_recovery_sweep_runs_total",
			Help:        "Recovery sweeps executed.",
			ConstLabels: constLabels,
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "partnerpay_recovery_sweep_duration_seconds",
			Help:        "Recovery sweep latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: constLabels,
		}),
		sweepSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "partnerpay_recovery_sweep_skipped_total",
			Help:        "Recovery sweeps skipped because another instance held the lock.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		eventsReplayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "partnerpay_recovery_events_replayed_total",
			Help:        "Stored webhook events replayed by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		replayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "partnerpay_recovery_replay_errors_total",
			Help:        "Replay failures by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		backlog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "partnerpay_recovery_backlog",
			Help:        "Unprocessed events picked up by the last sweep.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.sweepRuns,
		m.sweepDuration,
		m.sweepSkipped,
		m.eventsReplayed,
		m.replayErrors,
		m.backlog,
	)
	return m
}

func (m *RecoveryMetrics) ObserveSweep(d time.Duration, picked int) {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
	m.sweepDuration.Observe(d.Seconds())
	m.backlog.Set(float64(picked))
}

func (m *RecoveryMetrics) IncSweepSkipped(reason string) {
	if m == nil {
		return
	}
	m.sweepSkipped.WithLabelValues(reason).Inc()
}

func (m *RecoveryMetrics) IncReplayed(outcome string) {
	if m == nil {
		return
	}
	m.eventsReplayed.WithLabelValues(outcome).Inc()
}

func (m *RecoveryMetrics) IncReplayError(err error) {
	if m == nil || err == nil {
		return
	}
	m.replayErrors.WithLabelValues(ClassifyReplayReason(err)).Inc()
}

// ClassifyReplayReason maps a replay error onto a bounded label set.
func ClassifyReplayReason(err error) string {
	switch {
	case err == nil:
		return ReplayReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReplayReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return ReplayReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return ReplayReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return ReplayReasonUniqueViolation
	default:
		return ReplayReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
