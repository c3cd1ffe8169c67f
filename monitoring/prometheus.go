package monitoring

import (
	"net/http"
	"time"

	"github.com/mezonai/mmn-replay/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ReplayOutcome string

var (
	OutcomeSucceeded      ReplayOutcome = "succeeded"
	OutcomeDiverged       ReplayOutcome = "diverged"
	OutcomeIncompleteData ReplayOutcome = "incomplete_data"
	OutcomeAmbiguousFork  ReplayOutcome = "ambiguous_fork"
	OutcomeCancelled      ReplayOutcome = "cancelled"
)

type replayPromMetrics struct {
	verifiedSlotCount  prometheus.Counter
	verifiedSlotHeight prometheus.Gauge
	slotReplayTime     prometheus.Histogram
	txReplayed         prometheus.Counter
	execFaultCount     prometheus.Counter
	divergenceCount    prometheus.Counter
	runOutcomeCount    *prometheus.CounterVec
	checkpointSlot     prometheus.Gauge
	checkpointDuration prometheus.Histogram
	archiveBatchCount  *prometheus.CounterVec
	archiveRetryCount  prometheus.Counter
	fetchRetryCount    prometheus.Counter
	panicCount         prometheus.Counter
}

func newReplayPromMetrics() *replayPromMetrics {
	return &replayPromMetrics{
		verifiedSlotCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mmn_replay_verified_slot_count",
				Help: "The total number of slots whose commitment was re-derived and confirmed",
			},
		),
		verifiedSlotHeight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mmn_replay_verified_slot_height",
				Help: "The highest slot verified so far in the current run",
			},
		),
		slotReplayTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "mmn_replay_slot_replay_time",
				Help: "Duration in second spent re-executing and verifying a single slot",
			},
		),
		txReplayed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mmn_replay_tx_replayed_count",
				Help: "The total number of transactions re-executed during replay",
			},
		),
		execFaultCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mmn_replay_exec_fault_count",
				Help: "The total number of per-transaction execution faults recorded during replay",
			},
		),
		divergenceCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mmn_replay_divergence_count",
				Help: "The total number of commitment divergences detected",
			},
		),
		runOutcomeCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mmn_replay_run_outcome_count",
				Help: "The total number of verification runs by terminal outcome",
			},
			[]string{"outcome"},
		),
		checkpointSlot: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mmn_replay_checkpoint_slot",
				Help: "Slot of the most recently persisted verification checkpoint",
			},
		),
		checkpointDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "mmn_replay_checkpoint_duration",
				Help: "Duration in second spent writing a verification checkpoint",
			},
		),
		archiveBatchCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mmn_replay_archive_batch_count",
				Help: "The total number of archival batches by result",
			},
			[]string{"result"},
		),
		archiveRetryCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mmn_replay_archive_retry_count",
				Help: "The total number of archival upload attempts that had to be retried",
			},
		),
		fetchRetryCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mmn_replay_fetch_retry_count",
				Help: "The total number of block fetch attempts that had to be retried",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mmn_replay_panic_count",
				Help: "The total number of recovered panics in background goroutines",
			},
		),
	}
}

var metrics = newReplayPromMetrics()

func RecordVerifiedSlot(slot uint64, elapsed time.Duration, txCount int) {
	metrics.verifiedSlotCount.Inc()
	metrics.verifiedSlotHeight.Set(float64(slot))
	metrics.slotReplayTime.Observe(elapsed.Seconds())
	metrics.txReplayed.Add(float64(txCount))
}

func IncreaseExecFaultCount() {
	metrics.execFaultCount.Inc()
}

func IncreaseDivergenceCount() {
	metrics.divergenceCount.Inc()
}

func RecordRunOutcome(outcome ReplayOutcome) {
	metrics.runOutcomeCount.WithLabelValues(string(outcome)).Inc()
}

func RecordCheckpoint(slot uint64, elapsed time.Duration) {
	metrics.checkpointSlot.Set(float64(slot))
	metrics.checkpointDuration.Observe(elapsed.Seconds())
}

func RecordArchiveBatch(ok bool) {
	if ok {
		metrics.archiveBatchCount.WithLabelValues("archived").Inc()
	} else {
		metrics.archiveBatchCount.WithLabelValues("failed").Inc()
	}
}

func IncreaseArchiveRetryCount() {
	metrics.archiveRetryCount.Inc()
}

func IncreaseFetchRetryCount() {
	metrics.fetchRetryCount.Inc()
}

func IncreasePanicCount() {
	metrics.panicCount.Inc()
}

// StartMetricsServer exposes the prometheus endpoint; it never blocks the caller.
func StartMetricsServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logx.Error("MONITORING", "Metrics server stopped: ", err)
		}
	}()
	logx.Info("MONITORING", "Metrics server listening on ", addr)
}
