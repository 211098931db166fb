package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	uploadsTotal   *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	uploadProgress prometheus.Gauge
	attemptsTotal  prometheus.Counter
	foldersSkipped *prometheus.CounterVec
	profilesTotal  *prometheus.CounterVec
	networkChecks  *prometheus.CounterVec
	dailyUploads   prometheus.Gauge
	queueCycles    prometheus.Counter
	runsTotal      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		uploadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uploadflow_uploads_total",
				Help: "Total number of finished video uploads",
			},
			[]string{"status"},
		),

		uploadDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uploadflow_upload_duration_seconds",
				Help:    "Duration of one video upload including retries",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68m
			},
			[]string{"status"},
		),

		uploadProgress: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "uploadflow_upload_progress_percent",
				Help: "Last observed progress of the in-flight upload",
			},
		),

		attemptsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "uploadflow_upload_attempts_total",
				Help: "Total number of upload attempts including retries",
			},
		),

		foldersSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uploadflow_folders_skipped_total",
				Help: "Creator folders skipped during a sweep",
			},
			[]string{"reason"},
		),

		profilesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uploadflow_profiles_processed_total",
				Help: "Browser profiles processed per run",
			},
			[]string{"status"},
		),

		networkChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uploadflow_network_checks_total",
				Help: "Network reachability probe results",
			},
			[]string{"status"},
		),

		dailyUploads: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "uploadflow_daily_uploads",
				Help: "Uploads counted against today's limit",
			},
		),

		queueCycles: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "uploadflow_queue_cycles_total",
				Help: "Full wraparounds of the folder queue",
			},
		),

		runsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uploadflow_runs_total",
				Help: "Orchestrator runs by terminal outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) IncrementUploads(status string) {
	m.uploadsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveUploadDuration(status string, seconds float64) {
	m.uploadDuration.WithLabelValues(status).Observe(seconds)
}

func (m *Metrics) SetUploadProgress(percent float64) {
	m.uploadProgress.Set(percent)
}

func (m *Metrics) IncrementAttempts() {
	m.attemptsTotal.Inc()
}

func (m *Metrics) IncrementFoldersSkipped(reason string) {
	m.foldersSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementProfilesProcessed(status string) {
	m.profilesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementNetworkChecks(status string) {
	m.networkChecks.WithLabelValues(status).Inc()
}

func (m *Metrics) SetDailyUploads(count float64) {
	m.dailyUploads.Set(count)
}

func (m *Metrics) IncrementQueueCycles() {
	m.queueCycles.Inc()
}

func (m *Metrics) IncrementRuns(outcome string) {
	m.runsTotal.WithLabelValues(outcome).Inc()
}
