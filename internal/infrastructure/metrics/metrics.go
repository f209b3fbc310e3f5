// Package metrics exposes leveling engine measurements as Prometheus
// collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/application/command"
)

const namespace = "leveling"

// Recorder implements command.Metrics, the notification failure counter and
// the scheduler job metrics.
type Recorder struct {
	registry *prometheus.Registry

	eventsProcessed      *prometheus.CounterVec
	processingDuration   *prometheus.HistogramVec
	xpGranted            prometheus.Counter
	xpDropped            prometheus.Counter
	levelUps             *prometheus.CounterVec
	achievementsUnlocked *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
	jobRuns              *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
}

var _ command.Metrics = (*Recorder)(nil)

// New creates a Recorder on its own registry, including Go runtime and
// process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Inbound message events by processing outcome.",
		}, []string{"outcome"}),
		processingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_processing_seconds",
			Help:      "Time spent processing one message event.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"outcome"}),
		xpGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_granted_total",
			Help:      "XP added to member stats.",
		}),
		xpDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_rate_limited_total",
			Help:      "XP withheld by the rolling-window limiter.",
		}),
		levelUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Level-ups by reached level.",
		}, []string{"level"}),
		achievementsUnlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "achievements_unlocked_total",
			Help:      "Achievement unlocks by achievement id.",
		}, []string{"achievement"}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Announcements that could not be delivered.",
		}, []string{"kind"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and result.",
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job run time.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"job"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.eventsProcessed,
		r.processingDuration,
		r.xpGranted,
		r.xpDropped,
		r.levelUps,
		r.achievementsUnlocked,
		r.notificationFailures,
		r.jobRuns,
		r.jobDuration,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// EventProcessed implements command.Metrics.
func (r *Recorder) EventProcessed(outcome command.Outcome, took time.Duration) {
	r.eventsProcessed.WithLabelValues(string(outcome)).Inc()
	r.processingDuration.WithLabelValues(string(outcome)).Observe(took.Seconds())
}

// XPGranted implements command.Metrics.
func (r *Recorder) XPGranted(granted, dropped int64) {
	if granted > 0 {
		r.xpGranted.Add(float64(granted))
	}
	if dropped > 0 {
		r.xpDropped.Add(float64(dropped))
	}
}

// LevelUp implements command.Metrics.
func (r *Recorder) LevelUp(level int) {
	r.levelUps.WithLabelValues(levelLabel(level)).Inc()
}

// AchievementUnlocked implements command.Metrics.
func (r *Recorder) AchievementUnlocked(achievementID string) {
	r.achievementsUnlocked.WithLabelValues(achievementID).Inc()
}

// NotificationFailed counts an undelivered announcement.
func (r *Recorder) NotificationFailed(kind string) {
	r.notificationFailures.WithLabelValues(kind).Inc()
}

// JobCompleted records one scheduled job run.
func (r *Recorder) JobCompleted(job string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.jobRuns.WithLabelValues(job, result).Inc()
	r.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// levelLabel buckets high levels to keep label cardinality bounded.
func levelLabel(level int) string {
	switch {
	case level >= 50:
		return "50+"
	case level >= 20:
		return "20-49"
	default:
		return strconv.Itoa(level)
	}
}
