// Package metrics exposes the Prometheus instruments imghub records while
// serving and precaching derivatives. Instruments are registered against an
// injected Registerer so tests can use a throwaway registry; every method is
// safe on a nil *Recorder, which is how callers disable metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "imghub"

	// LabelCollection 标识资产集合，例如 Logos。
	LabelCollection = "collection"
	// LabelOutcome 取值见 Outcome* 常量。
	LabelOutcome = "outcome"
	// LabelFormat 为输出格式扩展名。
	LabelFormat = "format"
)

// Outcome 取值。
const (
	OutcomeHit         = "hit"
	OutcomeMiss        = "miss"
	OutcomePassThrough = "pass_through"
	OutcomeNotFound    = "not_found"
	OutcomeError       = "error"
)

// Recorder 聚合所有指标，进程内共享一份。
type Recorder struct {
	conversions    *prometheus.CounterVec
	encodeDuration *prometheus.HistogramVec
	precacheFiles  *prometheus.CounterVec
	precacheRuns   *prometheus.HistogramVec
}

// NewRecorder 创建并注册指标。reg 为 nil 时返回 nil，调用方无需额外判断。
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		return nil
	}
	r := &Recorder{
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Derivative lookups by outcome.",
		}, []string{LabelCollection, LabelFormat, LabelOutcome}),
		// Most source assets are logos and screenshots; encodes past a
		// few seconds usually mean a very large source.
		encodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "encode_duration_seconds",
			Help:      "Duration of re-encoding a source asset, in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{LabelFormat}),
		precacheFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "precache",
			Name:      "files_total",
			Help:      "Files visited by the precache walk, by outcome.",
		}, []string{LabelCollection, LabelOutcome}),
		precacheRuns: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "precache",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full precache walk for one collection, in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{LabelCollection}),
	}
	reg.MustRegister(r.conversions, r.encodeDuration, r.precacheFiles, r.precacheRuns)
	return r
}

// ObserveLookup 记录一次 GetOrCreate 的结果。
func (r *Recorder) ObserveLookup(collection, format, outcome string) {
	if r == nil {
		return
	}
	r.conversions.WithLabelValues(collection, format, outcome).Inc()
}

// ObserveEncode 记录一次编码耗时。
func (r *Recorder) ObserveEncode(format string, took time.Duration) {
	if r == nil {
		return
	}
	r.encodeDuration.WithLabelValues(format).Observe(took.Seconds())
}

// ObservePrecacheFile 记录预缓存中单个文件的结果。
func (r *Recorder) ObservePrecacheFile(collection, outcome string) {
	if r == nil {
		return
	}
	r.precacheFiles.WithLabelValues(collection, outcome).Inc()
}

// ObservePrecacheRun 记录一次完整预缓存耗时。
func (r *Recorder) ObservePrecacheRun(collection string, took time.Duration) {
	if r == nil {
		return
	}
	r.precacheRuns.WithLabelValues(collection).Observe(took.Seconds())
}
