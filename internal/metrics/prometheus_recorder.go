package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	toolDuration    *prom.HistogramVec
	builderDuration *prom.HistogramVec
	builderResults  *prom.CounterVec
	targetDuration  *prom.HistogramVec
	targetResults   *prom.CounterVec
	cacheHits       *prom.CounterVec
	sessions        *prom.CounterVec
	parallelism     prom.Gauge
}

// NewPrometheusRecorder constructs the docgen metric set and registers it
// with reg. Call it once per registry; a second call panics on duplicate
// registration.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		toolDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "docgen",
			Name:      "tool_run_duration_seconds",
			Help:      "Duration of external tool invocations",
			Buckets:   prom.DefBuckets,
		}, []string{"tool", "result"}),
		builderDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "docgen",
			Name:      "builder_duration_seconds",
			Help:      "Duration of individual builder runs",
			Buckets:   prom.DefBuckets,
		}, []string{"kind"}),
		builderResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docgen",
			Name:      "builder_results_total",
			Help:      "Builder result counts by kind and outcome",
		}, []string{"kind", "result"}),
		targetDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "docgen",
			Name:      "target_build_duration_seconds",
			Help:      "Duration of document target builds",
			Buckets:   prom.DefBuckets,
		}, []string{"target"}),
		targetResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docgen",
			Name:      "target_results_total",
			Help:      "Target build results by outcome",
		}, []string{"target", "result"}),
		cacheHits: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docgen",
			Name:      "convert_cache_hits_total",
			Help:      "Conversions satisfied from existing up-to-date outputs",
		}, []string{"format"}),
		sessions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docgen",
			Name:      "sessions_total",
			Help:      "Render sessions by final outcome",
		}, []string{"outcome"}),
		parallelism: prom.NewGauge(prom.GaugeOpts{
			Namespace: "docgen",
			Name:      "parallel_workers",
			Help:      "Configured worker limit for parallel builds",
		}),
	}
	reg.MustRegister(pr.toolDuration, pr.builderDuration, pr.builderResults,
		pr.targetDuration, pr.targetResults, pr.cacheHits, pr.sessions, pr.parallelism)
	return pr
}

func (p *PrometheusRecorder) ObserveToolRun(tool string, d time.Duration, exitZero bool) {
	if p == nil || p.toolDuration == nil {
		return
	}
	res := "failed"
	if exitZero {
		res = "success"
	}
	p.toolDuration.WithLabelValues(tool, res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuilderDuration(kind string, d time.Duration) {
	if p == nil || p.builderDuration == nil {
		return
	}
	p.builderDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuilderResult(kind string, result ResultLabel) {
	if p == nil || p.builderResults == nil {
		return
	}
	p.builderResults.WithLabelValues(kind, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveTargetDuration(target string, d time.Duration) {
	if p == nil || p.targetDuration == nil {
		return
	}
	p.targetDuration.WithLabelValues(target).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTargetResult(target string, result ResultLabel) {
	if p == nil || p.targetResults == nil {
		return
	}
	p.targetResults.WithLabelValues(target, string(result)).Inc()
}

func (p *PrometheusRecorder) IncConvertCacheHit(format string) {
	if p == nil || p.cacheHits == nil {
		return
	}
	p.cacheHits.WithLabelValues(format).Inc()
}

func (p *PrometheusRecorder) IncSession(outcome string) {
	if p == nil || p.sessions == nil {
		return
	}
	p.sessions.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) SetParallelism(n int) {
	if p == nil || p.parallelism == nil {
		return
	}
	p.parallelism.Set(float64(n))
}
