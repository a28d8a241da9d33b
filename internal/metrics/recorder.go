package metrics

import "time"

// ResultLabel enumerates builder and target result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultError    ResultLabel = "error"
	ResultSkipped  ResultLabel = "skipped"
	ResultMissing  ResultLabel = "missing"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for build metrics. Implementations
// must be safe for concurrent use; builds call these from worker goroutines.
type Recorder interface {
	ObserveToolRun(tool string, d time.Duration, exitZero bool)
	ObserveBuilderDuration(kind string, d time.Duration)
	IncBuilderResult(kind string, result ResultLabel)
	ObserveTargetDuration(target string, d time.Duration)
	IncTargetResult(target string, result ResultLabel)
	IncConvertCacheHit(format string)
	IncSession(outcome string) // outcome: success|partial|failed|canceled
	SetParallelism(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveToolRun(string, time.Duration, bool)     {}
func (NoopRecorder) ObserveBuilderDuration(string, time.Duration)   {}
func (NoopRecorder) IncBuilderResult(string, ResultLabel)           {}
func (NoopRecorder) ObserveTargetDuration(string, time.Duration)    {}
func (NoopRecorder) IncTargetResult(string, ResultLabel)            {}
func (NoopRecorder) IncConvertCacheHit(string)                      {}
func (NoopRecorder) IncSession(string)                              {}
func (NoopRecorder) SetParallelism(int)                             {}
