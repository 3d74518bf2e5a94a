package measure

import "time"

// Measure keeps one Metric per remote operation.
type Measure interface {
	AddMetric(name string) Metric
	GetMetric(name string) Metric
	AllMetrics() map[string]Metric
}

// Metric aggregates the calls made for one operation.
type Metric interface {
	AddDuration(elapsed time.Duration)
	AddFailure(elapsed time.Duration)
	AVGDuration() time.Duration
	Total() int64
	Failures() int64
}
