package measure

import (
	"sort"
	"sync"
	"time"
)

// Operation names recorded by the orchestrator.
const (
	OpSessionStart  = "session.start"
	OpSessionGet    = "session.get"
	OpSessionUpsert = "session.upsert"
	OpComputeSubmit = "compute.submit"
	OpComputeCancel = "compute.cancel"
	OpArtifactFetch = "artifact.fetch"
)

type DefaultMeasure struct {
	mu    sync.Mutex
	Steps map[string]Metric
}

func NewDefaultMeasure() *DefaultMeasure {
	return &DefaultMeasure{
		Steps: make(map[string]Metric),
	}
}

// AddMetric returns the metric called name, creating it if needed.
func (m *DefaultMeasure) AddMetric(name string) Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mt, ok := m.Steps[name]; ok {
		return mt
	}

	mt := &DefaultMetric{mu: &sync.Mutex{}}
	m.Steps[name] = mt

	return mt
}

func (m *DefaultMeasure) GetMetric(name string) Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.Steps[name]
}

// AllMetrics returns a copy of the metrics by name.
func (m *DefaultMeasure) AllMetrics() map[string]Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make(map[string]Metric, len(m.Steps))
	for name, mt := range m.Steps {
		res[name] = mt
	}

	return res
}

// Names returns the metric names sorted.
func Names(m Measure) []string {
	all := m.AllMetrics()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Observe records a call to op that started at start and ended with err.
// It is a no-op when m is nil.
func Observe(m Measure, op string, start time.Time, err error) {
	if m == nil {
		return
	}

	mt := m.AddMetric(op)
	if err != nil {
		mt.AddFailure(time.Since(start))

		return
	}

	mt.AddDuration(time.Since(start))
}

var _ Measure = (*DefaultMeasure)(nil)
