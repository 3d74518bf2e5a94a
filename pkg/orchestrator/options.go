package orchestrator

import (
	"github.com/rs/zerolog"

	"github.com/askiada/molsim/pkg/measure"
)

// Option configures an Orchestrator.
type Option func(o *Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMeasure records the duration of every remote call in m.
func WithMeasure(m measure.Measure) Option {
	return func(o *Orchestrator) {
		o.measure = m
	}
}

// Config holds the settings of an Orchestrator. It lives from process start to process end.
type Config struct {
	// FetchConcurrency bounds the artifact downloads running at once. Zero or less means 4.
	FetchConcurrency int
}

const defaultFetchConcurrency = 4

func (c Config) fetchConcurrency() int {
	if c.FetchConcurrency <= 0 {
		return defaultFetchConcurrency
	}

	return c.FetchConcurrency
}
