// Package engine provides the media memory engine: the analysis pipeline that
// populates the object and vector stores, the retrieval orchestrator that walks
// the evidence hierarchy, and the background queue that runs analysis off the
// request path.
package engine

import (
	"fmt"
	"time"

	"github.com/scrypster/recollect/internal/config"
)

// analysisJob represents one queued analysis of a media record.
type analysisJob struct {
	// RecordID is the media record to analyze.
	RecordID string

	// Timestamp is when the job was queued.
	Timestamp time.Time

	// Attempt tracks retry attempts for this job.
	Attempt int
}

// Config holds configuration for the engine.
type Config struct {
	// Decay controls object confidence decay and labelling.
	Decay DecayPolicy

	// VectorTopK is the number of vector matches considered (default: 20).
	VectorTopK int

	// MinSimilarity is the cosine threshold applied before truncation (default: 0.3).
	MinSimilarity float64

	// SynthesisRecords is how many ranked records reach the synthesizer (default: 5).
	SynthesisRecords int

	// StepTimeout bounds every external call (default: 30s).
	StepTimeout time.Duration

	// RemoteTimeout bounds the remote strict lookup (default: 10s).
	RemoteTimeout time.Duration

	// AnalysisBatch is the per-batch concurrency of ReanalyzeAll (default: 3).
	AnalysisBatch int

	// NumWorkers is the number of analysis worker goroutines (default: 2).
	NumWorkers int

	// QueueSize is the size of the analysis job queue buffer (default: 100).
	QueueSize int

	// ShutdownTimeout is the maximum time to wait for workers to drain on shutdown (default: 30s).
	ShutdownTimeout time.Duration

	// MaxRetries is the maximum number of requeues after a storage error (default: 3).
	MaxRetries int

	// SweepSchedule is a cron spec for re-analysing pending and failed records. Empty disables.
	SweepSchedule string

	// PollInterval and PollTimeout drive WaitForStatus (defaults: 2s, 5m).
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Decay:            DefaultDecayPolicy(),
		VectorTopK:       20,
		MinSimilarity:    0.3,
		SynthesisRecords: 5,
		StepTimeout:      30 * time.Second,
		RemoteTimeout:    10 * time.Second,
		AnalysisBatch:    3,
		NumWorkers:       2,
		QueueSize:        100,
		ShutdownTimeout:  30 * time.Second,
		MaxRetries:       3,
		PollInterval:     2 * time.Second,
		PollTimeout:      5 * time.Minute,
	}
}

// ConfigFromGlobal maps the application configuration onto engine settings.
func ConfigFromGlobal(cfg *config.Config) Config {
	c := DefaultConfig()
	r := cfg.Retrieval

	c.Decay.Rate = r.DecayRate
	c.Decay.StaleThreshold = r.StaleThreshold
	c.Decay.HighThreshold = r.HighConfidence
	c.VectorTopK = r.VectorTopK
	c.MinSimilarity = r.MinSimilarity
	c.SynthesisRecords = r.SynthesisRecords
	c.AnalysisBatch = r.AnalysisBatch
	if r.StepTimeout > 0 {
		c.StepTimeout = r.StepTimeout
	}
	if cfg.Remote.Timeout > 0 {
		c.RemoteTimeout = cfg.Remote.Timeout
	}
	if cfg.Remote.PollInterval > 0 {
		c.PollInterval = cfg.Remote.PollInterval
	}
	if cfg.Remote.PollTimeout > 0 {
		c.PollTimeout = cfg.Remote.PollTimeout
	}
	c.NumWorkers = cfg.Jobs.Workers
	c.QueueSize = cfg.Jobs.QueueSize
	c.SweepSchedule = cfg.Jobs.SweepSchedule
	return c
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.NumWorkers < 1 {
		return fmt.Errorf("NumWorkers must be >= 1, got %d", c.NumWorkers)
	}

	if c.QueueSize < 1 {
		return fmt.Errorf("QueueSize must be >= 1, got %d", c.QueueSize)
	}

	if c.AnalysisBatch < 1 {
		return fmt.Errorf("AnalysisBatch must be >= 1, got %d", c.AnalysisBatch)
	}

	if c.VectorTopK < 1 || c.SynthesisRecords < 1 {
		return fmt.Errorf("VectorTopK and SynthesisRecords must be >= 1, got %d and %d", c.VectorTopK, c.SynthesisRecords)
	}

	if c.StepTimeout <= 0 {
		return fmt.Errorf("StepTimeout must be > 0, got %v", c.StepTimeout)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("MaxRetries must be >= 0, got %d", c.MaxRetries)
	}

	return c.Decay.Validate()
}
