package engine

import (
	"fmt"
	"time"

	"github.com/scrypster/recollect/pkg/types"
)

const (
	// DefaultDecayRate is the per-day hyperbolic decay rate of object confidence.
	// After 10 days a sighting is worth half its base confidence.
	DefaultDecayRate = 0.1

	// DefaultStaleThreshold is the effective confidence below which a sighting is a miss.
	DefaultStaleThreshold = 0.3

	// DefaultHighConfidence is the effective confidence above which a hit is labelled High.
	DefaultHighConfidence = 0.7

	// thresholdEpsilon absorbs float error so a value computed as exactly the
	// threshold (0.9/3.0) is not rejected.
	thresholdEpsilon = 1e-9
)

// EffectiveConfidence returns base / (1 + rate × daysSinceConfirmed).
// Confirmations in the future count as zero days old.
func EffectiveConfidence(base float64, confirmedAt, now time.Time, rate float64) float64 {
	days := now.Sub(confirmedAt).Hours() / 24.0
	if days < 0 {
		days = 0
	}
	return base / (1 + rate*days)
}

// DecayPolicy decides whether a sighting is still trusted and how confident an
// answer built from it is. Now is injectable for tests.
type DecayPolicy struct {
	Rate           float64
	StaleThreshold float64
	HighThreshold  float64
	Now            func() time.Time
}

// DefaultDecayPolicy returns the 0.1/day, 0.3 stale, 0.7 high policy on the wall clock.
func DefaultDecayPolicy() DecayPolicy {
	return DecayPolicy{
		Rate:           DefaultDecayRate,
		StaleThreshold: DefaultStaleThreshold,
		HighThreshold:  DefaultHighConfidence,
		Now:            time.Now,
	}
}

// Validate checks that the thresholds are ordered and within [0,1].
func (p DecayPolicy) Validate() error {
	if p.Rate < 0 {
		return fmt.Errorf("decay rate must be >= 0, got %v", p.Rate)
	}
	if p.StaleThreshold < 0 || p.StaleThreshold > 1 {
		return fmt.Errorf("stale threshold must be within [0,1], got %v", p.StaleThreshold)
	}
	if p.HighThreshold < p.StaleThreshold || p.HighThreshold > 1 {
		return fmt.Errorf("high threshold must be within [stale threshold,1], got %v", p.HighThreshold)
	}
	return nil
}

func (p DecayPolicy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// Effective recomputes a sighting's confidence at the current time. Never cache the result.
func (p DecayPolicy) Effective(s types.ObjectSighting) float64 {
	return EffectiveConfidence(s.BaseConfidence, s.ConfirmedAt, p.now(), p.Rate)
}

// IsStale reports whether an effective confidence is below the trust threshold.
func (p DecayPolicy) IsStale(effective float64) bool {
	return effective < p.StaleThreshold-thresholdEpsilon
}

// Label maps a trusted effective confidence to High or Medium.
func (p DecayPolicy) Label(effective float64) types.ConfidenceLabel {
	if effective > p.HighThreshold {
		return types.ConfidenceHigh
	}
	return types.ConfidenceMedium
}
