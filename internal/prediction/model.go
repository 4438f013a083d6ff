// Package prediction maps a feature vector to a fatigue risk assessment.
package prediction

import (
	"math/rand"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Nekit-S/drowsiness-detection/internal/features"
)

type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

const (
	RecommendationAsleep     = "driver is falling asleep"
	RecommendationDistracted = "driver is frequently distracted"
	RecommendationNormal     = "all normal"
	RecommendationNoSession  = "no active session"
)

// Rule thresholds, calibrated against the feature scaling in package features.
const (
	drowsyFractionThreshold     = 0.1
	blinksPerMinuteThreshold    = 24.0
	distractedFractionThreshold = 0.1

	// trainJitter bounds the per-weight perturbation applied by Train.
	trainJitter = 0.01
)

type Assessment struct {
	RiskLevel        Level   `json:"riskLevel"`
	Probability      float64 `json:"probability"`
	MinutesUntilHigh int     `json:"minutesUntilHigh"`
	Recommendation   string  `json:"recommendation"`
}

// NoSessionAssessment is returned for drivers without an active session.
func NoSessionAssessment() Assessment {
	return Assessment{
		RiskLevel:        LevelLow,
		Probability:      0,
		MinutesUntilHigh: 120,
		Recommendation:   RecommendationNoSession,
	}
}

// Sample is one labelled observation offered to Train.
type Sample struct {
	Features features.Vector `json:"features"`
	Label    Level           `json:"label"`
}

// Model is the prediction capability. RuleModel is the only implementation;
// a learned model can be dropped in behind the same interface.
type Model interface {
	Predict(v features.Vector) Assessment
	Train(samples []Sample)
}

// RuleModel evaluates fixed thresholds. Its weights are only touched by
// Train and do not influence Predict.
type RuleModel struct {
	mu      sync.Mutex
	weights map[string]float64
	rnd     func() float64
}

func DefaultWeights() map[string]float64 {
	return map[string]float64{
		features.EarValue:               0.33,
		features.DrowsyTimeFraction:     0.22,
		features.DrivingDuration:        0.17,
		features.TimeOfDay:              0.12,
		features.BlinkRate:              0.10,
		features.DistractedTimeFraction: 0.06,
	}
}

func NewRuleModel() *RuleModel {
	return NewRuleModelWithRand(rand.Float64)
}

// NewRuleModelWithRand uses rnd, which must return values in [0,1), as the
// source of training noise.
func NewRuleModelWithRand(rnd func() float64) *RuleModel {
	return &RuleModel{weights: DefaultWeights(), rnd: rnd}
}

func (m *RuleModel) Predict(v features.Vector) Assessment {
	drowsy := v.Get(features.DrowsyTimeFraction)
	distracted := v.Get(features.DistractedTimeFraction)
	blinksPerMinute := v.Get(features.BlinkRate) * 60

	switch {
	case drowsy > drowsyFractionThreshold || blinksPerMinute > blinksPerMinuteThreshold:
		return Assessment{RiskLevel: LevelHigh, Probability: 1.0, MinutesUntilHigh: 0, Recommendation: RecommendationAsleep}
	case distracted > distractedFractionThreshold:
		return Assessment{RiskLevel: LevelMedium, Probability: 0.5, MinutesUntilHigh: 10, Recommendation: RecommendationDistracted}
	default:
		return Assessment{RiskLevel: LevelLow, Probability: 0, MinutesUntilHigh: 120, Recommendation: RecommendationNormal}
	}
}

// Train nudges every weight by a bounded random delta, clamped to [0,1].
// Concurrent calls serialize; the last one wins.
func (m *RuleModel) Train(samples []Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, w := range m.weights {
		delta := (m.rnd() - 0.5) * trainJitter
		m.weights[name] = clamp(w+delta, 0, 1)
	}

	log.Info().Int("samples", len(samples)).Msg("model weights perturbed")
}

// Weights returns a copy of the current weight map.
func (m *RuleModel) Weights() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]float64, len(m.weights))
	for k, v := range m.weights {
		out[k] = v
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
