package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nekit-S/drowsiness-detection/internal/audit"
	apperrors "github.com/Nekit-S/drowsiness-detection/internal/errors"
	"github.com/Nekit-S/drowsiness-detection/internal/features"
	"github.com/Nekit-S/drowsiness-detection/internal/metadata"
	"github.com/Nekit-S/drowsiness-detection/internal/metrics"
	"github.com/Nekit-S/drowsiness-detection/internal/model"
	"github.com/Nekit-S/drowsiness-detection/internal/prediction"
	"github.com/Nekit-S/drowsiness-detection/internal/repository"
	"github.com/Nekit-S/drowsiness-detection/internal/util"
)

const (
	reliableRiskBelow       = 0.05
	needsAttentionRiskBelow = 0.15

	unknownSource = "unknown"
)

// FeatureExtractor builds the feature vector for a driver's lookback window.
type FeatureExtractor interface {
	Extract(ctx context.Context, driverID string, sessionStart, now time.Time, window time.Duration) (features.Vector, error)
}

// TrainableModel is a prediction model whose weights can be inspected.
type TrainableModel interface {
	prediction.Model
	Weights() map[string]float64
}

type DriverStats struct {
	DriverID           string  `json:"driverId"`
	TotalEvents        int     `json:"totalEvents"`
	TotalDuration      float64 `json:"totalDuration"`
	DrowsyTime         float64 `json:"drowsyTime"`
	DistractedTime     float64 `json:"distractedTime"`
	DrowsyPercent      float64 `json:"drowsyPercent"`
	DistractedPercent  float64 `json:"distractedPercent"`
	NormalPercent      float64 `json:"normalPercent"`
	AvgEar             float64 `json:"avgEar"`
	AvgBlinkRate       float64 `json:"avgBlinkRate"`
	SessionCount       int     `json:"sessionCount"`
	AvgSessionDuration float64 `json:"avgSessionDuration"`
}

type MetadataSummary struct {
	DriverID           string                    `json:"driverId"`
	AvgDrowsyEar       *float64                  `json:"avgDrowsyEar"`
	Keys               []string                  `json:"keys"`
	SourceDistribution map[string]int            `json:"sourceDistribution"`
	TypeDistribution   map[model.DriverState]int `json:"typeDistribution"`
}

type DriverOverview struct {
	DriverID         string             `json:"driverId"`
	DriverName       string             `json:"driverName"`
	Rating           model.DriverRating `json:"rating"`
	HasActiveSession bool               `json:"hasActiveSession"`
}

type AnalyticsService struct {
	driverRepo  repository.DriverRepository
	eventRepo   repository.EventRepository
	sessionRepo repository.SessionRepository
	sessions    SessionLookup
	extractor   FeatureExtractor
	model       TrainableModel
	window      time.Duration
	now         func() time.Time
}

func NewAnalyticsService(
	driverRepo repository.DriverRepository,
	eventRepo repository.EventRepository,
	sessionRepo repository.SessionRepository,
	sessions SessionLookup,
	extractor FeatureExtractor,
	predictor TrainableModel,
	window time.Duration,
) *AnalyticsService {
	if window <= 0 {
		window = features.DefaultWindow
	}
	return &AnalyticsService{
		driverRepo:  driverRepo,
		eventRepo:   eventRepo,
		sessionRepo: sessionRepo,
		sessions:    sessions,
		extractor:   extractor,
		model:       predictor,
		window:      window,
		now:         time.Now,
	}
}

func (s *AnalyticsService) resolveWindow(window time.Duration) time.Duration {
	if window <= 0 {
		return s.window
	}
	return window
}

// GetFatiguePrediction assesses the driver over the lookback window. A
// driver with no active session gets the no-session assessment without any
// feature extraction.
func (s *AnalyticsService) GetFatiguePrediction(ctx context.Context, driverID string, window time.Duration) (*prediction.Assessment, error) {
	if !util.IsValidDriverID(driverID) {
		return nil, apperrors.InvalidInput("driverId", "must be exactly 6 digits")
	}

	session, err := s.sessions.GetActiveSession(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		a := prediction.NoSessionAssessment()
		metrics.RiskAssessments.WithLabelValues(string(a.RiskLevel)).Inc()
		return &a, nil
	}

	v, err := s.extractor.Extract(ctx, driverID, session.StartTime, s.now(), s.resolveWindow(window))
	if err != nil {
		return nil, apperrors.Database(err)
	}

	a := s.model.Predict(v)
	metrics.RiskAssessments.WithLabelValues(string(a.RiskLevel)).Inc()
	log.Debug().
		Str("driverId", driverID).
		Str("riskLevel", string(a.RiskLevel)).
		Msg("fatigue assessed")

	return &a, nil
}

// GetFeatures returns the raw feature vector. Without an active session the
// driving duration is zero.
func (s *AnalyticsService) GetFeatures(ctx context.Context, driverID string, window time.Duration) (features.Vector, error) {
	if !util.IsValidDriverID(driverID) {
		return nil, apperrors.InvalidInput("driverId", "must be exactly 6 digits")
	}

	session, err := s.sessions.GetActiveSession(ctx, driverID)
	if err != nil {
		return nil, err
	}

	var start time.Time
	if session != nil {
		start = session.StartTime
	}

	v, err := s.extractor.Extract(ctx, driverID, start, s.now(), s.resolveWindow(window))
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return v, nil
}

// DriverRating grades the share of risky events among all stored events.
func (s *AnalyticsService) DriverRating(ctx context.Context, driverID string) (model.DriverRating, error) {
	events, err := s.driverEvents(ctx, driverID)
	if err != nil {
		return "", err
	}
	return rate(events), nil
}

func rate(events []model.Event) model.DriverRating {
	var risky int
	for i := range events {
		if events[i].EventType.Storable() {
			risky++
		}
	}

	total := len(events)
	if total < 1 {
		total = 1
	}

	risk := float64(risky) / float64(total)
	switch {
	case risk < reliableRiskBelow:
		return model.DriverRatingReliable
	case risk < needsAttentionRiskBelow:
		return model.DriverRatingNeedsAttention
	default:
		return model.DriverRatingRisky
	}
}

func (s *AnalyticsService) DriverStats(ctx context.Context, driverID string) (*DriverStats, error) {
	events, err := s.driverEvents(ctx, driverID)
	if err != nil {
		return nil, err
	}

	stats := &DriverStats{DriverID: driverID, TotalEvents: len(events)}

	var normalTime, earSum, blinkSum float64
	var earCount, blinkCount int
	sessions := make(map[int64]struct{})

	for i := range events {
		e := &events[i]
		stats.TotalDuration += e.Duration
		switch e.EventType {
		case model.DriverStateDrowsy:
			stats.DrowsyTime += e.Duration
		case model.DriverStateDistracted:
			stats.DistractedTime += e.Duration
		default:
			normalTime += e.Duration
		}

		if e.EarValue != nil {
			earSum += *e.EarValue
			earCount++
		}
		if br, ok := metadata.Float(metadata.Decode(e.Metadata), "blinkRate"); ok {
			blinkSum += br
			blinkCount++
		}
		sessions[e.SessionID] = struct{}{}
	}

	if stats.TotalDuration > 0 {
		stats.DrowsyPercent = stats.DrowsyTime / stats.TotalDuration * 100
		stats.DistractedPercent = stats.DistractedTime / stats.TotalDuration * 100
		stats.NormalPercent = normalTime / stats.TotalDuration * 100
	}
	if earCount > 0 {
		stats.AvgEar = earSum / float64(earCount)
	}
	if blinkCount > 0 {
		stats.AvgBlinkRate = blinkSum / float64(blinkCount)
	}
	stats.SessionCount = len(sessions)
	if stats.SessionCount > 0 {
		stats.AvgSessionDuration = stats.TotalDuration / float64(stats.SessionCount)
	}

	return stats, nil
}

func (s *AnalyticsService) MetadataSummary(ctx context.Context, driverID string) (*MetadataSummary, error) {
	events, err := s.driverEvents(ctx, driverID)
	if err != nil {
		return nil, err
	}

	summary := &MetadataSummary{
		DriverID:           driverID,
		Keys:               []string{},
		SourceDistribution: make(map[string]int),
		TypeDistribution:   make(map[model.DriverState]int),
	}

	keys := make(map[string]struct{})
	var earSum float64
	var earCount int

	for i := range events {
		e := &events[i]
		meta := metadata.Decode(e.Metadata)

		for k := range meta {
			keys[k] = struct{}{}
		}

		source, _ := meta[metadata.KeySource].(string)
		if source == "" {
			source = unknownSource
		}
		summary.SourceDistribution[source]++
		summary.TypeDistribution[e.EventType]++

		if e.EventType != model.DriverStateDrowsy {
			continue
		}
		if ear, ok := drowsyEar(e, meta); ok {
			earSum += ear
			earCount++
		}
	}

	for k := range keys {
		summary.Keys = append(summary.Keys, k)
	}
	sort.Strings(summary.Keys)

	if earCount > 0 {
		avg := earSum / float64(earCount)
		summary.AvgDrowsyEar = &avg
	}

	return summary, nil
}

func drowsyEar(e *model.Event, meta map[string]any) (float64, bool) {
	if e.EarValue != nil {
		return *e.EarValue, true
	}
	if v, ok := metadata.Float(meta, metadata.KeyEarValue); ok {
		return v, true
	}
	return metadata.Float(meta, "eyeAspectRatio")
}

// DispatcherOverview lists every driver with its rating and session status.
func (s *AnalyticsService) DispatcherOverview(ctx context.Context) ([]DriverOverview, error) {
	drivers, err := s.driverRepo.FindAll(ctx)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("list drivers: %w", err))
	}

	active, err := s.sessionRepo.FindAllActive(ctx)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find active sessions: %w", err))
	}
	activeDrivers := make(map[string]bool, len(active))
	for i := range active {
		activeDrivers[active[i].DriverID] = true
	}

	overview := make([]DriverOverview, 0, len(drivers))
	for i := range drivers {
		d := &drivers[i]
		rating, err := s.DriverRating(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		overview = append(overview, DriverOverview{
			DriverID:         d.ID,
			DriverName:       d.Name,
			Rating:           rating,
			HasActiveSession: activeDrivers[d.ID],
		})
	}
	return overview, nil
}

// Train hands the samples to the model. The current rule model only
// perturbs its weights.
func (s *AnalyticsService) Train(ctx context.Context, samples []prediction.Sample) map[string]float64 {
	s.model.Train(samples)
	audit.Log(ctx, audit.Event{
		Type:    audit.EventModelTrained,
		Details: map[string]interface{}{"samples": len(samples)},
	})
	return s.model.Weights()
}

func (s *AnalyticsService) Weights() map[string]float64 {
	return s.model.Weights()
}

func (s *AnalyticsService) driverEvents(ctx context.Context, driverID string) ([]model.Event, error) {
	if !util.IsValidDriverID(driverID) {
		return nil, apperrors.InvalidInput("driverId", "must be exactly 6 digits")
	}

	events, err := s.eventRepo.FindByDriver(ctx, driverID, 0)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find driver events: %w", err))
	}
	return events, nil
}
