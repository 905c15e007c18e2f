package models

import (
	"time"

	"github.com/google/uuid"
)

// Expression is one of the seven emotion classes the detector scores.
type Expression string

const (
	ExpressionAngry     Expression = "angry"
	ExpressionDisgusted Expression = "disgusted"
	ExpressionFearful   Expression = "fearful"
	ExpressionHappy     Expression = "happy"
	ExpressionNeutral   Expression = "neutral"
	ExpressionSad       Expression = "sad"
	ExpressionSurprised Expression = "surprised"
)

// ExpressionKeys is the pinned iteration order (alphabetical) used wherever
// the seven expressions are scanned. Dominant-expression tie-breaking depends
// on this order staying fixed.
var ExpressionKeys = []Expression{
	ExpressionAngry,
	ExpressionDisgusted,
	ExpressionFearful,
	ExpressionHappy,
	ExpressionNeutral,
	ExpressionSad,
	ExpressionSurprised,
}

// ExpressionVector maps each of the seven expressions to a probability in
// [0,1]. The detector produces vectors that sum to ~1; the classifier does
// not require that.
type ExpressionVector map[Expression]float64

// StressResult is the classifier's verdict for one capture attempt.
// StressLevel is binary: 100 when the dominant expression is a negative
// emotion, 0 otherwise. The raw vector is carried so consumers can recover
// magnitude. Timestamp is epoch milliseconds.
type StressResult struct {
	StressLevel        int              `json:"stress_level"`
	DominantExpression Expression       `json:"dominant_expression"`
	Expressions        ExpressionVector `json:"expressions"`
	IsStressed         bool             `json:"is_stressed"`
	Timestamp          int64            `json:"timestamp"`
}

// StressHistoryEntry is the reduced projection of a StressResult kept in the
// bounded history, newest first.
type StressHistoryEntry struct {
	ID                 string     `json:"id"`
	StressLevel        int        `json:"stress_level"`
	DominantExpression Expression `json:"dominant_expression"`
	Timestamp          int64      `json:"timestamp"`
}

func NewStressHistoryEntry(result StressResult) StressHistoryEntry {
	return StressHistoryEntry{
		ID:                 uuid.New().String(),
		StressLevel:        result.StressLevel,
		DominantExpression: result.DominantExpression,
		Timestamp:          result.Timestamp,
	}
}

// MonitoringConfig holds the user-adjustable, persisted monitoring settings.
type MonitoringConfig struct {
	TestIntervalMinutes     int  `json:"test_interval_minutes"`
	MaxHistoryItems         int  `json:"max_history_items"`
	AutoTestEnabled         bool `json:"auto_test_enabled"`
	ManualStressModeEnabled bool `json:"manual_stress_mode_enabled"`
}

func DefaultMonitoringConfig() MonitoringConfig {
	return MonitoringConfig{
		TestIntervalMinutes:     30,
		MaxHistoryItems:         100,
		AutoTestEnabled:         true,
		ManualStressModeEnabled: false,
	}
}

// TestInterval returns the configured cadence as a duration.
func (c MonitoringConfig) TestInterval() time.Duration {
	return time.Duration(c.TestIntervalMinutes) * time.Minute
}

// EpochMillis converts a time to the canonical timestamp representation.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
