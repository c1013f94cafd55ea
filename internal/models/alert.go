package models

import "time"

// AlertKind identifies which rule produced an alert.
type AlertKind string

const (
	AlertHighGas      AlertKind = "high_gas"
	AlertFallDetected AlertKind = "fall_detected"
)

// AlertSeverity represents how urgent an alert is.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is derived from a single reading and never stored in the window.
type Alert struct {
	Kind      AlertKind     `json:"kind"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	SubjectID string        `json:"subject_id"`
	Timestamp time.Time     `json:"timestamp"`
	// Value and Threshold are only set for numeric rules.
	Value     float64 `json:"value,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}
