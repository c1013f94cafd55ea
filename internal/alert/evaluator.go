package alert

import (
	"strings"

	"github.com/afroash/worker-monitor/internal/models"
)

const (
	DefaultGasThreshold = 300.0
	DefaultFallKeyword  = "Fall"

	HighGasMessage      = "High Gas Level Detected!"
	FallDetectedMessage = "Fall Detected!"
)

// Thresholds configures the alert rules.
type Thresholds struct {
	GasLevel    float64
	FallKeyword string
}

// DefaultThresholds returns the stock rule configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		GasLevel:    DefaultGasThreshold,
		FallKeyword: DefaultFallKeyword,
	}
}

// Evaluator maps a reading to the alerts it triggers.
type Evaluator struct {
	gasThreshold float64
	fallKeyword  string
}

// NewEvaluator creates an evaluator. An empty fall keyword falls back to the default.
func NewEvaluator(t Thresholds) *Evaluator {
	keyword := t.FallKeyword
	if keyword == "" {
		keyword = DefaultFallKeyword
	}
	return &Evaluator{
		gasThreshold: t.GasLevel,
		fallKeyword:  strings.ToLower(keyword),
	}
}

// Evaluate runs every rule against r independently. Gas comes before fall.
// The result is never nil.
func (e *Evaluator) Evaluate(r models.Reading) []models.Alert {
	alerts := make([]models.Alert, 0, 2)

	if r.GasLevel >= e.gasThreshold {
		alerts = append(alerts, models.Alert{
			Kind:      models.AlertHighGas,
			Severity:  models.SeverityWarning,
			Message:   HighGasMessage,
			SubjectID: r.SubjectID,
			Timestamp: r.Timestamp,
			Value:     r.GasLevel,
			Threshold: e.gasThreshold,
		})
	}

	// Substring match: "no fall" matches too.
	if strings.Contains(strings.ToLower(r.FallStatus), e.fallKeyword) {
		alerts = append(alerts, models.Alert{
			Kind:      models.AlertFallDetected,
			Severity:  models.SeverityCritical,
			Message:   FallDetectedMessage,
			SubjectID: r.SubjectID,
			Timestamp: r.Timestamp,
		})
	}

	return alerts
}
