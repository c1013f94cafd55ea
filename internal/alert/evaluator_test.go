package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/worker-monitor/internal/models"
)

func readingWith(gas float64, fall string) models.Reading {
	return models.Merge(models.WorkerOne,
		models.MotionFields{GasLevel: gas, FallStatus: fall},
		models.HealthFields{HeartRate: 80},
		time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
}

func kinds(alerts []models.Alert) []models.AlertKind {
	out := make([]models.AlertKind, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Kind)
	}
	return out
}

func TestEvaluate_GasThreshold(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	tests := []struct {
		name string
		gas  float64
		want bool
	}{
		{"well below", 150, false},
		{"just below", 299.99, false},
		{"at threshold", 300, true},
		{"above", 450, true},
		{"negative", -5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := e.Evaluate(readingWith(tt.gas, "Normal"))
			if tt.want {
				require.Len(t, alerts, 1)
				assert.Equal(t, models.AlertHighGas, alerts[0].Kind)
				assert.Equal(t, HighGasMessage, alerts[0].Message)
				assert.Equal(t, tt.gas, alerts[0].Value)
				assert.Equal(t, DefaultGasThreshold, alerts[0].Threshold)
			} else {
				assert.Empty(t, alerts)
			}
		})
	}
}

func TestEvaluate_GasIndependentOfOtherFields(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	r := readingWith(300, "Normal")
	r.HeartRate = 0
	r.BodyTemp = 45
	r.AccZ = -20

	assert.Equal(t, []models.AlertKind{models.AlertHighGas}, kinds(e.Evaluate(r)))
}

func TestEvaluate_FallKeyword(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	tests := []struct {
		status string
		want   bool
	}{
		{"Fall Detected", true},
		{"FALL", true},
		{"fall", true},
		{"no fall", true}, // substring, not whole word
		{"No Fall", true},
		{"Unknown", false},
		{"Normal", false},
		{"", false},
		{"Fal", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			alerts := e.Evaluate(readingWith(0, tt.status))
			if tt.want {
				require.Len(t, alerts, 1)
				assert.Equal(t, models.AlertFallDetected, alerts[0].Kind)
				assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
				assert.Equal(t, FallDetectedMessage, alerts[0].Message)
			} else {
				assert.Empty(t, alerts)
			}
		})
	}
}

func TestEvaluate_BothFireInOrder(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	alerts := e.Evaluate(readingWith(450, "Fall Detected"))

	require.Len(t, alerts, 2)
	assert.Equal(t, []models.AlertKind{models.AlertHighGas, models.AlertFallDetected}, kinds(alerts))
	for _, a := range alerts {
		assert.Equal(t, models.WorkerOne, a.SubjectID)
		assert.False(t, a.Timestamp.IsZero())
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())
	r := readingWith(450, "Fall Detected")

	// Re-evaluating the same reading re-emits; there is no cross-call state.
	first := e.Evaluate(r)
	second := e.Evaluate(r)
	assert.Equal(t, first, second)
}

func TestEvaluate_NeverNil(t *testing.T) {
	e := NewEvaluator(DefaultThresholds())

	alerts := e.Evaluate(readingWith(0, "Normal"))
	assert.NotNil(t, alerts)
	assert.Len(t, alerts, 0)
}

func TestNewEvaluator_CustomThresholds(t *testing.T) {
	e := NewEvaluator(Thresholds{GasLevel: 100, FallKeyword: "SLIP"})

	assert.Equal(t, []models.AlertKind{models.AlertHighGas}, kinds(e.Evaluate(readingWith(100, "fall"))))
	assert.Equal(t, []models.AlertKind{models.AlertFallDetected}, kinds(e.Evaluate(readingWith(0, "slipped"))))
}

func TestNewEvaluator_EmptyKeywordUsesDefault(t *testing.T) {
	e := NewEvaluator(Thresholds{GasLevel: DefaultGasThreshold})

	assert.Equal(t, []models.AlertKind{models.AlertFallDetected}, kinds(e.Evaluate(readingWith(0, "Fall Detected"))))
	assert.Empty(t, e.Evaluate(readingWith(0, "Normal")))
}
