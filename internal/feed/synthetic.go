package feed

import (
	"context"

	"github.com/afroash/worker-monitor/internal/models"
)

// SyntheticSource returns fixed demo values and never fails.
type SyntheticSource struct {
	motion models.MotionFields
	health models.HealthFields
}

// NewSyntheticSource creates the demo source used by the second worker.
func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{
		motion: models.MotionFields{
			AccX:           0.5,
			AccY:           0.3,
			AccZ:           9.8,
			EnvTemp:        22.5,
			Humidity:       55,
			GasLevel:       150,
			BatteryVoltage: 3.7,
			FallStatus:     "No Fall",
		},
		health: models.HealthFields{
			HeartRate:    78,
			AvgHeartRate: 75,
			BodyTemp:     36.5,
		},
	}
}

// Fetch returns the constant demo fields.
func (s *SyntheticSource) Fetch(ctx context.Context) (models.MotionFields, models.HealthFields, error) {
	return s.motion, s.health, nil
}
