package models

import (
	"fmt"
	"time"
)

// UnknownFallStatus is used when the feed reports no fall label.
const UnknownFallStatus = "Unknown"

// MotionFields are the values carried by the motion/environment feed.
// field1..field8: accX, accY, accZ, envTemp, humidity, gas, battery, fall status.
type MotionFields struct {
	AccX           float64 `json:"acc_x"`
	AccY           float64 `json:"acc_y"`
	AccZ           float64 `json:"acc_z"`
	EnvTemp        float64 `json:"env_temp"`
	Humidity       float64 `json:"humidity"`
	GasLevel       float64 `json:"gas_level"`
	BatteryVoltage float64 `json:"battery_voltage"`
	FallStatus     string  `json:"fall_status"`
}

// HealthFields are the values carried by the heart-rate/body-temperature feed.
type HealthFields struct {
	HeartRate    float64 `json:"heart_rate"`
	AvgHeartRate float64 `json:"avg_heart_rate"`
	BodyTemp     float64 `json:"body_temp"`
}

// Reading is one merged, timestamped sample for a subject.
// It is a value type; copies never share state.
type Reading struct {
	SubjectID      string    `json:"subject_id"`
	Timestamp      time.Time `json:"timestamp"`
	AccX           float64   `json:"acc_x"`
	AccY           float64   `json:"acc_y"`
	AccZ           float64   `json:"acc_z"`
	GasLevel       float64   `json:"gas_level"`
	EnvTemp        float64   `json:"env_temp"`
	Humidity       float64   `json:"humidity"`
	BatteryVoltage float64   `json:"battery_voltage"`
	FallStatus     string    `json:"fall_status"`
	HeartRate      float64   `json:"heart_rate"`
	AvgHeartRate   float64   `json:"avg_heart_rate"`
	BodyTemp       float64   `json:"body_temp"`
}

// Merge builds a Reading from both feeds' fields and the ingestion time.
func Merge(subjectID string, motion MotionFields, health HealthFields, ts time.Time) Reading {
	fall := motion.FallStatus
	if fall == "" {
		fall = UnknownFallStatus
	}
	return Reading{
		SubjectID:      subjectID,
		Timestamp:      ts,
		AccX:           motion.AccX,
		AccY:           motion.AccY,
		AccZ:           motion.AccZ,
		GasLevel:       motion.GasLevel,
		EnvTemp:        motion.EnvTemp,
		Humidity:       motion.Humidity,
		BatteryVoltage: motion.BatteryVoltage,
		FallStatus:     fall,
		HeartRate:      health.HeartRate,
		AvgHeartRate:   health.AvgHeartRate,
		BodyTemp:       health.BodyTemp,
	}
}

// Motion returns the motion/environment part of the reading.
func (r Reading) Motion() MotionFields {
	return MotionFields{
		AccX:           r.AccX,
		AccY:           r.AccY,
		AccZ:           r.AccZ,
		EnvTemp:        r.EnvTemp,
		Humidity:       r.Humidity,
		GasLevel:       r.GasLevel,
		BatteryVoltage: r.BatteryVoltage,
		FallStatus:     r.FallStatus,
	}
}

// Health returns the health part of the reading.
func (r Reading) Health() HealthFields {
	return HealthFields{
		HeartRate:    r.HeartRate,
		AvgHeartRate: r.AvgHeartRate,
		BodyTemp:     r.BodyTemp,
	}
}

// IsZero reports whether the reading was never populated.
func (r Reading) IsZero() bool {
	return r.Timestamp.IsZero()
}

func (r Reading) String() string {
	return fmt.Sprintf("Subject: %s, Timestamp: %s, Acc: (%.2f, %.2f, %.2f) m/s², Gas: %.1f, Env: %.1f°C/%.1f%%, Battery: %.2fV, Fall: %s, BPM: %.0f (avg %.0f), Body: %.1f°C",
		r.SubjectID,
		r.Timestamp.Format(time.RFC3339),
		r.AccX, r.AccY, r.AccZ,
		r.GasLevel,
		r.EnvTemp, r.Humidity,
		r.BatteryVoltage,
		r.FallStatus,
		r.HeartRate, r.AvgHeartRate,
		r.BodyTemp)
}
