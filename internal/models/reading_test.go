// internal/models/reading_test.go
package models

import (
	"strings"
	"testing"
	"time"
)

func TestMerge(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	motion := MotionFields{
		AccX:           0.5,
		AccY:           0.3,
		AccZ:           9.8,
		EnvTemp:        22.5,
		Humidity:       55,
		GasLevel:       150,
		BatteryVoltage: 3.7,
		FallStatus:     "No Fall",
	}
	health := HealthFields{HeartRate: 78, AvgHeartRate: 75, BodyTemp: 36.5}

	r := Merge(WorkerTwo, motion, health, ts)

	if r.SubjectID != WorkerTwo {
		t.Errorf("SubjectID = %v, want %v", r.SubjectID, WorkerTwo)
	}
	if !r.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", r.Timestamp, ts)
	}
	if r.Motion() != motion {
		t.Errorf("Motion() = %+v, want %+v", r.Motion(), motion)
	}
	if r.Health() != health {
		t.Errorf("Health() = %+v, want %+v", r.Health(), health)
	}
}

func TestMerge_DefaultsFallStatus(t *testing.T) {
	r := Merge(WorkerOne, MotionFields{}, HealthFields{}, time.Now())

	if r.FallStatus != UnknownFallStatus {
		t.Errorf("FallStatus = %q, want %q", r.FallStatus, UnknownFallStatus)
	}
	if r.GasLevel != 0 || r.HeartRate != 0 || r.BodyTemp != 0 {
		t.Errorf("numeric fields should default to zero: %+v", r)
	}
}

func TestReading_ValueSemantics(t *testing.T) {
	original := Merge(WorkerOne, MotionFields{GasLevel: 100}, HealthFields{}, time.Now())

	copied := original
	copied.GasLevel = 999

	if original.GasLevel != 100 {
		t.Errorf("original modified through copy: GasLevel = %v", original.GasLevel)
	}
}

func TestReading_IsZero(t *testing.T) {
	if !(Reading{}).IsZero() {
		t.Error("empty reading should be zero")
	}
	if Merge(WorkerOne, MotionFields{}, HealthFields{}, time.Now()).IsZero() {
		t.Error("merged reading should not be zero")
	}
}

func TestReading_String(t *testing.T) {
	r := Merge(WorkerOne, MotionFields{GasLevel: 321, FallStatus: "Fall Detected"}, HealthFields{HeartRate: 80}, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	s := r.String()
	for _, want := range []string{"worker-1", "2024-01-01T12:00:00Z", "Gas: 321.0", "Fall: Fall Detected", "BPM: 80"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestDefaultSubjects(t *testing.T) {
	subjects := DefaultSubjects()
	if len(subjects) != 2 {
		t.Fatalf("len(DefaultSubjects()) = %d, want 2", len(subjects))
	}
	if !subjects[0].IsLive() || !subjects[0].Alerting {
		t.Errorf("worker-1 should be live with alerting: %+v", subjects[0])
	}
	if subjects[1].IsLive() || subjects[1].Alerting {
		t.Errorf("worker-2 should be synthetic without alerting: %+v", subjects[1])
	}
}
