package server

import (
	"time"

	"github.com/afroash/worker-monitor/internal/models"
)

// Series holds the chart lines for one window, index-aligned with Timestamps.
type Series struct {
	SubjectID    string      `json:"subject_id"`
	Timestamps   []time.Time `json:"timestamps"`
	AccX         []float64   `json:"acc_x"`
	AccY         []float64   `json:"acc_y"`
	AccZ         []float64   `json:"acc_z"`
	HeartRate    []float64   `json:"heart_rate"`
	AvgHeartRate []float64   `json:"avg_heart_rate"`
	BodyTemp     []float64   `json:"body_temp"`
}

// NewSeries splits a window into the acceleration and health chart lines.
func NewSeries(subjectID string, window []models.Reading) Series {
	n := len(window)
	s := Series{
		SubjectID:    subjectID,
		Timestamps:   make([]time.Time, n),
		AccX:         make([]float64, n),
		AccY:         make([]float64, n),
		AccZ:         make([]float64, n),
		HeartRate:    make([]float64, n),
		AvgHeartRate: make([]float64, n),
		BodyTemp:     make([]float64, n),
	}
	for i, r := range window {
		s.Timestamps[i] = r.Timestamp
		s.AccX[i] = r.AccX
		s.AccY[i] = r.AccY
		s.AccZ[i] = r.AccZ
		s.HeartRate[i] = r.HeartRate
		s.AvgHeartRate[i] = r.AvgHeartRate
		s.BodyTemp[i] = r.BodyTemp
	}
	return s
}
