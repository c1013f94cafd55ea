// Package export renders a subject's window as a downloadable table.
package export

import (
	"strings"
	"time"

	"github.com/afroash/worker-monitor/internal/models"
)

type column struct {
	name  string
	value func(r models.Reading) any
}

// Column order follows the dashboard table with the timestamp last.
var columns = []column{
	{"acc_x", func(r models.Reading) any { return r.AccX }},
	{"acc_y", func(r models.Reading) any { return r.AccY }},
	{"acc_z", func(r models.Reading) any { return r.AccZ }},
	{"gas_level", func(r models.Reading) any { return r.GasLevel }},
	{"env_temp", func(r models.Reading) any { return r.EnvTemp }},
	{"humidity", func(r models.Reading) any { return r.Humidity }},
	{"battery_voltage", func(r models.Reading) any { return r.BatteryVoltage }},
	{"fall_status", func(r models.Reading) any { return r.FallStatus }},
	{"heart_rate", func(r models.Reading) any { return r.HeartRate }},
	{"avg_heart_rate", func(r models.Reading) any { return r.AvgHeartRate }},
	{"body_temp", func(r models.Reading) any { return r.BodyTemp }},
	{"timestamp", func(r models.Reading) any { return r.Timestamp.UTC().Format(time.RFC3339Nano) }},
}

// Header returns the column names
func Header() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.name
	}
	return out
}

// Filename returns the download name for a subject, e.g. worker-1 -> worker1_data.csv.
func Filename(subjectID, ext string) string {
	base := strings.ReplaceAll(subjectID, "-", "")
	if base == "" {
		base = "subject"
	}
	return base + "_data." + strings.TrimPrefix(ext, ".")
}
