package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/afroash/worker-monitor/internal/models"
)

func sampleReadings(n int) []models.Reading {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	out := make([]models.Reading, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Merge(models.WorkerOne,
			models.MotionFields{AccX: 0.5, AccY: 0.25, AccZ: 9.8, GasLevel: 150 + float64(i), FallStatus: "No Fall"},
			models.HealthFields{HeartRate: 78, AvgHeartRate: 75, BodyTemp: 36.5},
			base.Add(time.Duration(i)*time.Second)))
	}
	return out
}

func TestHeader(t *testing.T) {
	assert.Equal(t, []string{
		"acc_x", "acc_y", "acc_z", "gas_level", "env_temp", "humidity", "battery_voltage",
		"fall_status", "heart_rate", "avg_heart_rate", "body_temp", "timestamp",
	}, Header())
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "worker1_data.csv", Filename("worker-1", "csv"))
	assert.Equal(t, "worker2_data.xlsx", Filename("worker-2", ".xlsx"))
	assert.Equal(t, "subject_data.csv", Filename("", "csv"))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleReadings(3)))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, Header(), records[0])
	assert.Equal(t, []string{
		"0.5", "0.25", "9.8", "150", "0", "0", "0", "No Fall", "78", "75", "36.5", "2024-03-01T08:00:00Z",
	}, records[1])
	assert.Equal(t, "152", records[3][3])
	assert.Equal(t, "2024-03-01T08:00:02Z", records[3][11])
}

func TestWriteCSV_SubSecondTimestamps(t *testing.T) {
	readings := sampleReadings(2)
	readings[0].Timestamp = time.Date(2024, 3, 1, 8, 0, 0, 123456000, time.UTC)
	readings[1].Timestamp = time.Date(2024, 3, 1, 9, 0, 0, 500000000, time.FixedZone("CET", 3600))

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, readings))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "2024-03-01T08:00:00.123456Z", records[1][11])
	assert.Equal(t, "2024-03-01T08:00:00.5Z", records[2][11])

	parsed, err := time.Parse(time.RFC3339Nano, records[1][11])
	require.NoError(t, err)
	assert.True(t, parsed.Equal(readings[0].Timestamp))
}

func TestWriteCSV_EmptyWindow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestWriteCSV_QuotesFallStatus(t *testing.T) {
	r := sampleReadings(1)
	r[0].FallStatus = "Fall, hard"

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, r))
	assert.Contains(t, buf.String(), `"Fall, hard"`)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleReadings(3)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Header(), rows[0])
	assert.Equal(t, "No Fall", rows[1][7])
	assert.Equal(t, "151", rows[2][3])
	assert.Equal(t, "2024-03-01T08:00:02Z", rows[3][11])
}
