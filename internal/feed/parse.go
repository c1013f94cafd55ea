package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/afroash/worker-monitor/internal/models"
)

var (
	errNoEntries      = errors.New("feed has no entries")
	errMalformedEntry = errors.New("feed entry is not an object")
)

// channelPayload is the shape returned by a ThingSpeak feeds.json request.
type channelPayload struct {
	Feeds []json.RawMessage `json:"feeds"`
}

// Entry is one feed entry keyed by field name (field1..field8).
type Entry map[string]json.RawMessage

// parseLatest decodes a feeds payload and returns its most recent entry.
// Anything other than an object holding a non-empty feeds array of objects is rejected.
func parseLatest(body []byte) (Entry, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("unexpected payload: not a JSON object")
	}

	var payload channelPayload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}
	if len(payload.Feeds) == 0 {
		return nil, errNoEntries
	}

	last := bytes.TrimSpace(payload.Feeds[len(payload.Feeds)-1])
	if len(last) == 0 || last[0] != '{' {
		return nil, errMalformedEntry
	}

	var entry Entry
	if err := json.Unmarshal(last, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode feed entry: %w", err)
	}
	return entry, nil
}

// isBlank reports whether a raw value counts as missing: absent, null or "".
func isBlank(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	return len(v) == 0 || bytes.Equal(v, []byte("null")) || bytes.Equal(v, []byte(`""`))
}

// Float returns a numeric field, 0 when missing.
// Values may be JSON numbers or numeric strings; anything else is an error,
// including "nan" and "inf" which firmware posts on a failed sensor read.
func (e Entry) Float(field string) (float64, error) {
	raw, ok := e[field]
	if !ok || isBlank(raw) {
		return 0, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: not a number: %q", field, s)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%s: not a finite number: %q", field, s)
		}
		return f, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("%s: unexpected value %s", field, string(raw))
	}
	return f, nil
}

// Text returns a string field, or fallback when missing.
func (e Entry) Text(field, fallback string) (string, error) {
	raw, ok := e[field]
	if !ok || isBlank(raw) {
		return fallback, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s: unexpected value %s", field, string(raw))
	}
	return s, nil
}

// floats reads several numeric fields in order, stopping at the first error.
func (e Entry) floats(fields ...string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, field := range fields {
		v, err := e.Float(field)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// motionFromEntry maps the motion/environment channel's positional fields.
func motionFromEntry(e Entry) (models.MotionFields, error) {
	v, err := e.floats("field1", "field2", "field3", "field4", "field5", "field6", "field7")
	if err != nil {
		return models.MotionFields{}, err
	}
	fall, err := e.Text("field8", models.UnknownFallStatus)
	if err != nil {
		return models.MotionFields{}, err
	}
	return models.MotionFields{
		AccX:           v[0],
		AccY:           v[1],
		AccZ:           v[2],
		EnvTemp:        v[3],
		Humidity:       v[4],
		GasLevel:       v[5],
		BatteryVoltage: v[6],
		FallStatus:     fall,
	}, nil
}

// healthFromEntry maps the heart-rate/body-temperature channel's fields.
func healthFromEntry(e Entry) (models.HealthFields, error) {
	v, err := e.floats("field1", "field2", "field3")
	if err != nil {
		return models.HealthFields{}, err
	}
	return models.HealthFields{
		HeartRate:    v[0],
		AvgHeartRate: v[1],
		BodyTemp:     v[2],
	}, nil
}
