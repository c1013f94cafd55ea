package buffer

import (
	"fmt"
	"sync"
	"time"

	"github.com/afroash/worker-monitor/internal/models"
)

// RollingBuffer is an append-only, time-ordered store of readings for one subject.
// Callers append with monotonically increasing timestamps.
type RollingBuffer struct {
	readings      []models.Reading
	retention     time.Duration
	evictOnAppend bool
	mutex         sync.RWMutex
	stats         Stats
}

// Stats tracks buffer usage statistics
type Stats struct {
	TotalAppended  int64     `json:"total_appended"`
	TotalEvicted   int64     `json:"total_evicted"`
	HighWaterMark  int       `json:"high_water_mark"`
	LastAppendTime time.Time `json:"last_append_time,omitempty"`
	LastEvictTime  time.Time `json:"last_evict_time,omitempty"`
}

// NewRollingBuffer creates an empty buffer.
// With evictOnAppend set, entries older than retention relative to the newest
// appended timestamp are physically dropped on Append.
func NewRollingBuffer(retention time.Duration, evictOnAppend bool) *RollingBuffer {
	return &RollingBuffer{
		readings:      make([]models.Reading, 0, 64),
		retention:     retention,
		evictOnAppend: evictOnAppend,
	}
}

// Append adds a reading to the end of the sequence.
func (rb *RollingBuffer) Append(reading models.Reading) {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	rb.readings = append(rb.readings, reading)
	rb.stats.TotalAppended++
	rb.stats.LastAppendTime = time.Now()

	if len(rb.readings) > rb.stats.HighWaterMark {
		rb.stats.HighWaterMark = len(rb.readings)
	}

	if rb.evictOnAppend && rb.retention > 0 {
		rb.evictBefore(reading.Timestamp.Add(-rb.retention))
	}
}

// evictBefore drops leading entries older than cutoff. Caller holds the lock.
func (rb *RollingBuffer) evictBefore(cutoff time.Time) {
	n := 0
	for n < len(rb.readings) && rb.readings[n].Timestamp.Before(cutoff) {
		n++
	}
	if n == 0 {
		return
	}
	// Copy down so the dropped prefix can be collected.
	kept := make([]models.Reading, len(rb.readings)-n, cap(rb.readings))
	copy(kept, rb.readings[n:])
	rb.readings = kept
	rb.stats.TotalEvicted += int64(n)
	rb.stats.LastEvictTime = time.Now()
}

// Window returns the entries with Timestamp >= now-d, oldest first.
// The returned slice is a copy.
func (rb *RollingBuffer) Window(now time.Time, d time.Duration) []models.Reading {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	cutoff := now.Add(-d)
	start := len(rb.readings)
	for i, r := range rb.readings {
		if !r.Timestamp.Before(cutoff) {
			start = i
			break
		}
	}

	result := make([]models.Reading, len(rb.readings)-start)
	copy(result, rb.readings[start:])
	return result
}

// Latest returns the most recently appended reading.
func (rb *RollingBuffer) Latest() (models.Reading, bool) {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	if len(rb.readings) == 0 {
		return models.Reading{}, false
	}
	return rb.readings[len(rb.readings)-1], true
}

// Len returns the number of stored entries, including any not yet evicted.
func (rb *RollingBuffer) Len() int {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return len(rb.readings)
}

// Retention returns the configured retention duration
func (rb *RollingBuffer) Retention() time.Duration {
	// No lock needed, retention doesn't change
	return rb.retention
}

// Stats returns a copy of current buffer statistics
func (rb *RollingBuffer) Stats() Stats {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return rb.stats
}

// String returns a human-readable representation of buffer state
func (rb *RollingBuffer) String() string {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	mode := "filter-on-read"
	if rb.evictOnAppend {
		mode = "evict-on-append"
	}

	return fmt.Sprintf("Buffer[%d entries, retention: %s, evicted: %d, mode: %s]",
		len(rb.readings),
		rb.retention,
		rb.stats.TotalEvicted,
		mode,
	)
}

// Tail returns the last n entries of readings, or all of them if there are fewer.
func Tail(readings []models.Reading, n int) []models.Reading {
	if n <= 0 {
		return []models.Reading{}
	}
	start := len(readings) - n
	if start < 0 {
		start = 0
	}
	result := make([]models.Reading, len(readings)-start)
	copy(result, readings[start:])
	return result
}
