package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/worker-monitor/internal/monitor"
)

// DBWriter archives cycle results asynchronously in batches
type DBWriter struct {
	store       Archive
	logger      zerolog.Logger
	writeChan   chan Record
	batchSize   int
	flushPeriod time.Duration
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	// Stats
	mu            sync.RWMutex
	totalWritten  int64
	totalBatches  int64
	totalErrors   int64
	totalDropped  int64
	lastWriteTime time.Time
}

// DBWriterConfig holds configuration for the async writer
type DBWriterConfig struct {
	BatchSize   int           // records per write (default: 50)
	FlushPeriod time.Duration // max time between flushes (default: 5s)
	ChannelSize int           // queued records before dropping (default: 500)
}

// DefaultDBWriterConfig returns the defaults
func DefaultDBWriterConfig() DBWriterConfig {
	return DBWriterConfig{
		BatchSize:   50,
		FlushPeriod: 5 * time.Second,
		ChannelSize: 500,
	}
}

// DBWriterStats contains statistics about the writer
type DBWriterStats struct {
	TotalWritten  int64     `json:"total_written"`
	TotalBatches  int64     `json:"total_batches"`
	TotalErrors   int64     `json:"total_errors"`
	TotalDropped  int64     `json:"total_dropped"`
	LastWriteTime time.Time `json:"last_write_time"`
	QueueLength   int       `json:"queue_length"`
}

// NewDBWriter creates and starts an async archive writer
func NewDBWriter(store Archive, config DBWriterConfig, logger zerolog.Logger) *DBWriter {
	defaults := DefaultDBWriterConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.FlushPeriod <= 0 {
		config.FlushPeriod = defaults.FlushPeriod
	}
	if config.ChannelSize <= 0 {
		config.ChannelSize = defaults.ChannelSize
	}

	w := &DBWriter{
		store:       store,
		logger:      logger.With().Str("component", "dbwriter").Logger(),
		writeChan:   make(chan Record, config.ChannelSize),
		batchSize:   config.BatchSize,
		flushPeriod: config.FlushPeriod,
		stopChan:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writerLoop()

	w.logger.Info().
		Int("batch_size", config.BatchSize).
		Dur("flush_period", config.FlushPeriod).
		Int("channel_size", config.ChannelSize).
		Msg("DBWriter started")

	return w
}

// Present queues successful cycles for archiving. Failed cycles carry no reading.
func (w *DBWriter) Present(ctx context.Context, result monitor.TickResult) {
	if !result.OK() {
		return
	}
	w.Write(Record{Reading: result.Reading, Alerts: result.Alerts})
}

// Write queues a record for async writing.
// Returns true if queued, false if dropped (channel full or writer stopped)
func (w *DBWriter) Write(record Record) bool {
	select {
	case <-w.stopChan:
		return false
	default:
	}

	select {
	case w.writeChan <- record:
		return true
	default:
		w.mu.Lock()
		w.totalDropped++
		w.mu.Unlock()
		w.logger.Warn().Str("subject", record.Reading.SubjectID).Msg("DBWriter channel full, dropping record")
		return false
	}
}

// writerLoop is the background goroutine that batches and writes records
func (w *DBWriter) writerLoop() {
	defer w.wg.Done()

	batch := make([]Record, 0, w.batchSize)
	ticker := time.NewTicker(w.flushPeriod)
	defer ticker.Stop()

	for {
		select {
		case record := <-w.writeChan:
			batch = append(batch, record)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = make([]Record, 0, w.batchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = make([]Record, 0, w.batchSize)
			}

		case <-w.stopChan:
			// Drain remaining records from channel
			draining := true
			for draining {
				select {
				case record := <-w.writeChan:
					batch = append(batch, record)
				default:
					draining = false
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			w.logger.Info().Msg("DBWriter stopped")
			return
		}
	}
}

// flush writes a batch to the archive
func (w *DBWriter) flush(batch []Record) {
	if len(batch) == 0 {
		return
	}

	err := w.store.InsertBatch(batch)

	w.mu.Lock()
	if err != nil {
		w.totalErrors++
		w.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to write batch")
	} else {
		w.totalWritten += int64(len(batch))
		w.totalBatches++
		w.lastWriteTime = time.Now()
		w.logger.Debug().Int("count", len(batch)).Msg("Flushed batch")
	}
	w.mu.Unlock()
}

// Stop gracefully stops the writer, flushing any remaining data
func (w *DBWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
	})
}

// Stats returns current writer statistics
func (w *DBWriter) Stats() DBWriterStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return DBWriterStats{
		TotalWritten:  w.totalWritten,
		TotalBatches:  w.totalBatches,
		TotalErrors:   w.totalErrors,
		TotalDropped:  w.totalDropped,
		LastWriteTime: w.lastWriteTime,
		QueueLength:   len(w.writeChan),
	}
}
