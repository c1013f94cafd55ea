package storage

import (
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RetentionCleaner keeps the archive to a rolling number of hours per subject
type RetentionCleaner struct {
	store     Archive
	logger    zerolog.Logger
	retention time.Duration
	period    time.Duration
	now       func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu    sync.Mutex
	stats RetentionStats
}

// RetentionCleanerConfig holds configuration for the cleaner
type RetentionCleanerConfig struct {
	RetentionHours int           // hours of archive to keep (default: 24)
	CleanupPeriod  time.Duration // time between passes (default: 1 hour)
}

// DefaultRetentionCleanerConfig returns the defaults
func DefaultRetentionCleanerConfig() RetentionCleanerConfig {
	return RetentionCleanerConfig{
		RetentionHours: 24,
		CleanupPeriod:  time.Hour,
	}
}

// RetentionStats accumulates what the cleaner has removed
type RetentionStats struct {
	RetentionHours int              `json:"retention_hours"`
	Passes         int64            `json:"passes"`
	Failures       int64            `json:"failures"`
	LastPass       time.Time        `json:"last_pass"`
	LastPurge      Purge            `json:"last_purge"`
	ReadingsPurged map[string]int64 `json:"readings_purged"` // by subject
	AlertsPurged   int64            `json:"alerts_purged"`
}

// NewRetentionCleaner creates a cleaner and starts its loop with an immediate pass
func NewRetentionCleaner(store Archive, config RetentionCleanerConfig, logger zerolog.Logger) *RetentionCleaner {
	c := newRetentionCleaner(store, config, logger, time.Now)
	c.wg.Add(1)
	go c.loop()

	c.logger.Info().
		Int("retention_hours", c.stats.RetentionHours).
		Dur("cleanup_period", c.period).
		Msg("RetentionCleaner started")
	return c
}

func newRetentionCleaner(store Archive, config RetentionCleanerConfig, logger zerolog.Logger, now func() time.Time) *RetentionCleaner {
	defaults := DefaultRetentionCleanerConfig()
	logger = logger.With().Str("component", "retention").Logger()

	// time.NewTicker panics on a non-positive period
	if config.CleanupPeriod <= 0 {
		logger.Warn().Dur("provided_period", config.CleanupPeriod).Msg("Invalid cleanup period, using default")
		config.CleanupPeriod = defaults.CleanupPeriod
	}
	if config.RetentionHours <= 0 {
		config.RetentionHours = defaults.RetentionHours
	}

	return &RetentionCleaner{
		store:     store,
		logger:    logger,
		retention: time.Duration(config.RetentionHours) * time.Hour,
		period:    config.CleanupPeriod,
		now:       now,
		stopChan:  make(chan struct{}),
		stats: RetentionStats{
			RetentionHours: config.RetentionHours,
			ReadingsPurged: make(map[string]int64),
		},
	}
}

func (c *RetentionCleaner) loop() {
	defer c.wg.Done()

	c.RunNow()

	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.RunNow()
		case <-c.stopChan:
			c.logger.Info().Msg("RetentionCleaner stopped")
			return
		}
	}
}

// RunNow performs one pass and returns what it removed
func (c *RetentionCleaner) RunNow() (Purge, error) {
	now := c.now()
	purge, err := c.store.PurgeBefore(now.Add(-c.retention))

	c.mu.Lock()
	c.stats.Passes++
	c.stats.LastPass = now
	if err != nil {
		c.stats.Failures++
		c.mu.Unlock()
		c.logger.Error().Err(err).Msg("Retention pass failed")
		return Purge{}, err
	}
	c.stats.LastPurge = purge
	for subject, n := range purge.Readings {
		c.stats.ReadingsPurged[subject] += n
	}
	c.stats.AlertsPurged += purge.Alerts
	c.mu.Unlock()

	if len(purge.Readings) == 0 && purge.Alerts == 0 {
		c.logger.Debug().Time("cutoff", purge.Cutoff).Msg("Retention pass found nothing expired")
		return purge, nil
	}
	for subject, n := range purge.Readings {
		c.logger.Info().
			Str("subject", subject).
			Int64("readings", n).
			Time("cutoff", purge.Cutoff).
			Msg("Expired archived readings")
	}
	if purge.Alerts > 0 {
		c.logger.Info().Int64("alerts", purge.Alerts).Time("cutoff", purge.Cutoff).Msg("Expired archived alerts")
	}
	return purge, nil
}

// Stop ends the loop; a pass in progress finishes first
func (c *RetentionCleaner) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
}

// Stats returns a copy of the accumulated counters
func (c *RetentionCleaner) Stats() RetentionStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.stats
	out.ReadingsPurged = maps.Clone(c.stats.ReadingsPurged)
	return out
}
