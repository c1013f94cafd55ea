package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/worker-monitor/internal/models"
)

// timeFormat sorts lexically in time order
const timeFormat = "2006-01-02 15:04:05.000"

// Archive defines the interface for the reading/alert archive
type Archive interface {
	Close() error
	Migrate() error
	InsertRecord(record Record) error
	InsertBatch(records []Record) error
	GetReadingsInRange(subjectID string, start, end time.Time, limit int) ([]models.Reading, error)
	GetLatestReading(subjectID string) (*models.Reading, error)
	GetAlertsInRange(subjectID string, start, end time.Time, limit int) ([]models.Alert, error)
	PurgeBefore(cutoff time.Time) (Purge, error)
	GetStorageStats() (*StorageStats, error)
	GetSubjectIDs() ([]string, error)
}

// Compile-time interface check
var _ Archive = (*SQLiteStore)(nil)

// Record is one successful cycle: the reading and the alerts it raised.
type Record struct {
	Reading models.Reading
	Alerts  []models.Alert
}

// SQLiteStore archives readings and alerts to SQLite.
// It is write-mostly: the monitor never reloads its windows from it.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// StorageStats contains information about the database
type StorageStats struct {
	TotalReadings  int64     `json:"total_readings"`
	TotalAlerts    int64     `json:"total_alerts"`
	OldestReading  time.Time `json:"oldest_reading"`
	NewestReading  time.Time `json:"newest_reading"`
	UniqueSubjects int       `json:"unique_subjects"`
	DatabaseSizeMB float64   `json:"database_size_mb"`
}

// NewSQLiteStore opens (and migrates) the archive at dbPath
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "archive").Logger(),
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	store.logger.Info().Str("path", dbPath).Msg("SQLite archive initialized")
	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id TEXT NOT NULL,
		acc_x REAL NOT NULL,
		acc_y REAL NOT NULL,
		acc_z REAL NOT NULL,
		gas_level REAL NOT NULL,
		env_temp REAL NOT NULL,
		humidity REAL NOT NULL,
		battery_voltage REAL NOT NULL,
		fall_status TEXT NOT NULL,
		heart_rate REAL NOT NULL,
		avg_heart_rate REAL NOT NULL,
		body_temp REAL NOT NULL,
		recorded_at TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_readings_subject_time ON readings(subject_id, recorded_at DESC);
	CREATE INDEX IF NOT EXISTS idx_readings_time ON readings(recorded_at DESC);

	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		value REAL NOT NULL,
		threshold REAL NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_subject_time ON alerts(subject_id, recorded_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

const insertReadingSQL = `
	INSERT INTO readings (subject_id, acc_x, acc_y, acc_z, gas_level, env_temp, humidity,
		battery_voltage, fall_status, heart_rate, avg_heart_rate, body_temp, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const insertAlertSQL = `
	INSERT INTO alerts (subject_id, kind, severity, message, value, threshold, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

// InsertRecord inserts a single record
func (s *SQLiteStore) InsertRecord(record Record) error {
	return s.InsertBatch([]Record{record})
}

// InsertBatch inserts multiple records in a single transaction
func (s *SQLiteStore) InsertBatch(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	readingStmt, err := tx.Prepare(insertReadingSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer readingStmt.Close()

	alertStmt, err := tx.Prepare(insertAlertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer alertStmt.Close()

	alerts := 0
	for _, rec := range records {
		r := rec.Reading
		_, err := readingStmt.Exec(
			r.SubjectID, r.AccX, r.AccY, r.AccZ, r.GasLevel, r.EnvTemp, r.Humidity,
			r.BatteryVoltage, r.FallStatus, r.HeartRate, r.AvgHeartRate, r.BodyTemp,
			formatTime(r.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("failed to insert reading in batch: %w", err)
		}

		for _, a := range rec.Alerts {
			_, err := alertStmt.Exec(a.SubjectID, string(a.Kind), string(a.Severity), a.Message,
				a.Value, a.Threshold, formatTime(a.Timestamp))
			if err != nil {
				return fmt.Errorf("failed to insert alert in batch: %w", err)
			}
			alerts++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Int("readings", len(records)).Int("alerts", alerts).Msg("Batch insert completed")
	return nil
}

const selectReadingSQL = `
	SELECT subject_id, acc_x, acc_y, acc_z, gas_level, env_temp, humidity,
		battery_voltage, fall_status, heart_rate, avg_heart_rate, body_temp, recorded_at
	FROM readings
`

// GetReadingsInRange returns a subject's readings within [start, end], oldest first
func (s *SQLiteStore) GetReadingsInRange(subjectID string, start, end time.Time, limit int) ([]models.Reading, error) {
	rows, err := s.db.Query(selectReadingSQL+`
		WHERE subject_id = ? AND recorded_at BETWEEN ? AND ?
		ORDER BY recorded_at ASC
		LIMIT ?`,
		subjectID, formatTime(start), formatTime(end), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		r, err := s.scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return readings, nil
}

// GetLatestReading returns the most recent archived reading, or nil if there is none
func (s *SQLiteStore) GetLatestReading(subjectID string) (*models.Reading, error) {
	row := s.db.QueryRow(selectReadingSQL+`
		WHERE subject_id = ?
		ORDER BY recorded_at DESC
		LIMIT 1`, subjectID)

	r, err := s.scanReading(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}
	return &r, nil
}

// GetAlertsInRange returns a subject's alerts within [start, end], oldest first
func (s *SQLiteStore) GetAlertsInRange(subjectID string, start, end time.Time, limit int) ([]models.Alert, error) {
	rows, err := s.db.Query(`
		SELECT subject_id, kind, severity, message, value, threshold, recorded_at
		FROM alerts
		WHERE subject_id = ? AND recorded_at BETWEEN ? AND ?
		ORDER BY recorded_at ASC, id ASC
		LIMIT ?`,
		subjectID, formatTime(start), formatTime(end), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var kind, severity, recordedAt string
		if err := rows.Scan(&a.SubjectID, &kind, &severity, &a.Message, &a.Value, &a.Threshold, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Kind = models.AlertKind(kind)
		a.Severity = models.AlertSeverity(severity)
		if a.Timestamp, err = parseTimestamp(recordedAt); err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return alerts, nil
}

// Purge is what one retention pass removed from the archive.
type Purge struct {
	Cutoff   time.Time        `json:"cutoff"`
	Readings map[string]int64 `json:"readings"` // by subject
	Alerts   int64            `json:"alerts"`
}

// TotalReadings sums the purged readings over all subjects
func (p Purge) TotalReadings() int64 {
	var n int64
	for _, c := range p.Readings {
		n += c
	}
	return n
}

// PurgeBefore removes readings and alerts recorded before cutoff in one transaction
func (s *SQLiteStore) PurgeBefore(cutoff time.Time) (Purge, error) {
	purge := Purge{Cutoff: cutoff, Readings: make(map[string]int64)}
	ts := formatTime(cutoff)

	tx, err := s.db.Begin()
	if err != nil {
		return Purge{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT subject_id, COUNT(*) FROM readings
		WHERE recorded_at < ?
		GROUP BY subject_id`, ts)
	if err != nil {
		return Purge{}, fmt.Errorf("failed to count expired readings: %w", err)
	}
	for rows.Next() {
		var subject string
		var n int64
		if err := rows.Scan(&subject, &n); err != nil {
			rows.Close()
			return Purge{}, fmt.Errorf("failed to scan expired count: %w", err)
		}
		purge.Readings[subject] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Purge{}, fmt.Errorf("error iterating rows: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM readings WHERE recorded_at < ?", ts); err != nil {
		return Purge{}, fmt.Errorf("failed to delete expired readings: %w", err)
	}
	result, err := tx.Exec("DELETE FROM alerts WHERE recorded_at < ?", ts)
	if err != nil {
		return Purge{}, fmt.Errorf("failed to delete expired alerts: %w", err)
	}
	if purge.Alerts, err = result.RowsAffected(); err != nil {
		return Purge{}, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Purge{}, fmt.Errorf("failed to commit purge: %w", err)
	}
	return purge, nil
}

// GetStorageStats returns statistics about the database
func (s *SQLiteStore) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM readings").Scan(&stats.TotalReadings); err != nil {
		return nil, fmt.Errorf("failed to count readings: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM alerts").Scan(&stats.TotalAlerts); err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	if stats.TotalReadings > 0 {
		var oldestStr, newestStr string
		err := s.db.QueryRow("SELECT MIN(recorded_at), MAX(recorded_at) FROM readings").Scan(&oldestStr, &newestStr)
		if err != nil {
			return nil, fmt.Errorf("failed to get timestamp range: %w", err)
		}
		stats.OldestReading, _ = parseTimestamp(oldestStr)
		stats.NewestReading, _ = parseTimestamp(newestStr)

		if err := s.db.QueryRow("SELECT COUNT(DISTINCT subject_id) FROM readings").Scan(&stats.UniqueSubjects); err != nil {
			return nil, fmt.Errorf("failed to count subjects: %w", err)
		}
	}

	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

// GetSubjectIDs returns the subjects that have archived readings
func (s *SQLiteStore) GetSubjectIDs() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT subject_id FROM readings ORDER BY subject_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query subject IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subject ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) scanReading(row interface{ Scan(...any) error }) (models.Reading, error) {
	var r models.Reading
	var recordedAt string

	err := row.Scan(&r.SubjectID, &r.AccX, &r.AccY, &r.AccZ, &r.GasLevel, &r.EnvTemp, &r.Humidity,
		&r.BatteryVoltage, &r.FallStatus, &r.HeartRate, &r.AvgHeartRate, &r.BodyTemp, &recordedAt)
	if err != nil {
		return models.Reading{}, err
	}

	r.Timestamp, err = parseTimestamp(recordedAt)
	if err != nil {
		return models.Reading{}, fmt.Errorf("failed to parse recorded_at: %w", err)
	}
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// parseTimestamp tries multiple formats to parse a SQLite timestamp
func parseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		timeFormat,
		"2006-01-02 15:04:05",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}
