// Package store implements the durable, append-only, indexed local store:
// telemetry, decisions, alarms, and a sync queue, with retention sweeps.
// Grounded on repository/repository.go (gorm.io/gorm over
// github.com/glebarez/sqlite, AutoMigrate, create/delete helpers) and the
// original local_db.py's four-table schema, WAL journaling, and retention
// policy. Kept on glebarez/sqlite (pure-Go, no cgo) exactly as
// Repository.New does, rather than switching to mattn/go-sqlite3 which only
// appears as an indirect dependency of gorm's own sqlite driver.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/rasecorreia-star/lifo4-ems-sub001/telemetry"
)

// TelemetryRow mirrors the telemetry table: timestamp is the primary key,
// enforcing at-most-one row per tick.
type TelemetryRow struct {
	Timestamp       time.Time `gorm:"primaryKey"`
	Soc             float64
	Soh             float64
	Voltage         float64
	Current         float64
	PowerKw         float64
	TempMin         float64
	TempMax         float64
	TempAvg         float64
	Frequency       float64
	GridVoltage     float64
	CellVoltageMin  float64
	CellVoltageMax  float64
}

// DecisionRow mirrors the decisions table.
type DecisionRow struct {
	Timestamp   time.Time `gorm:"primaryKey"`
	Action      string
	PowerKw     float64
	DurationMin float64
	Priority    string
	Reason      string
	Confidence  float64
	Mode        string
}

// AlarmRow mirrors the alarms table.
type AlarmRow struct {
	ID           uint `gorm:"primaryKey;autoIncrement"`
	Timestamp    time.Time `gorm:"index:idx_alarms_timestamp,sort:desc"`
	Severity     string
	Type         string
	Message      string
	Metadata     string // JSON-encoded free-form metadata
	Acknowledged bool
}

// SyncQueueRow mirrors the sync_queue table.
type SyncQueueRow struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	Topic     string
	Payload   string
	Qos       byte
	CreatedAt time.Time `gorm:"index:idx_sync_queue_sent_created,priority:2"`
	Sent      bool      `gorm:"index:idx_sync_queue_sent_created,priority:1"`
}

// RetentionPolicy bounds how long each table's rows are kept.
type RetentionPolicy struct {
	TelemetryHours       int
	DecisionDays         int
	AcknowledgedAlarmDays int
	SentSyncQueueDays    int
}

// DefaultRetentionPolicy returns the site's standard retention windows.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		TelemetryHours:        72,
		DecisionDays:          30,
		AcknowledgedAlarmDays: 30,
		SentSyncQueueDays:     7,
	}
}

// Store is the durable local store. Its *gorm.DB handle is serialized
// through database/sql's own connection pool; the mutex additionally
// serializes the higher-level read-modify-write sequences (retention
// sweeps, mark-synced) that span more than one SQL statement.
type Store struct {
	mu     sync.Mutex
	db     *gorm.DB
	policy RetentionPolicy
	logger *slog.Logger
}

// Open creates or opens the sqlite database at path and migrates the four
// tables, matching Repository.New's AutoMigrate call.
func Open(path string, policy RetentionPolicy) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := db.AutoMigrate(&TelemetryRow{}, &DecisionRow{}, &AlarmRow{}, &SyncQueueRow{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db, policy: policy, logger: slog.Default().With("component", "store")}, nil
}

// AppendTelemetry inserts one telemetry row. A failure here is logged and
// the cycle continues; no in-memory state depends on success.
func (s *Store) AppendTelemetry(snap telemetry.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := TelemetryRow{
		Timestamp:      snap.Time,
		Soc:            snap.Soc,
		Soh:            snap.Soh,
		Voltage:        snap.PackVoltageV,
		Current:        snap.PackCurrentA,
		PowerKw:        snap.PowerKw,
		TempMin:        snap.TempMinC,
		TempMax:        snap.TempMaxC,
		TempAvg:        snap.TempAvgC,
		Frequency:      snap.GridFreqHz,
		GridVoltage:    snap.GridVoltageV,
		CellVoltageMin: snap.CellVoltageMinV,
		CellVoltageMax: snap.CellVoltageMaxV,
	}
	if err := s.db.Create(&row).Error; err != nil {
		s.logger.Error("failed to append telemetry row", "error", err)
	}
}

// AppendDecision inserts one decision row.
func (s *Store) AppendDecision(d telemetry.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := DecisionRow{
		Timestamp:  d.Time,
		Action:     string(d.Action),
		PowerKw:    d.PowerKw,
		Priority:   string(d.Layer),
		Reason:     d.Reason,
		Confidence: d.Confidence,
		Mode:       string(d.Layer),
	}
	if err := s.db.Create(&row).Error; err != nil {
		s.logger.Error("failed to append decision row", "error", err)
	}
}

// AppendAlarm inserts one alarm row. Satisfies blackstart.AlarmSink and is
// the sink for every user-visible safety-violation emission.
func (s *Store) AppendAlarm(severity, alarmType, message string, metadata map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metaJSON := "{}"
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			metaJSON = string(b)
		}
	}
	row := AlarmRow{
		Timestamp: time.Now().UTC(),
		Severity:  severity,
		Type:      alarmType,
		Message:   message,
		Metadata:  metaJSON,
	}
	if err := s.db.Create(&row).Error; err != nil {
		s.logger.Error("failed to append alarm row", "error", err)
	}
}

// EnqueueSync appends a message to the sync queue for later delivery by the
// sync package, used when the broker is offline.
func (s *Store) EnqueueSync(topic, payload string, qos byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := SyncQueueRow{Topic: topic, Payload: payload, Qos: qos, CreatedAt: time.Now().UTC(), Sent: false}
	if err := s.db.Create(&row).Error; err != nil {
		s.logger.Error("failed to enqueue sync row", "error", err)
	}
}

// FetchPendingSync returns up to limit unsent sync-queue rows, oldest first.
func (s *Store) FetchPendingSync(limit int) ([]SyncQueueRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []SyncQueueRow
	result := s.db.Where("sent = ?", false).Order("created_at asc").Limit(limit).Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("fetch pending sync rows: %w", result.Error)
	}
	return rows, nil
}

// MarkSynced flags the given sync-queue row IDs as sent.
func (s *Store) MarkSynced(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.Model(&SyncQueueRow{}).Where("id IN ?", ids).Update("sent", true)
	return result.Error
}

// RetentionSweep deletes rows older than the configured retention windows
// and checkpoints the WAL.
func (s *Store) RetentionSweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	telemetryCutoff := now.Add(-time.Duration(s.policy.TelemetryHours) * time.Hour)
	decisionCutoff := now.AddDate(0, 0, -s.policy.DecisionDays)
	alarmCutoff := now.AddDate(0, 0, -s.policy.AcknowledgedAlarmDays)
	syncCutoff := now.AddDate(0, 0, -s.policy.SentSyncQueueDays)

	if err := s.db.Where("timestamp < ?", telemetryCutoff).Delete(&TelemetryRow{}).Error; err != nil {
		s.logger.Error("retention sweep failed for telemetry", "error", err)
	}
	if err := s.db.Where("timestamp < ?", decisionCutoff).Delete(&DecisionRow{}).Error; err != nil {
		s.logger.Error("retention sweep failed for decisions", "error", err)
	}
	if err := s.db.Where("acknowledged = ? AND timestamp < ?", true, alarmCutoff).Delete(&AlarmRow{}).Error; err != nil {
		s.logger.Error("retention sweep failed for alarms", "error", err)
	}
	if err := s.db.Where("sent = ? AND created_at < ?", true, syncCutoff).Delete(&SyncQueueRow{}).Error; err != nil {
		s.logger.Error("retention sweep failed for sync queue", "error", err)
	}

	if err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)").Error; err != nil {
		s.logger.Error("wal checkpoint failed", "error", err)
	}
}

// AcknowledgeAlarm marks an alarm acknowledged, making it eligible for the
// retention sweep, which ages alarms from their creation timestamp.
func (s *Store) AcknowledgeAlarm(id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Model(&AlarmRow{}).Where("id = ?", id).Update("acknowledged", true).Error
}

// Close flushes and closes the underlying database connection. Called
// after the broker publishes its offline status during shutdown.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
