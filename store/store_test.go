package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rasecorreia-star/lifo4-ems-sub001/telemetry"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "store.sqlite")
	s, err := Open(dbPath, DefaultRetentionPolicy())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndFetchSyncQueue(t *testing.T) {
	s := openTestStore(t)

	s.EnqueueSync("bess/site1/alarms", `{"msg":"test"}`, 1)
	s.EnqueueSync("bess/site1/decisions", `{"action":"CHARGE"}`, 1)

	rows, err := s.FetchPendingSync(10)
	if err != nil {
		t.Fatalf("fetch pending: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 pending rows, got %d", len(rows))
	}

	ids := []uint{rows[0].ID, rows[1].ID}
	if err := s.MarkSynced(ids); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	remaining, err := s.FetchPendingSync(10)
	if err != nil {
		t.Fatalf("fetch pending after mark: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected 0 pending rows after mark synced, got %d", len(remaining))
	}
}

func TestAppendTelemetryAndDecision(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	s.AppendTelemetry(telemetry.Snapshot{Time: now, Soc: 50, Soh: 98})
	s.AppendDecision(telemetry.Decision{Time: now, Action: telemetry.ActionCharge, PowerKw: 10, Layer: telemetry.LayerEconomic, Confidence: 1})

	var telemetryCount int64
	s.db.Model(&TelemetryRow{}).Count(&telemetryCount)
	if telemetryCount != 1 {
		t.Fatalf("expected 1 telemetry row, got %d", telemetryCount)
	}

	var decisionCount int64
	s.db.Model(&DecisionRow{}).Count(&decisionCount)
	if decisionCount != 1 {
		t.Fatalf("expected 1 decision row, got %d", decisionCount)
	}
}

func TestAppendAlarmAndRetentionSweep(t *testing.T) {
	s := openTestStore(t)

	s.AppendAlarm("critical", "emergency_stop", "cell overvoltage", map[string]any{"value": 3.7})

	var row AlarmRow
	if err := s.db.First(&row).Error; err != nil {
		t.Fatalf("expected one alarm row: %v", err)
	}
	if err := s.AcknowledgeAlarm(row.ID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	// sweep with a cutoff far in the future deletes the (now acknowledged) alarm
	s.RetentionSweep(time.Now().AddDate(1, 0, 0))

	var count int64
	s.db.Model(&AlarmRow{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected alarm to be swept, got %d rows", count)
	}
}
