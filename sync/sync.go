// Package sync drains the store's offline sync queue to the broker once the
// connection is back up. Grounded on data_platform.DataPlatform.Run's
// fresh/old-reading drain loop and the original sync_manager.py: best-effort
// per cycle, stop the batch on first publish failure and retry next tick
// rather than looping to exhaustion (an unreachable broker would otherwise
// spin the sync manager hot).
package sync

import (
	"log/slog"
)

// maxBatchSize bounds how many queued rows are drained per call, matching
// DataPlatform's per-tick batch processing rather than draining the whole
// queue in one go.
const maxBatchSize = 50

// Publisher is the capability sync.Manager needs from the broker: publish a
// raw payload at the row's recorded QoS to its recorded topic.
type Publisher interface {
	PublishRaw(topic string, payload []byte, qos byte) error
}

// Row is the subset of a store.SyncQueueRow that sync.Manager needs, kept
// narrow so this package has no dependency on store's gorm types.
type Row struct {
	ID      uint
	Topic   string
	Payload string
	Qos     byte
}

// QueueStore is the capability sync.Manager needs from the store: fetch
// pending rows and mark a batch sent.
type QueueStore interface {
	FetchPendingSync(limit int) ([]Row, error)
	MarkSynced(ids []uint) error
}

// Manager drains QueueStore's pending rows to Publisher.
type Manager struct {
	store     QueueStore
	publisher Publisher
	logger    *slog.Logger
}

// New creates a Manager.
func New(store QueueStore, publisher Publisher) *Manager {
	return &Manager{store: store, publisher: publisher, logger: slog.Default().With("component", "sync")}
}

// Sync drains up to maxBatchSize pending rows, publishing each in order.
// Publishing stops at the first failure - the failed row and everything
// after it in this batch are retried on the next call, matching
// DataPlatform.processOldReadings's "don't keep pounding a down link"
// posture. Returns the number of rows successfully synced.
func (m *Manager) Sync() (int, error) {
	rows, err := m.store.FetchPendingSync(maxBatchSize)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	synced := make([]uint, 0, len(rows))
	for _, row := range rows {
		if err := m.publisher.PublishRaw(row.Topic, []byte(row.Payload), row.Qos); err != nil {
			m.logger.Warn("sync publish failed, stopping batch", "topic", row.Topic, "error", err)
			break
		}
		synced = append(synced, row.ID)
	}

	if len(synced) == 0 {
		return 0, nil
	}
	if err := m.store.MarkSynced(synced); err != nil {
		return 0, err
	}
	return len(synced), nil
}
