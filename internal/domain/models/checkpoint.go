package models

import (
	"time"

	"github.com/athebyme/gomarket-sync/pkg/dto"
)

// CheckpointStatus статус последнего запуска синхронизации
type CheckpointStatus string

const (
	CheckpointNeverSynced CheckpointStatus = "NEVER_SYNCED"
	CheckpointInProgress  CheckpointStatus = "IN_PROGRESS"
	CheckpointSuccess     CheckpointStatus = "SUCCESS"
	CheckpointFailed      CheckpointStatus = "FAILED"
)

// SyncMode режим, выбранный планировщиком для запуска
type SyncMode string

const (
	// SyncModeInitial первый запуск: окно от now-initial_sync_days до now
	SyncModeInitial SyncMode = "INITIAL_SYNC"
	// SyncModeCatchUp чекпоинт устарел: окно от последней границы до now
	SyncModeCatchUp SyncMode = "CATCH_UP"
	// SyncModeNoop чекпоинт свежий, запуск не нужен
	SyncModeNoop SyncMode = "NOOP"
)

// SyncCheckpoint граница синхронизации для пары (маркетплейс, компания).
// Одна строка на пару: запуски обновляют ее на месте, истории запусков нет.
type SyncCheckpoint struct {
	Marketplace    dto.Marketplace  `json:"marketplace"`
	CompanyID      string           `json:"company_id"`
	LastSyncTime   *time.Time       `json:"last_sync_time"` // верхняя граница последнего успешного окна
	LastStatus     CheckpointStatus `json:"last_status"`
	LastError      string           `json:"last_error,omitempty"`
	OrdersFetched  int              `json:"orders_fetched"`   // заказов получено в последнем запуске
	SyncDurationMs int64            `json:"sync_duration_ms"` // длительность последнего запуска
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Mode выбирает режим запуска по состоянию чекпоинта.
// maxGap определяет, какой разрыв считается устаревшим.
func (c *SyncCheckpoint) Mode(now time.Time, maxGap time.Duration) SyncMode {
	if c == nil || c.LastSyncTime == nil || c.LastStatus == CheckpointNeverSynced {
		return SyncModeInitial
	}
	if now.Sub(*c.LastSyncTime) > maxGap {
		return SyncModeCatchUp
	}
	return SyncModeNoop
}
