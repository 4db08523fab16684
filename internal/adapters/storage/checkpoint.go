package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/athebyme/gomarket-sync/internal/domain/models"
	"github.com/athebyme/gomarket-sync/pkg/dto"
)

// GetCheckpoint получает чекпоинт для пары (маркетплейс, компания)
func (r *SyncStorage) GetCheckpoint(ctx context.Context, marketplace dto.Marketplace, companyID string) (*models.SyncCheckpoint, error) {
	e := r.getExecutor(ctx)

	query := `
		SELECT marketplace, company_id, last_sync_time, last_status, last_error, orders_fetched, sync_duration_ms, updated_at
		FROM sync.checkpoints
		WHERE marketplace = $1 AND company_id = $2
	`

	var cp models.SyncCheckpoint
	row := e.QueryRow(ctx, query, marketplace, companyID)
	err := row.Scan(&cp.Marketplace, &cp.CompanyID, &cp.LastSyncTime, &cp.LastStatus,
		&cp.LastError, &cp.OrdersFetched, &cp.SyncDurationMs, &cp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Чекпоинта еще нет, первый запуск
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	return &cp, nil
}

// SaveCheckpoint сохраняет чекпоинт, обновляя существующую строку на месте
func (r *SyncStorage) SaveCheckpoint(ctx context.Context, checkpoint *models.SyncCheckpoint) error {
	e := r.getExecutor(ctx)

	query := `
		INSERT INTO sync.checkpoints (marketplace, company_id, last_sync_time, last_status, last_error, orders_fetched, sync_duration_ms, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (marketplace, company_id)
		DO UPDATE SET
			last_sync_time = $3,
			last_status = $4,
			last_error = $5,
			orders_fetched = $6,
			sync_duration_ms = $7,
			updated_at = $8
	`

	checkpoint.UpdatedAt = time.Now().UTC()

	_, err := e.Exec(ctx, query,
		checkpoint.Marketplace, checkpoint.CompanyID, checkpoint.LastSyncTime,
		checkpoint.LastStatus, checkpoint.LastError, checkpoint.OrdersFetched,
		checkpoint.SyncDurationMs, checkpoint.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return nil
}

// ListCheckpoints возвращает все чекпоинты компании
func (r *SyncStorage) ListCheckpoints(ctx context.Context, companyID string) ([]*models.SyncCheckpoint, error) {
	e := r.getExecutor(ctx)

	query := `
		SELECT marketplace, company_id, last_sync_time, last_status, last_error, orders_fetched, sync_duration_ms, updated_at
		FROM sync.checkpoints
		WHERE company_id = $1
		ORDER BY marketplace
	`

	rows, err := e.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*models.SyncCheckpoint
	for rows.Next() {
		var cp models.SyncCheckpoint
		err := rows.Scan(&cp.Marketplace, &cp.CompanyID, &cp.LastSyncTime, &cp.LastStatus,
			&cp.LastError, &cp.OrdersFetched, &cp.SyncDurationMs, &cp.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		checkpoints = append(checkpoints, &cp)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("error while iterating checkpoint rows: %w", rows.Err())
	}

	return checkpoints, nil
}
