package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/athebyme/gomarket-sync/pkg/dto"
)

// ListActiveCredentials возвращает активные учетные данные всех компаний.
// Планировщик обходит этот список при каждом запуске.
func (r *SyncStorage) ListActiveCredentials(ctx context.Context) ([]*dto.CompanyCredentials, error) {
	e := r.getExecutor(ctx)

	query := `
		SELECT company_id, marketplace, client_id, api_key, active, updated_at
		FROM sync.company_credentials
		WHERE active = TRUE
		ORDER BY company_id, marketplace
	`

	rows, err := e.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*dto.CompanyCredentials
	for rows.Next() {
		var c dto.CompanyCredentials
		err := rows.Scan(&c.CompanyID, &c.Marketplace, &c.ClientID, &c.APIKey, &c.Active, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credentials row: %w", err)
		}
		creds = append(creds, &c)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("error while iterating credentials rows: %w", rows.Err())
	}

	return creds, nil
}

// GetActiveCredentials возвращает активные учетные данные компании для маркетплейса
func (r *SyncStorage) GetActiveCredentials(ctx context.Context, companyID string, marketplace dto.Marketplace) (*dto.CompanyCredentials, error) {
	e := r.getExecutor(ctx)

	query := `
		SELECT company_id, marketplace, client_id, api_key, active, updated_at
		FROM sync.company_credentials
		WHERE company_id = $1 AND marketplace = $2 AND active = TRUE
	`

	var c dto.CompanyCredentials
	row := e.QueryRow(ctx, query, companyID, marketplace)
	err := row.Scan(&c.CompanyID, &c.Marketplace, &c.ClientID, &c.APIKey, &c.Active, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Учетные данные не заведены или отключены
		}
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}

	return &c, nil
}
