package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/athebyme/gomarket-sync/internal/domain/models"
)

// FindByOfferID находит товар каталога по артикулу продавца
func (r *SyncStorage) FindByOfferID(ctx context.Context, offerID string, tenantID string) (*models.ProductRef, error) {
	e := r.getExecutor(ctx)

	query := `
		SELECT id, tenant_id, offer_id, name, barcode, created_at, updated_at
		FROM sync.products
		WHERE offer_id = $1 AND tenant_id = $2
	`

	var product models.ProductRef
	row := e.QueryRow(ctx, query, offerID, tenantID)
	err := row.Scan(&product.ID, &product.TenantID, &product.OfferID, &product.Name,
		&product.Barcode, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Артикул не заведен в каталоге
		}
		return nil, fmt.Errorf("failed to find product by offer id: %w", err)
	}

	return &product, nil
}
