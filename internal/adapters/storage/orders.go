package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/athebyme/gomarket-sync/pkg/dto"
)

// GetOrder получает заказ по номеру отправления
func (r *SyncStorage) GetOrder(ctx context.Context, postingNumber string, marketplace dto.Marketplace, tenantID string) (*dto.Order, error) {
	e := r.getExecutor(ctx)

	query := `
		SELECT posting_number, marketplace, source, tenant_id, status, substatus,
			created_at, updated_at, market_created_at, in_process_at, shipment_date, delivering_date,
			cancel_reason, cancel_reason_id, cancellation_type,
			delivery_method_name, tracking_number, is_express,
			days_in_transit, days_in_processing, total_price, items
		FROM sync.orders
		WHERE posting_number = $1 AND marketplace = $2 AND tenant_id = $3
	`

	var order dto.Order
	var itemsJSON []byte

	row := e.QueryRow(ctx, query, postingNumber, marketplace, tenantID)
	err := row.Scan(
		&order.PostingNumber, &order.Marketplace, &order.Source, &order.TenantID,
		&order.Status, &order.Substatus,
		&order.CreatedAt, &order.UpdatedAt, &order.MarketCreatedAt, &order.InProcessAt,
		&order.ShipmentDate, &order.DeliveringDate,
		&order.CancelReason, &order.CancelReasonID, &order.CancellationType,
		&order.DeliveryMethodName, &order.TrackingNumber, &order.IsExpress,
		&order.DaysInTransit, &order.DaysInProcessing, &order.TotalPrice, &itemsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Заказ не найден
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order items: %w", err)
		}
	}

	return &order, nil
}

// SaveOrder сохраняет заказ. Операция идемпотентна: повторная вставка того же
// отправления обновляет существующую строку. created сообщает, появилась ли новая строка.
func (r *SyncStorage) SaveOrder(ctx context.Context, order *dto.Order) (bool, error) {
	e := r.getExecutor(ctx)

	query := `
		INSERT INTO sync.orders (posting_number, marketplace, source, tenant_id, status, substatus,
			created_at, updated_at, market_created_at, in_process_at, shipment_date, delivering_date,
			cancel_reason, cancel_reason_id, cancellation_type,
			delivery_method_name, tracking_number, is_express,
			days_in_transit, days_in_processing, total_price, items)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (posting_number, marketplace, tenant_id)
		DO UPDATE SET
			source = $3,
			status = $5,
			substatus = $6,
			updated_at = $8,
			market_created_at = $9,
			in_process_at = $10,
			shipment_date = $11,
			delivering_date = $12,
			cancel_reason = $13,
			cancel_reason_id = $14,
			cancellation_type = $15,
			delivery_method_name = $16,
			tracking_number = $17,
			is_express = $18,
			days_in_transit = $19,
			days_in_processing = $20,
			total_price = $21,
			items = $22
		RETURNING (xmax = 0)
	`

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return false, fmt.Errorf("failed to marshal order items: %w", err)
	}

	var created bool
	err = e.QueryRow(ctx, query,
		order.PostingNumber, order.Marketplace, order.Source, order.TenantID,
		order.Status, order.Substatus,
		order.CreatedAt, order.UpdatedAt, order.MarketCreatedAt, order.InProcessAt,
		order.ShipmentDate, order.DeliveringDate,
		order.CancelReason, order.CancelReasonID, order.CancellationType,
		order.DeliveryMethodName, order.TrackingNumber, order.IsExpress,
		order.DaysInTransit, order.DaysInProcessing, order.TotalPrice, itemsJSON,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("failed to save order: %w", err)
	}

	return created, nil
}

// ListOrders возвращает страницу заказов компании с фильтром по статусам
func (r *SyncStorage) ListOrders(ctx context.Context, tenantID string, marketplace dto.Marketplace, statuses []dto.OrderStatus, page, pageSize int) ([]*dto.Order, int, error) {
	e := r.getExecutor(ctx)

	baseQuery := `FROM sync.orders WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	argPos := 2

	if marketplace != "" {
		baseQuery += fmt.Sprintf(" AND marketplace = $%d", argPos)
		args = append(args, marketplace)
		argPos++
	}
	if len(statuses) > 0 {
		baseQuery += fmt.Sprintf(" AND status = ANY($%d)", argPos)
		args = append(args, statuses)
		argPos++
	}

	var total int
	if err := e.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}
	if total == 0 {
		return []*dto.Order{}, 0, nil
	}

	dataQuery := `
		SELECT posting_number, marketplace, source, tenant_id, status, substatus,
			created_at, updated_at, market_created_at, in_process_at, shipment_date, delivering_date,
			cancel_reason, cancel_reason_id, cancellation_type,
			delivery_method_name, tracking_number, is_express,
			days_in_transit, days_in_processing, total_price, items
	` + baseQuery + fmt.Sprintf(`
		ORDER BY updated_at DESC
		LIMIT $%d OFFSET $%d`, argPos, argPos+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := e.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*dto.Order
	for rows.Next() {
		var order dto.Order
		var itemsJSON []byte
		err := rows.Scan(
			&order.PostingNumber, &order.Marketplace, &order.Source, &order.TenantID,
			&order.Status, &order.Substatus,
			&order.CreatedAt, &order.UpdatedAt, &order.MarketCreatedAt, &order.InProcessAt,
			&order.ShipmentDate, &order.DeliveringDate,
			&order.CancelReason, &order.CancelReasonID, &order.CancellationType,
			&order.DeliveryMethodName, &order.TrackingNumber, &order.IsExpress,
			&order.DaysInTransit, &order.DaysInProcessing, &order.TotalPrice, &itemsJSON,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order row: %w", err)
		}
		if len(itemsJSON) > 0 {
			if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal order items: %w", err)
			}
		}
		orders = append(orders, &order)
	}

	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("error while iterating order rows: %w", rows.Err())
	}

	return orders, total, nil
}

// SaveStatusTransition добавляет запись в историю смен статуса заказа
func (r *SyncStorage) SaveStatusTransition(ctx context.Context, order *dto.Order, from, to dto.OrderStatus) error {
	e := r.getExecutor(ctx)

	query := `
		INSERT INTO sync.order_status_history (id, tenant_id, posting_number, marketplace, from_status, to_status, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := e.Exec(ctx, query,
		uuid.New().String(), order.TenantID, order.PostingNumber, order.Marketplace,
		from, to, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save status transition: %w", err)
	}

	return nil
}
