package dto

import "time"

// WarehouseKind тип склада
type WarehouseKind string

const (
	WarehouseSellerFulfilled      WarehouseKind = "FBS" // отгрузка со склада продавца
	WarehouseMarketplaceFulfilled WarehouseKind = "FBO" // отгрузка со склада маркетплейса
)

// WarehouseTarget склад, на котором нужно обновить остаток
type WarehouseTarget struct {
	WarehouseID string        `json:"warehouse_id"`
	Marketplace Marketplace   `json:"marketplace"`
	TenantID    string        `json:"tenant_id"`
	Kind        WarehouseKind `json:"kind"`
}

// StockSyncRequest запрос на синхронизацию остатка одного товара.
// Доставляется через топик stock-sync с семантикой at-least-once:
// дубликаты допустимы, обработка обязана их переносить.
type StockSyncRequest struct {
	OfferID    string            `json:"offer_id"`
	ProductID  string            `json:"product_id"`
	Quantity   int               `json:"quantity"`
	Warehouses []WarehouseTarget `json:"warehouses"`
}

// StockSyncStatus агрегированный статус обработки запроса
type StockSyncStatus string

const (
	StockSyncSuccess        StockSyncStatus = "SUCCESS"
	StockSyncPartialSuccess StockSyncStatus = "PARTIAL_SUCCESS"
	StockSyncFailed         StockSyncStatus = "FAILED"
	StockSyncSkipped        StockSyncStatus = "SKIPPED"
)

// TargetError ошибка обновления остатка на конкретном складе
type TargetError struct {
	WarehouseID string `json:"warehouse_id"`
	Code        string `json:"code,omitempty"`
	Message     string `json:"message"`
}

// StockSyncResult агрегированный результат обработки StockSyncRequest,
// публикуется в топик stock-sync-response
type StockSyncResult struct {
	Marketplace  Marketplace     `json:"marketplace"`
	OfferID      string          `json:"offer_id"`
	Status       StockSyncStatus `json:"status"`
	SuccessCount int             `json:"success_count"`
	FailedCount  int             `json:"failed_count"`
	Errors       []TargetError   `json:"errors,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ProcessedAt  time.Time       `json:"processed_at"`
}

// Resolve вычисляет агрегированный статус по счетчикам
func (r *StockSyncResult) Resolve() {
	switch {
	case r.FailedCount == 0 && r.SuccessCount > 0:
		r.Status = StockSyncSuccess
	case r.SuccessCount == 0 && r.FailedCount > 0:
		r.Status = StockSyncFailed
	case r.SuccessCount > 0 && r.FailedCount > 0:
		r.Status = StockSyncPartialSuccess
	default:
		r.Status = StockSyncSkipped
	}
}
