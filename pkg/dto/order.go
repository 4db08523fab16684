package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// Marketplace идентифицирует внешний маркетплейс
type Marketplace string

const (
	MarketplaceOzon        Marketplace = "OZON"
	MarketplaceWildberries Marketplace = "WILDBERRIES"
)

// OrderStatus внутренний статус заказа
type OrderStatus string

const (
	StatusAwaitingPackaging OrderStatus = "awaiting_packaging"
	StatusAwaitingDeliver   OrderStatus = "awaiting_deliver"
	StatusDelivering        OrderStatus = "delivering"
	StatusDelivered         OrderStatus = "delivered"
	StatusCancelled         OrderStatus = "cancelled"
	StatusCompleted         OrderStatus = "completed"
	StatusProcessing        OrderStatus = "processing"
	StatusShipped           OrderStatus = "shipped"
	StatusPending           OrderStatus = "pending"
	StatusFailed            OrderStatus = "failed"
	StatusUnknown           OrderStatus = "unknown"
)

var statusByCode = map[string]OrderStatus{
	"awaiting_packaging": StatusAwaitingPackaging,
	"awaiting_deliver":   StatusAwaitingDeliver,
	"delivering":         StatusDelivering,
	"delivered":          StatusDelivered,
	"cancelled":          StatusCancelled,
	"completed":          StatusCompleted,
	"processing":         StatusProcessing,
	"shipped":            StatusShipped,
	"pending":            StatusPending,
	"failed":             StatusFailed,
}

// StatusFromCode возвращает статус по коду маркетплейса.
// Неизвестные коды не являются ошибкой и отображаются в StatusUnknown.
func StatusFromCode(code string) OrderStatus {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return StatusUnknown
}

// OrderItem позиция заказа
type OrderItem struct {
	OfferID   string          `json:"offer_id"`             // артикул продавца
	SKU       string          `json:"sku"`                  // SKU в системе маркетплейса
	ProductID *string         `json:"product_id,omitempty"` // ID товара в нашем каталоге (nil, если артикул не найден)
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"` // цена за единицу
}

// Order внутреннее представление заказа маркетплейса.
// Идентифицируется номером отправления (posting number), уникальным в рамках маркетплейса.
type Order struct {
	PostingNumber string      `json:"posting_number"`
	Marketplace   Marketplace `json:"marketplace"`
	Source        string      `json:"source"` // OZON_FBO, OZON_FBS, WB_FBS и т.д.
	TenantID      string      `json:"tenant_id"`
	Status        OrderStatus `json:"status"`
	Substatus     string      `json:"substatus,omitempty"`

	CreatedAt       time.Time  `json:"created_at"`                 // наше время создания
	UpdatedAt       time.Time  `json:"updated_at"`                 // наше время обновления
	MarketCreatedAt *time.Time `json:"market_created_at,omitempty"` // время создания на стороне маркетплейса
	InProcessAt     *time.Time `json:"in_process_at,omitempty"`
	ShipmentDate    *time.Time `json:"shipment_date,omitempty"`
	DeliveringDate  *time.Time `json:"delivering_date,omitempty"`

	CancelReason     string `json:"cancel_reason,omitempty"`
	CancelReasonID   int64  `json:"cancel_reason_id,omitempty"`
	CancellationType string `json:"cancellation_type,omitempty"`

	DeliveryMethodName string `json:"delivery_method_name,omitempty"`
	TrackingNumber     string `json:"tracking_number,omitempty"`
	IsExpress          bool   `json:"is_express,omitempty"`

	// Вычисляемые поля, заполняются только при наличии обеих дат
	DaysInTransit    *int `json:"days_in_transit,omitempty"`
	DaysInProcessing *int `json:"days_in_processing,omitempty"`

	TotalPrice decimal.Decimal `json:"total_price"`
	Items      []OrderItem     `json:"items"`
}

// IsCancelled сообщает, находится ли заказ в состоянии отмены
func (o *Order) IsCancelled() bool {
	return o.Status == StatusCancelled
}

// OrderSyncMessage сообщение топика order-sync: пакет заказов для идемпотентного слияния
type OrderSyncMessage struct {
	TenantID    string      `json:"tenant_id"`
	Marketplace Marketplace `json:"marketplace"`
	Orders      []Order     `json:"orders"`
}

// OrderSyncResult ответ в топик order-sync-response
type OrderSyncResult struct {
	TenantID       string    `json:"tenant_id"`
	Marketplace    Marketplace `json:"marketplace"`
	ProcessedCount int       `json:"processed_count"`
	Success        bool      `json:"success"`
	Errors         []string  `json:"errors,omitempty"`
	ProcessedAt    time.Time `json:"processed_at"`
}
