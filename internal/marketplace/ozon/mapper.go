package ozon

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/errors"
)

// rawPosting поля отправления Ozon, которые переносятся во внутреннюю модель.
// Остальные поля ответа игнорируются: схема API шире, чем нам нужно.
type rawPosting struct {
	PostingNumber  string        `json:"posting_number"`
	Status         string        `json:"status"`
	Substatus      string        `json:"substatus"`
	CreatedAt      dto.LooseTime `json:"created_at"`
	InProcessAt    dto.LooseTime `json:"in_process_at"`
	ShipmentDate   dto.LooseTime `json:"shipment_date"`
	DeliveringDate dto.LooseTime `json:"delivering_date"`
	TrackingNumber string        `json:"tracking_number"`
	IsExpress      bool          `json:"is_express"`

	Cancellation struct {
		CancelReason     string `json:"cancel_reason"`
		CancelReasonID   int64  `json:"cancel_reason_id"`
		CancellationType string `json:"cancellation_type"`
	} `json:"cancellation"`

	DeliveryMethod struct {
		Name string `json:"name"`
	} `json:"delivery_method"`

	Products []rawProduct `json:"products"`
}

type rawProduct struct {
	OfferID  string `json:"offer_id"`
	SKU      int64  `json:"sku"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"` // Ozon отдает цену строкой
}

// Mapper преобразует отправления Ozon во внутренние заказы
type Mapper struct{}

func NewMapper() *Mapper {
	return &Mapper{}
}

// MapOrder разбирает сырое отправление. Разбор терпим к неполным данным:
// отсутствие любых полей, кроме номера отправления, не является ошибкой.
func (m *Mapper) MapOrder(raw json.RawMessage) (*dto.Order, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("ошибка разбора конверта заказа: %w", err)
	}

	var posting rawPosting
	if err := json.Unmarshal(env.Order, &posting); err != nil {
		return nil, fmt.Errorf("ошибка разбора отправления: %w", err)
	}

	if posting.PostingNumber == "" {
		return nil, errors.ErrMissingPostingNumber
	}

	order := &dto.Order{
		PostingNumber:      posting.PostingNumber,
		Marketplace:        dto.MarketplaceOzon,
		Source:             env.Source,
		Status:             dto.StatusFromCode(posting.Status),
		Substatus:          posting.Substatus,
		MarketCreatedAt:    posting.CreatedAt.Value,
		InProcessAt:        posting.InProcessAt.Value,
		ShipmentDate:       posting.ShipmentDate.Value,
		DeliveringDate:     posting.DeliveringDate.Value,
		CancelReason:       posting.Cancellation.CancelReason,
		CancelReasonID:     posting.Cancellation.CancelReasonID,
		CancellationType:   posting.Cancellation.CancellationType,
		DeliveryMethodName: posting.DeliveryMethod.Name,
		TrackingNumber:     posting.TrackingNumber,
		IsExpress:          posting.IsExpress,
	}

	total := decimal.Zero
	for _, p := range posting.Products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			price = decimal.Zero
		}
		order.Items = append(order.Items, dto.OrderItem{
			OfferID:  p.OfferID,
			SKU:      fmt.Sprintf("%d", p.SKU),
			Name:     p.Name,
			Quantity: p.Quantity,
			Price:    price,
		})
		total = total.Add(price.Mul(decimal.NewFromInt(int64(p.Quantity))))
	}
	order.TotalPrice = total

	fillDurations(order)

	return order, nil
}

// fillDurations вычисляет длительности этапов, если известны обе границы
func fillDurations(order *dto.Order) {
	if order.MarketCreatedAt != nil && order.ShipmentDate != nil {
		days := int(order.ShipmentDate.Sub(*order.MarketCreatedAt).Hours() / 24)
		order.DaysInProcessing = &days
	}
	if order.ShipmentDate != nil && order.DeliveringDate != nil {
		days := int(order.DeliveringDate.Sub(*order.ShipmentDate).Hours() / 24)
		order.DaysInTransit = &days
	}
}
