package wildberries

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/errors"
)

// rawOrder поля сборочного задания WB, которые переносятся во внутреннюю модель
type rawOrder struct {
	ID             int64         `json:"id"`
	RID            string        `json:"rid"`
	CreatedAt      dto.LooseTime `json:"createdAt"`
	Article        string        `json:"article"`
	NmID           int64         `json:"nmId"`
	Price          int64         `json:"price"`          // в копейках
	ConvertedPrice int64         `json:"convertedPrice"` // в копейках, в валюте продавца
	SupplierStatus string        `json:"supplierStatus"`
	WBStatus       string        `json:"wbStatus"`
	IsB2B          bool          `json:"isB2B"`
	DeliveryType   string        `json:"deliveryType"`
	Skus           []string      `json:"skus"` // баркоды
}

// statusFromWB переводит пару статусов WB во внутренний статус.
// Статус маркетплейса приоритетнее статуса продавца.
var statusFromWB = map[string]dto.OrderStatus{
	"waiting":  dto.StatusAwaitingPackaging,
	"sorted":   dto.StatusAwaitingDeliver,
	"sold":     dto.StatusCompleted,
	"canceled": dto.StatusCancelled,
	"confirm":  dto.StatusProcessing,
	"complete": dto.StatusShipped,
	"deliver":  dto.StatusDelivering,
	"receive":  dto.StatusDelivered,
	"new":      dto.StatusPending,
	"cancel":   dto.StatusCancelled,
}

// Mapper преобразует сборочные задания WB во внутренние заказы
type Mapper struct{}

func NewMapper() *Mapper {
	return &Mapper{}
}

// MapOrder разбирает сырое сборочное задание. Разбор терпим к неполным данным:
// обязателен только идентификатор задания.
func (m *Mapper) MapOrder(raw json.RawMessage) (*dto.Order, error) {
	var wb rawOrder
	if err := json.Unmarshal(raw, &wb); err != nil {
		return nil, fmt.Errorf("ошибка разбора сборочного задания: %w", err)
	}

	postingNumber := wb.RID
	if postingNumber == "" && wb.ID != 0 {
		postingNumber = strconv.FormatInt(wb.ID, 10)
	}
	if postingNumber == "" {
		return nil, errors.ErrMissingPostingNumber
	}

	status := dto.StatusUnknown
	if s, ok := statusFromWB[wb.WBStatus]; ok {
		status = s
	} else if s, ok := statusFromWB[wb.SupplierStatus]; ok {
		status = s
	}

	// копейки -> рубли
	price := decimal.NewFromInt(wb.ConvertedPrice)
	if wb.ConvertedPrice == 0 {
		price = decimal.NewFromInt(wb.Price)
	}
	price = price.Shift(-2)

	order := &dto.Order{
		PostingNumber:   postingNumber,
		Marketplace:     dto.MarketplaceWildberries,
		Source:          SourceFBS,
		Status:          status,
		MarketCreatedAt: wb.CreatedAt.Value,
		IsExpress:       wb.DeliveryType == "wbgo",
		TotalPrice:      price,
	}

	if wb.Article != "" || wb.NmID != 0 {
		sku := ""
		if len(wb.Skus) > 0 {
			sku = wb.Skus[0]
		}
		order.Items = append(order.Items, dto.OrderItem{
			OfferID:  wb.Article,
			SKU:      sku,
			Quantity: 1, // одно задание WB всегда на одну единицу
			Price:    price,
		})
	}

	return order, nil
}
