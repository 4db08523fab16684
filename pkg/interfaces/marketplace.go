package interfaces

import (
	"context"
	"encoding/json"

	"github.com/athebyme/gomarket-sync/pkg/dto"
)

// OrderPage страница заказов из API маркетплейса.
// HasMore вычисляется клиентом по размеру страницы: короткая страница — последняя.
type OrderPage struct {
	Orders  []json.RawMessage // сырые заказы в формате маркетплейса
	HasMore bool
}

// MarketplaceClient определяет адаптер API конкретного маркетплейса.
// Все реализации не хранят состояния между вызовами: учетные данные компании
// передаются явно, поэтому клиент можно переиспользовать из параллельных
// синхронизаций разных компаний.
type MarketplaceClient interface {
	// Marketplace возвращает идентификатор маркетплейса данной реализации
	Marketplace() dto.Marketplace

	// ListOrders возвращает страницу заказов в заданном окне.
	// offset и limit задают пагинацию в терминах маркетплейса.
	ListOrders(ctx context.Context, creds dto.CompanyCredentials, window dto.DateRange, offset, limit int) (*OrderPage, error)

	// GetOrder возвращает один заказ по номеру отправления
	GetOrder(ctx context.Context, creds dto.CompanyCredentials, postingNumber string) (json.RawMessage, error)

	// UpdateStock обновляет остаток товара на складе.
	// Ответ возвращается как есть: классификация встроенных ошибок —
	// ответственность retry-исполнителя.
	UpdateStock(ctx context.Context, creds dto.CompanyCredentials, offerID string, quantity int, warehouseID string) (*dto.APIResponse, error)

	// TestConnection проверяет доступность API с данными учетными данными
	TestConnection(ctx context.Context, creds dto.CompanyCredentials) bool
}

// OrderMapper преобразует сырой заказ маркетплейса во внутреннее представление
type OrderMapper interface {
	MapOrder(raw json.RawMessage) (*dto.Order, error)
}
