package messaging

// Топики обмена с внешними сервисами.
// Имена фиксированы контрактом с потребителями, менять без согласования нельзя.
const (
	TopicOrderEvents       = "order-events"        // события жизненного цикла заказов
	TopicStockSync         = "stock-sync"          // запросы на обновление остатков
	TopicStockSyncResponse = "stock-sync-response" // результаты обновления остатков
	TopicOrderSync         = "order-sync"          // запросы на принудительную синхронизацию заказов
	TopicOrderSyncResponse = "order-sync-response" // результаты синхронизации заказов
	TopicDeadLetter        = "sync-dead-letter"   // сообщения, которые не удалось разобрать
)

type KafkaEvent = string

const (
	OrderCreatedEvent   = "order_created"
	OrderCancelledEvent = "order_cancelled"
	StockReturnEvent    = "stock_return"
)
