package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-sync/internal/adapters/messaging"
	postgres "github.com/athebyme/gomarket-sync/internal/adapters/storage"
	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/interfaces"
	"github.com/athebyme/gomarket-sync/pkg/tx"
)

// OrderEvent событие жизненного цикла заказа, публикуемое в топик order-events
type OrderEvent struct {
	Type          messaging.KafkaEvent `json:"type"`
	TenantID      string               `json:"tenant_id"`
	Marketplace   dto.Marketplace      `json:"marketplace"`
	PostingNumber string               `json:"posting_number"`
	Status        dto.OrderStatus      `json:"status"`
	Items         []dto.OrderItem      `json:"items,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// OrderUpsertService идемпотентное слияние заказов маркетплейсов в хранилище.
// Повторная обработка того же отправления безопасна: строка обновляется на месте,
// событие возврата остатков публикуется не более одного раза на отмену.
type OrderUpsertService struct {
	storage   postgres.OrderStorageInterface
	txManager tx.TxManager
	catalog   *CatalogService
	messaging interfaces.MessagingPort
	logger    interfaces.LoggerPort
}

// NewOrderUpsertService создает сервис слияния заказов
func NewOrderUpsertService(
	storage postgres.OrderStorageInterface,
	txManager tx.TxManager,
	catalog *CatalogService,
	messagingPort interfaces.MessagingPort,
	logger interfaces.LoggerPort,
) *OrderUpsertService {
	return &OrderUpsertService{
		storage:   storage,
		txManager: txManager,
		catalog:   catalog,
		messaging: messagingPort,
		logger:    logger,
	}
}

// Upsert сливает один заказ. created сообщает, появился ли заказ впервые.
func (s *OrderUpsertService) Upsert(ctx context.Context, order *dto.Order) (bool, error) {
	if s.catalog != nil {
		s.catalog.ResolveItems(ctx, order)
	}

	existing, err := s.storage.GetOrder(ctx, order.PostingNumber, order.Marketplace, order.TenantID)
	if err != nil {
		return false, fmt.Errorf("failed to load existing order: %w", err)
	}

	var fromStatus dto.OrderStatus
	if existing != nil {
		fromStatus = existing.Status
		order.CreatedAt = existing.CreatedAt
	}

	statusChanged := existing != nil && existing.Status != order.Status

	var created bool
	err = s.txManager.Do(ctx, func(txCtx context.Context) error {
		created, err = s.storage.SaveOrder(txCtx, order)
		if err != nil {
			return err
		}
		if statusChanged {
			if err := s.storage.SaveStatusTransition(txCtx, order, fromStatus, order.Status); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert order %s: %w", order.PostingNumber, err)
	}

	s.publishEvents(ctx, order, created, fromStatus)

	return created, nil
}

// UpsertBatch сливает пакет заказов из сообщения order-sync.
// Ошибка по одному заказу не прерывает пакет: она попадает в результат.
func (s *OrderUpsertService) UpsertBatch(ctx context.Context, msg *dto.OrderSyncMessage) *dto.OrderSyncResult {
	result := &dto.OrderSyncResult{
		TenantID:    msg.TenantID,
		Marketplace: msg.Marketplace,
		Success:     true,
		ProcessedAt: time.Now().UTC(),
	}

	for i := range msg.Orders {
		order := &msg.Orders[i]
		order.TenantID = msg.TenantID
		order.Marketplace = msg.Marketplace

		if _, err := s.Upsert(ctx, order); err != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", order.PostingNumber, err))
			continue
		}
		result.ProcessedCount++
	}

	return result
}

// HandleSyncMessage обработчик сообщений топика order-sync.
// Нечитаемое сообщение уходит в dead-letter топик и не блокирует партицию.
func (s *OrderUpsertService) HandleSyncMessage(ctx context.Context, msg *interfaces.Message) error {
	var req dto.OrderSyncMessage
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		s.logger.Error("Нечитаемое сообщение order-sync, отправка в dead-letter",
			"message_id", msg.ID, "error", err)
		if dlErr := s.messaging.Publish(ctx, messaging.TopicDeadLetter, msg.Value); dlErr != nil {
			s.logger.Error("Ошибка публикации в dead-letter", "message_id", msg.ID, "error", dlErr)
		}
		return nil
	}

	result := s.UpsertBatch(ctx, &req)

	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("Ошибка сериализации результата order-sync", "tenant_id", req.TenantID, "error", err)
		return nil
	}
	if err := s.messaging.PublishWithKey(ctx, messaging.TopicOrderSyncResponse, req.TenantID, data); err != nil {
		s.logger.Error("Ошибка публикации результата order-sync", "tenant_id", req.TenantID, "error", err)
	}

	return nil
}

// publishEvents публикует события заказа. Публикация не влияет на результат
// слияния: при недоступном брокере событие теряется, а заказ остается сохраненным.
func (s *OrderUpsertService) publishEvents(ctx context.Context, order *dto.Order, created bool, fromStatus dto.OrderStatus) {
	if created {
		s.publish(ctx, &OrderEvent{
			Type:          messaging.OrderCreatedEvent,
			TenantID:      order.TenantID,
			Marketplace:   order.Marketplace,
			PostingNumber: order.PostingNumber,
			Status:        order.Status,
			OccurredAt:    time.Now().UTC(),
		})
	}

	// Возврат остатков ровно один раз: либо заказ пришел отмененным впервые,
	// либо статус только что сменился на отмену
	becameCancelled := order.IsCancelled() && (created || fromStatus != dto.StatusCancelled)
	if becameCancelled {
		s.publish(ctx, &OrderEvent{
			Type:          messaging.OrderCancelledEvent,
			TenantID:      order.TenantID,
			Marketplace:   order.Marketplace,
			PostingNumber: order.PostingNumber,
			Status:        order.Status,
			OccurredAt:    time.Now().UTC(),
		})
		s.publish(ctx, &OrderEvent{
			Type:          messaging.StockReturnEvent,
			TenantID:      order.TenantID,
			Marketplace:   order.Marketplace,
			PostingNumber: order.PostingNumber,
			Status:        order.Status,
			Items:         order.Items,
			OccurredAt:    time.Now().UTC(),
		})
	}
}

func (s *OrderUpsertService) publish(ctx context.Context, event *OrderEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Ошибка сериализации события заказа",
			"type", event.Type, "posting_number", event.PostingNumber, "error", err)
		return
	}

	// Ключ — номер отправления: события одного заказа идут по порядку
	if err := s.messaging.PublishWithKey(ctx, messaging.TopicOrderEvents, event.PostingNumber, data); err != nil {
		s.logger.Error("Ошибка публикации события заказа",
			"type", event.Type, "posting_number", event.PostingNumber, "error", err)
	}
}
