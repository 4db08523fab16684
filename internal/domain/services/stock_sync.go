package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-sync/internal/adapters/messaging"
	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/interfaces"
	"github.com/athebyme/gomarket-sync/pkg/retry"
)

// retryRunner нужная сервису часть исполнителя повторов
type retryRunner interface {
	Execute(ctx context.Context, identity string, op retry.Operation) (*dto.APIResponse, error)
}

// StockSyncService обрабатывает запросы на обновление остатков из топика stock-sync.
// Семантика at-least-once: повторная обработка того же запроса безопасна,
// маркетплейс просто получит тот же остаток еще раз.
type StockSyncService struct {
	credentials credentialsProvider
	clients     map[dto.Marketplace]interfaces.MarketplaceClient
	messaging   interfaces.MessagingPort
	executor    retryRunner
	logger      interfaces.LoggerPort
}

// NewStockSyncService создает сервис синхронизации остатков
func NewStockSyncService(
	credentials credentialsProvider,
	clients map[dto.Marketplace]interfaces.MarketplaceClient,
	messagingPort interfaces.MessagingPort,
	executor retryRunner,
	logger interfaces.LoggerPort,
) *StockSyncService {
	return &StockSyncService{
		credentials: credentials,
		clients:     clients,
		messaging:   messagingPort,
		executor:    executor,
		logger:      logger,
	}
}

// HandleMessage обработчик сообщений топика stock-sync.
// Нечитаемое сообщение уходит в dead-letter топик и не блокирует партицию.
func (s *StockSyncService) HandleMessage(ctx context.Context, msg *interfaces.Message) error {
	var req dto.StockSyncRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		s.logger.Error("Нечитаемое сообщение stock-sync, отправка в dead-letter",
			"message_id", msg.ID, "error", err)
		if dlErr := s.messaging.Publish(ctx, messaging.TopicDeadLetter, msg.Value); dlErr != nil {
			s.logger.Error("Ошибка публикации в dead-letter", "message_id", msg.ID, "error", dlErr)
		}
		return nil
	}

	results := s.Process(ctx, &req)
	for _, result := range results {
		s.publishResult(ctx, result)
	}

	return nil
}

// Process обновляет остаток товара на всех складах запроса.
// Склады FBO пропускаются: их остатками управляет сам маркетплейс.
// Склады неизвестных маркетплейсов отбрасываются без результата.
// Результаты агрегируются отдельно по каждому маркетплейсу.
func (s *StockSyncService) Process(ctx context.Context, req *dto.StockSyncRequest) []*dto.StockSyncResult {
	byMarketplace := make(map[dto.Marketplace][]dto.WarehouseTarget)
	for _, target := range req.Warehouses {
		if _, ok := s.clients[target.Marketplace]; !ok {
			s.logger.Warn("Склад неизвестного маркетплейса пропущен",
				"offer_id", req.OfferID,
				"marketplace", string(target.Marketplace),
				"warehouse_id", target.WarehouseID)
			continue
		}
		byMarketplace[target.Marketplace] = append(byMarketplace[target.Marketplace], target)
	}

	var results []*dto.StockSyncResult
	for marketplace, targets := range byMarketplace {
		results = append(results, s.processMarketplace(ctx, req, marketplace, targets))
	}
	return results
}

func (s *StockSyncService) processMarketplace(ctx context.Context, req *dto.StockSyncRequest, marketplace dto.Marketplace, targets []dto.WarehouseTarget) *dto.StockSyncResult {
	result := &dto.StockSyncResult{
		Marketplace: marketplace,
		OfferID:     req.OfferID,
		ProcessedAt: time.Now().UTC(),
	}

	client := s.clients[marketplace]

	for _, target := range targets {
		if target.Kind == dto.WarehouseMarketplaceFulfilled {
			// остатками FBO управляет маркетплейс
			continue
		}

		creds, err := s.credentials.GetActive(ctx, target.TenantID, marketplace)
		if err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, dto.TargetError{
				WarehouseID: target.WarehouseID,
				Message:     fmt.Sprintf("учетные данные недоступны: %v", err),
			})
			continue
		}

		identity := fmt.Sprintf("%s/%s@%s", req.OfferID, target.WarehouseID, marketplace)
		_, err = s.executor.Execute(ctx, identity, func(ctx context.Context) (*dto.APIResponse, error) {
			return client.UpdateStock(ctx, *creds, req.OfferID, req.Quantity, target.WarehouseID)
		})
		if err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, targetError(target.WarehouseID, err))
			continue
		}

		result.SuccessCount++
	}

	result.Resolve()
	return result
}

// targetError переводит ошибку исполнителя в ошибку по складу,
// сохраняя код постоянной ошибки API, если он есть
func targetError(warehouseID string, err error) dto.TargetError {
	if nre, ok := err.(*retry.NonRetryableError); ok {
		return dto.TargetError{WarehouseID: warehouseID, Code: nre.Code, Message: nre.Message}
	}
	return dto.TargetError{WarehouseID: warehouseID, Message: err.Error()}
}

func (s *StockSyncService) publishResult(ctx context.Context, result *dto.StockSyncResult) {
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("Ошибка сериализации результата stock-sync",
			"offer_id", result.OfferID, "error", err)
		return
	}

	if err := s.messaging.PublishWithKey(ctx, messaging.TopicStockSyncResponse, result.OfferID, data); err != nil {
		s.logger.Error("Ошибка публикации результата stock-sync",
			"offer_id", result.OfferID, "error", err)
	}
}
