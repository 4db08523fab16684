package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	postgres "github.com/athebyme/gomarket-sync/internal/adapters/storage"
	"github.com/athebyme/gomarket-sync/internal/domain/models"
	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/errors"
	"github.com/athebyme/gomarket-sync/pkg/interfaces"
)

// catalogCacheTTL срок жизни записи каталога в кэше
const catalogCacheTTL = 10 * time.Minute

// CatalogService находит товары каталога по артикулам и обогащает позиции заказов.
// Поиск кэшируется в Redis: один и тот же артикул встречается в каждом запуске.
type CatalogService struct {
	storage postgres.ProductStorageInterface
	cache   interfaces.CachePort
	logger  interfaces.LoggerPort
}

// NewCatalogService создает сервис каталога
func NewCatalogService(storage postgres.ProductStorageInterface, cache interfaces.CachePort, logger interfaces.LoggerPort) *CatalogService {
	return &CatalogService{
		storage: storage,
		cache:   cache,
		logger:  logger,
	}
}

// FindByOfferID находит товар по артикулу продавца.
// Возвращает nil без ошибки, если артикул не заведен в каталоге.
func (s *CatalogService) FindByOfferID(ctx context.Context, offerID string, tenantID string) (*models.ProductRef, error) {
	cacheKey := "catalog:offer:" + offerID

	if cached, err := s.cache.GetWithTenant(ctx, cacheKey, tenantID); err == nil {
		var product models.ProductRef
		if err := json.Unmarshal(cached, &product); err == nil {
			return &product, nil
		}
	} else if err != errors.ErrCacheMiss {
		s.logger.Warn("Ошибка чтения кэша каталога", "offer_id", offerID, "error", err)
	}

	product, err := s.storage.FindByOfferID(ctx, offerID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	if product == nil {
		return nil, nil
	}

	if data, err := json.Marshal(product); err == nil {
		if err := s.cache.SetWithTenant(ctx, cacheKey, data, tenantID, catalogCacheTTL); err != nil {
			s.logger.Warn("Ошибка записи кэша каталога", "offer_id", offerID, "error", err)
		}
	}

	return product, nil
}

// ResolveItems обогащает позиции заказа идентификаторами товаров каталога.
// Ненайденный артикул не ошибка: позиция остается без product_id.
func (s *CatalogService) ResolveItems(ctx context.Context, order *dto.Order) {
	for i := range order.Items {
		item := &order.Items[i]
		if item.OfferID == "" {
			continue
		}

		product, err := s.FindByOfferID(ctx, item.OfferID, order.TenantID)
		if err != nil {
			s.logger.Warn("Ошибка поиска товара по артикулу",
				"offer_id", item.OfferID,
				"posting_number", order.PostingNumber,
				"error", err,
			)
			continue
		}
		if product == nil {
			continue
		}

		id := product.ID
		item.ProductID = &id
		if item.Name == "" {
			item.Name = product.Name
		}
	}
}
