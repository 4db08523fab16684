package services

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	postgres "github.com/athebyme/gomarket-sync/internal/adapters/storage"
	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/errors"
	"github.com/athebyme/gomarket-sync/pkg/interfaces"
)

// CredentialsService выдает учетные данные компаний с кэшированием в памяти.
// Хранилище опрашивается не чаще, чем раз в ttl на ключ: планировщик дергает
// сервис на каждый запуск, а данные меняются редко.
type CredentialsService struct {
	storage postgres.CredentialsStorageInterface
	cache   *gocache.Cache
	logger  interfaces.LoggerPort
}

const listCacheKey = "credentials:active"

// NewCredentialsService создает сервис учетных данных
func NewCredentialsService(storage postgres.CredentialsStorageInterface, ttl time.Duration, logger interfaces.LoggerPort) *CredentialsService {
	return &CredentialsService{
		storage: storage,
		cache:   gocache.New(ttl, 2*ttl),
		logger:  logger,
	}
}

// ListActive возвращает активные учетные данные всех компаний
func (s *CredentialsService) ListActive(ctx context.Context) ([]*dto.CompanyCredentials, error) {
	if cached, ok := s.cache.Get(listCacheKey); ok {
		return cached.([]*dto.CompanyCredentials), nil
	}

	creds, err := s.storage.ListActiveCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active credentials: %w", err)
	}

	s.cache.SetDefault(listCacheKey, creds)
	return creds, nil
}

// GetActive возвращает активные учетные данные компании для маркетплейса.
// Возвращает errors.ErrNoCredentials, если данных нет или они отключены.
func (s *CredentialsService) GetActive(ctx context.Context, companyID string, marketplace dto.Marketplace) (*dto.CompanyCredentials, error) {
	key := fmt.Sprintf("credentials:%s:%s", companyID, marketplace)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*dto.CompanyCredentials), nil
	}

	creds, err := s.storage.GetActiveCredentials(ctx, companyID, marketplace)
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	if !creds.Valid() {
		return nil, errors.ErrNoCredentials
	}

	s.cache.SetDefault(key, creds)
	return creds, nil
}

// Invalidate сбрасывает кэш. Вызывается при изменении учетных данных.
func (s *CredentialsService) Invalidate() {
	s.cache.Flush()
	s.logger.Debug("Кэш учетных данных сброшен")
}
