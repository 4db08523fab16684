package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/athebyme/gomarket-sync/internal/domain/models"
	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/tx"
)

// OrderStorageInterface операции хранилища заказов
type OrderStorageInterface interface {
	GetOrder(ctx context.Context, postingNumber string, marketplace dto.Marketplace, tenantID string) (*dto.Order, error)
	SaveOrder(ctx context.Context, order *dto.Order) (created bool, err error)
	ListOrders(ctx context.Context, tenantID string, marketplace dto.Marketplace, statuses []dto.OrderStatus, page, pageSize int) ([]*dto.Order, int, error)
	SaveStatusTransition(ctx context.Context, order *dto.Order, from, to dto.OrderStatus) error
}

// CheckpointStorageInterface операции хранилища чекпоинтов синхронизации
type CheckpointStorageInterface interface {
	GetCheckpoint(ctx context.Context, marketplace dto.Marketplace, companyID string) (*models.SyncCheckpoint, error)
	SaveCheckpoint(ctx context.Context, checkpoint *models.SyncCheckpoint) error
	ListCheckpoints(ctx context.Context, companyID string) ([]*models.SyncCheckpoint, error)
}

// ProductStorageInterface операции каталога товаров
type ProductStorageInterface interface {
	FindByOfferID(ctx context.Context, offerID string, tenantID string) (*models.ProductRef, error)
}

// CredentialsStorageInterface операции хранилища учетных данных компаний
type CredentialsStorageInterface interface {
	ListActiveCredentials(ctx context.Context) ([]*dto.CompanyCredentials, error)
	GetActiveCredentials(ctx context.Context, companyID string, marketplace dto.Marketplace) (*dto.CompanyCredentials, error)
}

// SyncStoragePort объединяет все операции хранилища движка синхронизации
type SyncStoragePort interface {
	OrderStorageInterface
	CheckpointStorageInterface
	ProductStorageInterface
	CredentialsStorageInterface

	Close() error
}

// SyncStorage реализация SyncStoragePort для PostgreSQL
type SyncStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage создает новый экземпляр SyncStorage
func NewPostgresStorage(ctx context.Context, connectionString string) (*SyncStorage, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &SyncStorage{pool: pool}, nil
}

// NewPostgresStorageWithPool создает SyncStorage поверх готового пула
func NewPostgresStorageWithPool(ctx context.Context, pool *pgxpool.Pool) (*SyncStorage, error) {
	if pool == nil {
		return nil, errors.New("pool is nil")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &SyncStorage{pool: pool}, nil
}

// Pool возвращает пул соединений для менеджера транзакций
func (r *SyncStorage) Pool() *pgxpool.Pool {
	return r.pool
}

// Close закрывает соединение с БД
func (r *SyncStorage) Close() error {
	r.pool.Close()
	return nil
}

type executor interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// getExecutor возвращает исполнителя запросов (транзакцию или пул)
func (r *SyncStorage) getExecutor(ctx context.Context) executor {
	if txFromCtx, ok := tx.GetTxFromContext(ctx); ok {
		return txFromCtx
	}
	return r.pool
}
