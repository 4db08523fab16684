package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	postgres "github.com/athebyme/gomarket-sync/internal/adapters/storage"
	"github.com/athebyme/gomarket-sync/internal/domain/models"
	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/errors"
	"github.com/athebyme/gomarket-sync/pkg/interfaces"
)

// SyncConfig параметры движка синхронизации
type SyncConfig struct {
	InitialSyncDays int           // глубина окна первого запуска
	MaxGap          time.Duration // разрыв, после которого чекпоинт считается устаревшим
	PageSize        int           // размер страницы при выборке заказов
	RunTimeout      time.Duration // потолок длительности запуска по одной компании
	Concurrency     int           // сколько компаний синхронизируется параллельно
}

// MarketplaceAdapter пара клиент+маппер одного маркетплейса
type MarketplaceAdapter struct {
	Client interfaces.MarketplaceClient
	Mapper interfaces.OrderMapper
}

// credentialsProvider нужная движку часть сервиса учетных данных
type credentialsProvider interface {
	ListActive(ctx context.Context) ([]*dto.CompanyCredentials, error)
	GetActive(ctx context.Context, companyID string, marketplace dto.Marketplace) (*dto.CompanyCredentials, error)
}

// orderMerger нужная движку часть сервиса слияния заказов
type orderMerger interface {
	Upsert(ctx context.Context, order *dto.Order) (bool, error)
}

// RunReport итог одного запуска синхронизации по компании
type RunReport struct {
	CompanyID     string          `json:"company_id"`
	Marketplace   dto.Marketplace `json:"marketplace"`
	Mode          models.SyncMode `json:"mode"`
	WindowFrom    time.Time       `json:"window_from,omitempty"`
	WindowTo      time.Time       `json:"window_to,omitempty"`
	OrdersFetched int             `json:"orders_fetched"`
	OrdersCreated int             `json:"orders_created"`
	MapFailures   int             `json:"map_failures"`
	Duration      time.Duration   `json:"duration"`
}

// SyncService движок синхронизации заказов: решает по чекпоинту, какое окно
// забирать, постранично выкачивает заказы и сливает их в хранилище.
// Запуски по одной паре (маркетплейс, компания) не пересекаются.
type SyncService struct {
	checkpoints postgres.CheckpointStorageInterface
	credentials credentialsProvider
	merger      orderMerger
	adapters    map[dto.Marketplace]MarketplaceAdapter
	logger      interfaces.LoggerPort
	cfg         SyncConfig

	inFlightMu sync.Mutex
	inFlight   map[string]struct{}

	now func() time.Time
}

// NewSyncService создает движок синхронизации
func NewSyncService(
	checkpoints postgres.CheckpointStorageInterface,
	credentials credentialsProvider,
	merger orderMerger,
	adapters map[dto.Marketplace]MarketplaceAdapter,
	cfg SyncConfig,
	logger interfaces.LoggerPort,
) *SyncService {
	return &SyncService{
		checkpoints: checkpoints,
		credentials: credentials,
		merger:      merger,
		adapters:    adapters,
		cfg:         cfg,
		logger:      logger,
		inFlight:    make(map[string]struct{}),
		now:         time.Now,
	}
}

// SyncAll синхронизирует все компании с активными учетными данными.
// Компании обрабатываются параллельно с ограничением Concurrency;
// сбой одной компании не прерывает остальные.
func (s *SyncService) SyncAll(ctx context.Context) error {
	creds, err := s.credentials.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list companies for sync: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, c := range creds {
		c := c
		g.Go(func() error {
			report, err := s.SyncCompany(gctx, c, false)
			if err != nil {
				if err == errors.ErrSyncInProgress {
					return nil
				}
				s.logger.Error("Синхронизация компании не удалась",
					"company_id", c.CompanyID,
					"marketplace", c.Marketplace,
					"error", err,
				)
				return nil
			}
			if report.Mode != models.SyncModeNoop {
				s.logger.Info("Синхронизация компании завершена",
					"company_id", c.CompanyID,
					"marketplace", c.Marketplace,
					"mode", string(report.Mode),
					"orders_fetched", report.OrdersFetched,
					"duration", report.Duration.String(),
				)
			}
			return nil
		})
	}

	return g.Wait()
}

// SyncCompany синхронизирует одну пару (маркетплейс, компания).
// force игнорирует свежесть чекпоинта: запуск произойдет даже при свежем NOOP.
func (s *SyncService) SyncCompany(ctx context.Context, creds *dto.CompanyCredentials, force bool) (*RunReport, error) {
	adapter, ok := s.adapters[creds.Marketplace]
	if !ok {
		return nil, fmt.Errorf("неизвестный маркетплейс: %s", creds.Marketplace)
	}
	if !creds.Valid() {
		return nil, errors.ErrNoCredentials
	}

	key := string(creds.Marketplace) + ":" + creds.CompanyID
	if !s.acquire(key) {
		return nil, errors.ErrSyncInProgress
	}
	defer s.release(key)

	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	started := s.now()
	report := &RunReport{
		CompanyID:   creds.CompanyID,
		Marketplace: creds.Marketplace,
	}

	checkpoint, err := s.checkpoints.GetCheckpoint(ctx, creds.Marketplace, creds.CompanyID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	// Чекпоинт IN_PROGRESS означает запуск из другого процесса: API и воркер
	// работают над одной базой. Брошенный IN_PROGRESS старше двойного потолка
	// запуска считается умершим и не блокирует новый запуск.
	if checkpoint != nil && checkpoint.LastStatus == models.CheckpointInProgress &&
		now.Sub(checkpoint.UpdatedAt) < s.staleLockAge() {
		return nil, errors.ErrSyncInProgress
	}

	mode := checkpoint.Mode(now, s.cfg.MaxGap)
	if mode == models.SyncModeNoop && !force {
		report.Mode = models.SyncModeNoop
		report.Duration = s.now().Sub(started)
		return report, nil
	}

	window := s.windowFor(checkpoint, mode, now)
	report.Mode = mode
	report.WindowFrom = window.From
	report.WindowTo = window.To

	if checkpoint == nil {
		checkpoint = &models.SyncCheckpoint{
			Marketplace: creds.Marketplace,
			CompanyID:   creds.CompanyID,
		}
	}
	checkpoint.LastStatus = models.CheckpointInProgress
	if err := s.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
		return nil, err
	}

	fetchErr := s.pullWindow(ctx, adapter, *creds, window, report)

	checkpoint.SyncDurationMs = s.now().Sub(started).Milliseconds()
	if fetchErr != nil {
		checkpoint.LastStatus = models.CheckpointFailed
		checkpoint.LastError = fetchErr.Error()
	} else {
		checkpoint.LastStatus = models.CheckpointSuccess
		checkpoint.LastError = ""
		checkpoint.LastSyncTime = &window.To
		checkpoint.OrdersFetched = report.OrdersFetched
	}
	if err := s.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
		s.logger.Error("Ошибка сохранения чекпоинта",
			"company_id", creds.CompanyID, "marketplace", creds.Marketplace, "error", err)
	}

	report.Duration = s.now().Sub(started)
	if fetchErr != nil {
		return report, fetchErr
	}
	return report, nil
}

// windowFor вычисляет окно выборки для выбранного режима
func (s *SyncService) windowFor(checkpoint *models.SyncCheckpoint, mode models.SyncMode, now time.Time) dto.DateRange {
	if mode == models.SyncModeCatchUp && checkpoint != nil && checkpoint.LastSyncTime != nil {
		return dto.DateRange{From: *checkpoint.LastSyncTime, To: now}
	}
	return dto.DateRange{From: now.AddDate(0, 0, -s.cfg.InitialSyncDays), To: now}
}

// pullWindow постранично выкачивает окно и сливает заказы.
// Нечитаемый заказ не прерывает запуск: он считается в map_failures.
func (s *SyncService) pullWindow(ctx context.Context, adapter MarketplaceAdapter, creds dto.CompanyCredentials, window dto.DateRange, report *RunReport) error {
	offset := 0
	for {
		page, err := adapter.Client.ListOrders(ctx, creds, window, offset, s.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("failed to fetch orders page at offset %d: %w", offset, err)
		}

		for _, raw := range page.Orders {
			order, err := adapter.Mapper.MapOrder(raw)
			if err != nil {
				report.MapFailures++
				s.logger.Warn("Нечитаемый заказ пропущен",
					"company_id", creds.CompanyID,
					"marketplace", creds.Marketplace,
					"error", err,
				)
				continue
			}

			order.TenantID = creds.CompanyID
			created, err := s.merger.Upsert(ctx, order)
			if err != nil {
				return fmt.Errorf("failed to upsert order %s: %w", order.PostingNumber, err)
			}
			report.OrdersFetched++
			if created {
				report.OrdersCreated++
			}
		}

		if !page.HasMore {
			return nil
		}
		offset += s.cfg.PageSize
	}
}

// ForceSync принудительно запускает синхронизацию компании, минуя проверку свежести
func (s *SyncService) ForceSync(ctx context.Context, companyID string, marketplace dto.Marketplace) (*RunReport, error) {
	creds, err := s.credentials.GetActive(ctx, companyID, marketplace)
	if err != nil {
		return nil, err
	}
	return s.SyncCompany(ctx, creds, true)
}

// Status возвращает чекпоинты компании по всем маркетплейсам
func (s *SyncService) Status(ctx context.Context, companyID string) ([]*models.SyncCheckpoint, error) {
	return s.checkpoints.ListCheckpoints(ctx, companyID)
}

// CheckConnections проверяет доступность API маркетплейсов для компании
func (s *SyncService) CheckConnections(ctx context.Context, companyID string) map[dto.Marketplace]bool {
	result := make(map[dto.Marketplace]bool, len(s.adapters))
	for marketplace, adapter := range s.adapters {
		creds, err := s.credentials.GetActive(ctx, companyID, marketplace)
		if err != nil {
			result[marketplace] = false
			continue
		}
		result[marketplace] = adapter.Client.TestConnection(ctx, *creds)
	}
	return result
}

// staleLockAge возраст IN_PROGRESS чекпоинта, после которого владевший им
// запуск считается умершим: живой запуск не переживает удвоенный RunTimeout
func (s *SyncService) staleLockAge() time.Duration {
	if s.cfg.RunTimeout > 0 {
		return 2 * s.cfg.RunTimeout
	}
	return 30 * time.Minute
}

func (s *SyncService) acquire(key string) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *SyncService) release(key string) {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	delete(s.inFlight, key)
}
