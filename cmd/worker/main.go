package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/athebyme/gomarket-sync/config"
	"github.com/athebyme/gomarket-sync/internal/adapters/cache"
	"github.com/athebyme/gomarket-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-sync/internal/adapters/messaging"
	postgres "github.com/athebyme/gomarket-sync/internal/adapters/storage"
	"github.com/athebyme/gomarket-sync/internal/domain/services"
	"github.com/athebyme/gomarket-sync/internal/marketplace/ozon"
	"github.com/athebyme/gomarket-sync/internal/marketplace/wildberries"
	"github.com/athebyme/gomarket-sync/internal/scheduler"
	"github.com/athebyme/gomarket-sync/internal/utils"
	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/interfaces"
	"github.com/athebyme/gomarket-sync/pkg/retry"
	"github.com/athebyme/gomarket-sync/pkg/tx"
)

// Метрики для Prometheus
var (
	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_messages_processed_total",
		Help: "Общее количество обработанных сообщений",
	}, []string{"topic", "status"})

	messageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_message_processing_duration_seconds",
		Help:    "Длительность обработки сообщений",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})

	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "worker_active_goroutines",
		Help: "Количество активных горутин-обработчиков",
	})
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := logger.NewZapLogger(cfg.LogLevel, cfg.ENV == "production")
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	log.Info("Инициализация воркера",
		interfaces.LogField{Key: "app_name", Value: cfg.AppName + "-worker"},
		interfaces.LogField{Key: "version", Value: cfg.Version},
		interfaces.LogField{Key: "env", Value: cfg.ENV},
	)

	// Запускаем HTTP сервер для метрик если они включены
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("OK"))
			})

			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			log.Info("Запуск HTTP сервера для метрик",
				interfaces.LogField{Key: "addr", Value: addr})

			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error("Ошибка запуска HTTP сервера для метрик",
					interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}()
	}

	// Генерируем строку подключения к PostgreSQL
	connectionStr, err := utils.GenerateConnectionString(
		cfg.Postgres.Host,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
		cfg.Postgres.Port,
		cfg.Postgres.PoolSize,
		cfg.Postgres.Timeout,
	)
	if err != nil {
		log.Fatal("Ошибка генерации строки подключения к PostgreSQL",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}

	// Инициализируем хранилище
	db, err := postgres.NewPostgresStorage(ctx, connectionStr)
	if err != nil {
		log.Fatal("Ошибка инициализации хранилища",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer db.Close()
	log.Info("Хранилище инициализировано")

	// Инициализируем кэш
	cacheClient, err := cache.NewRedisCache(
		ctx,
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		log.Fatal("Ошибка инициализации кэша",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer cacheClient.Close()
	log.Info("Кэш инициализирован")

	// Инициализируем систему обмена сообщениями
	messagingClient, err := messaging.NewKafkaMessaging(
		cfg.Kafka.Brokers,
		cfg.Kafka.GroupID,
		log,
	)
	if err != nil {
		log.Fatal("Ошибка инициализации системы обмена сообщениями",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer messagingClient.Close()
	log.Info("Система обмена сообщениями инициализирована")

	ozonClient := ozon.NewClient(cfg.Marketplace.Ozon.BaseURL, cfg.Marketplace.Ozon.Timeout, log)
	wbClient := wildberries.NewClient(cfg.Marketplace.Wildberries.BaseURL, cfg.Marketplace.Wildberries.Timeout, log)

	txManager := tx.NewTxManager(db.Pool())

	credentialsService := services.NewCredentialsService(db, cfg.Sync.CredentialsTTL, log)
	catalogService := services.NewCatalogService(db, cacheClient, log)
	upsertService := services.NewOrderUpsertService(db, txManager, catalogService, messagingClient, log)

	stockService := services.NewStockSyncService(
		credentialsService,
		map[dto.Marketplace]interfaces.MarketplaceClient{
			dto.MarketplaceOzon:        ozonClient,
			dto.MarketplaceWildberries: wbClient,
		},
		messagingClient,
		retry.NewExecutor(retry.StockUpdatePolicy(), log),
		log,
	)

	syncService := services.NewSyncService(
		db,
		credentialsService,
		upsertService,
		map[dto.Marketplace]services.MarketplaceAdapter{
			dto.MarketplaceOzon:        {Client: ozonClient, Mapper: ozon.NewMapper()},
			dto.MarketplaceWildberries: {Client: wbClient, Mapper: wildberries.NewMapper()},
		},
		services.SyncConfig{
			InitialSyncDays: cfg.Sync.InitialSyncDays,
			MaxGap:          cfg.Sync.MaxGap,
			PageSize:        cfg.Sync.PageSize,
			RunTimeout:      cfg.Sync.RunTimeout,
			Concurrency:     cfg.Sync.Concurrency,
		},
		log,
	)
	log.Info("Сервисы синхронизации инициализированы")

	// Каналы для сигналов и завершения
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	// Подписываемся на запросы синхронизации остатков и заказов.
	// У каждого конвейера своя группа потребителей, чтобы отставание
	// одного топика не тормозило коммиты другого.
	subscribe(ctx, messagingClient, messaging.TopicStockSync, cfg.Kafka.GroupID+"-stock", stockService.HandleMessage, log, &wg)
	subscribe(ctx, messagingClient, messaging.TopicOrderSync, cfg.Kafka.GroupID+"-orders", upsertService.HandleSyncMessage, log, &wg)

	// Периодическая синхронизация заказов по расписанию
	syncScheduler := scheduler.New(syncService, cfg.Sync.Interval, cfg.Sync.StartupDelay, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		syncScheduler.Run(ctx)
	}()

	// Обработка сигналов завершения
	go func() {
		<-quit
		log.Info("Получен сигнал завершения, выполняется graceful shutdown...")
		cancel()
		wg.Wait()
		close(done)
	}()

	log.Info("Воркер запущен и готов к обработке сообщений")
	<-done
	log.Info("Воркер корректно завершил работу")
}

// subscribe подписывается на топик в составе группы потребителей
// и держит подписку до отмены контекста
func subscribe(ctx context.Context, messagingClient interfaces.MessagingPort,
	topic, groupID string, handler interfaces.MessageHandler,
	logger interfaces.LoggerPort, wg *sync.WaitGroup) {

	wg.Add(1)

	go func() {
		defer wg.Done()

		unsubscribe, err := messagingClient.SubscribeGroup(ctx, topic, groupID, instrumented(topic, handler))
		if err != nil {
			logger.Error("Ошибка подписки на топик",
				interfaces.LogField{Key: "topic", Value: topic},
				interfaces.LogField{Key: "error", Value: err.Error()})
			return
		}
		defer unsubscribe()

		logger.Info("Подписка установлена",
			interfaces.LogField{Key: "topic", Value: topic},
			interfaces.LogField{Key: "group_id", Value: groupID})

		<-ctx.Done()
		logger.Info("Отмена подписки",
			interfaces.LogField{Key: "topic", Value: topic})
	}()
}

// instrumented оборачивает обработчик снятием метрик
func instrumented(topic string, handler interfaces.MessageHandler) interfaces.MessageHandler {
	return func(ctx context.Context, msg *interfaces.Message) error {
		startTime := time.Now()
		activeWorkers.Inc()
		defer activeWorkers.Dec()

		err := handler(ctx, msg)
		if err != nil {
			messagesProcessed.WithLabelValues(topic, "error").Inc()
			return err
		}

		messageProcessingDuration.WithLabelValues(topic).Observe(time.Since(startTime).Seconds())
		messagesProcessed.WithLabelValues(topic, "success").Inc()
		return nil
	}
}
