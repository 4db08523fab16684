package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/athebyme/gomarket-sync/internal/api/handlers"
	"github.com/athebyme/gomarket-sync/internal/api/middleware"
	"github.com/athebyme/gomarket-sync/pkg/interfaces"
)

// SetupRouter настраивает маршрутизатор
func SetupRouter(
	syncService handlers.SyncServiceInterface,
	orderStorage handlers.OrderStorageInterface,
	logger interfaces.LoggerPort,
	corsAllowedOrigins []string,
) *chi.Mux {
	r := chi.NewRouter()

	// Глобальные middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.CORS(corsAllowedOrigins))

	r.Method(http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	r.Method(http.MethodHead, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Tenant)

		syncHandler := handlers.NewSyncHandler(syncService, logger)
		ordersHandler := handlers.NewOrdersHandler(orderStorage, logger)

		r.Route("/sync", func(r chi.Router) {
			// Статус синхронизации по всем маркетплейсам компании
			r.Get("/status", syncHandler.GetStatus)

			// Принудительный запуск синхронизации
			r.Post("/force", syncHandler.ForceSync)

			// Проверка доступности API маркетплейсов
			r.Get("/check", syncHandler.CheckConnection)
		})

		// Синхронизированные заказы компании
		r.Get("/orders", ordersHandler.GetOrders)
	})

	return r
}
