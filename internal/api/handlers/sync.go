package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/render"

	"github.com/athebyme/gomarket-sync/internal/domain/models"
	"github.com/athebyme/gomarket-sync/internal/domain/services"
	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/errors"
	"github.com/athebyme/gomarket-sync/pkg/interfaces"
)

// SyncServiceInterface операции движка синхронизации, нужные HTTP-слою
type SyncServiceInterface interface {
	Status(ctx context.Context, companyID string) ([]*models.SyncCheckpoint, error)
	ForceSync(ctx context.Context, companyID string, marketplace dto.Marketplace) (*services.RunReport, error)
	CheckConnections(ctx context.Context, companyID string) map[dto.Marketplace]bool
}

// SyncHandler обработчик операторских запросов к движку синхронизации
type SyncHandler struct {
	syncService SyncServiceInterface
	logger      interfaces.LoggerPort
}

// NewSyncHandler создает новый обработчик синхронизации
func NewSyncHandler(syncService SyncServiceInterface, logger interfaces.LoggerPort) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		logger:      logger,
	}
}

// errorResponse представляет структуру ответа с ошибкой
type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// response представляет структуру успешного ответа
type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

func tenantFromContext(r *http.Request) (string, bool) {
	tenantID, ok := r.Context().Value("tenant_id").(string)
	return tenantID, ok && tenantID != ""
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorResponse{
		Error:   "bad_request",
		Code:    http.StatusBadRequest,
		Message: message,
	})
}

// GetStatus обрабатывает запрос статуса синхронизации компании
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromContext(r)
	if !ok {
		badRequest(w, r, "ID компании не указан")
		return
	}

	checkpoints, err := h.syncService.Status(r.Context(), tenantID)
	if err != nil {
		h.logger.ErrorWithContext(r.Context(), "Ошибка получения статуса синхронизации",
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Code:    http.StatusInternalServerError,
			Message: "Ошибка получения статуса синхронизации",
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    checkpoints,
	})
}

// ForceSync запускает принудительную синхронизацию и сразу отвечает 202.
// Полный прогон может длиться дольше таймаута HTTP-запроса, поэтому он идет
// в фоне с отвязанным от запроса контекстом; итог виден через GET /sync/status.
func (h *SyncHandler) ForceSync(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromContext(r)
	if !ok {
		badRequest(w, r, "ID компании не указан")
		return
	}

	marketplace := dto.Marketplace(r.URL.Query().Get("marketplace"))
	if marketplace == "" {
		badRequest(w, r, "Маркетплейс не указан")
		return
	}

	runCtx := context.WithoutCancel(r.Context())
	go func() {
		_, err := h.syncService.ForceSync(runCtx, tenantID, marketplace)
		if err != nil && err != errors.ErrSyncInProgress {
			h.logger.ErrorWithContext(runCtx, "Ошибка принудительной синхронизации",
				interfaces.LogField{Key: "company_id", Value: tenantID},
				interfaces.LogField{Key: "marketplace", Value: string(marketplace)},
				interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}()

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, response{
		Success: true,
	})
}

// CheckConnection обрабатывает запрос проверки соединения с маркетплейсами
func (h *SyncHandler) CheckConnection(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromContext(r)
	if !ok {
		badRequest(w, r, "ID компании не указан")
		return
	}

	result := h.syncService.CheckConnections(r.Context(), tenantID)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    result,
	})
}
