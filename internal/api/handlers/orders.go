package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/render"

	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/interfaces"
)

// OrderStorageInterface операции хранилища заказов, нужные HTTP-слою
type OrderStorageInterface interface {
	ListOrders(ctx context.Context, tenantID string, marketplace dto.Marketplace, statuses []dto.OrderStatus, page, pageSize int) ([]*dto.Order, int, error)
}

// OrdersHandler обработчик операторских запросов к синхронизированным заказам
type OrdersHandler struct {
	storage OrderStorageInterface
	logger  interfaces.LoggerPort
}

// NewOrdersHandler создает новый обработчик заказов
func NewOrdersHandler(storage OrderStorageInterface, logger interfaces.LoggerPort) *OrdersHandler {
	return &OrdersHandler{
		storage: storage,
		logger:  logger,
	}
}

// listResponse страница результатов списочного запроса
type listResponse struct {
	Success  bool        `json:"success"`
	Data     interface{} `json:"data"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// GetOrders возвращает страницу заказов компании.
// Фильтры: marketplace, status (список через запятую), page, page_size.
func (h *OrdersHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromContext(r)
	if !ok {
		badRequest(w, r, "ID компании не указан")
		return
	}

	q := r.URL.Query()
	marketplace := dto.Marketplace(q.Get("marketplace"))

	var statuses []dto.OrderStatus
	if s := q.Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			statuses = append(statuses, dto.OrderStatus(strings.TrimSpace(part)))
		}
	}

	page := queryInt(q.Get("page"), 1)
	pageSize := queryInt(q.Get("page_size"), 50)
	if pageSize > 200 {
		pageSize = 200
	}

	orders, total, err := h.storage.ListOrders(r.Context(), tenantID, marketplace, statuses, page, pageSize)
	if err != nil {
		h.logger.ErrorWithContext(r.Context(), "Ошибка получения списка заказов",
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Code:    http.StatusInternalServerError,
			Message: "Ошибка получения списка заказов",
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, listResponse{
		Success:  true,
		Data:     orders,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

func queryInt(raw string, def int) int {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	return v
}
