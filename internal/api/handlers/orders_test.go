package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athebyme/gomarket-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-sync/pkg/dto"
)

// fakeOrderStorage подменяет хранилище заказов в тестах обработчиков
type fakeOrderStorage struct {
	orders   []*dto.Order
	total    int
	err      error
	lastCall struct {
		tenantID    string
		marketplace dto.Marketplace
		statuses    []dto.OrderStatus
		page        int
		pageSize    int
	}
}

func (f *fakeOrderStorage) ListOrders(ctx context.Context, tenantID string, marketplace dto.Marketplace, statuses []dto.OrderStatus, page, pageSize int) ([]*dto.Order, int, error) {
	f.lastCall.tenantID = tenantID
	f.lastCall.marketplace = marketplace
	f.lastCall.statuses = statuses
	f.lastCall.page = page
	f.lastCall.pageSize = pageSize
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.orders, f.total, nil
}

func TestGetOrders(t *testing.T) {
	store := &fakeOrderStorage{
		orders: []*dto.Order{
			{PostingNumber: "ozon-1", Marketplace: dto.MarketplaceOzon, Status: dto.StatusDelivered},
			{PostingNumber: "ozon-2", Marketplace: dto.MarketplaceOzon, Status: dto.StatusCancelled},
		},
		total: 12,
	}
	h := NewOrdersHandler(store, logger.NewNop())

	rec := doRequest(t, h.GetOrders, http.MethodGet,
		"/api/v1/orders?marketplace=OZON&status=delivered,cancelled&page=2&page_size=10", "company-1")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 12, body.Total)
	assert.Equal(t, 2, body.Page)
	assert.Equal(t, 10, body.PageSize)

	assert.Equal(t, "company-1", store.lastCall.tenantID)
	assert.Equal(t, dto.MarketplaceOzon, store.lastCall.marketplace)
	assert.Equal(t, []dto.OrderStatus{dto.StatusDelivered, dto.StatusCancelled}, store.lastCall.statuses)
	assert.Equal(t, 2, store.lastCall.page)
	assert.Equal(t, 10, store.lastCall.pageSize)
}

func TestGetOrdersDefaultsPagination(t *testing.T) {
	store := &fakeOrderStorage{}
	h := NewOrdersHandler(store, logger.NewNop())

	rec := doRequest(t, h.GetOrders, http.MethodGet, "/api/v1/orders?page=abc&page_size=0", "company-1")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, store.lastCall.page)
	assert.Equal(t, 50, store.lastCall.pageSize)
	assert.Empty(t, store.lastCall.statuses)
}

func TestGetOrdersRequiresTenant(t *testing.T) {
	h := NewOrdersHandler(&fakeOrderStorage{}, logger.NewNop())

	rec := doRequest(t, h.GetOrders, http.MethodGet, "/api/v1/orders", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
