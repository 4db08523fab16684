package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athebyme/gomarket-sync/internal/adapters/messaging"
	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/interfaces"
	"github.com/athebyme/gomarket-sync/pkg/retry"
)

// onePassRunner выполняет операцию один раз и классифицирует ответ.
// Пауз между повторами в тестах нет.
type onePassRunner struct{}

func (onePassRunner) Execute(ctx context.Context, identity string, op retry.Operation) (*dto.APIResponse, error) {
	resp, err := op(ctx)
	if err != nil {
		return nil, &retry.ExhaustedError{Identity: identity, Attempts: 1, Last: err}
	}
	if apiErr := resp.FirstError(); apiErr != nil {
		if retry.Classify(apiErr.Code) == retry.DecisionAbort {
			return resp, &retry.NonRetryableError{Identity: identity, Code: apiErr.Code, Message: apiErr.Message}
		}
		return nil, &retry.ExhaustedError{Identity: identity, Attempts: 1}
	}
	return resp, nil
}

// stockClient фейковый клиент, отвечающий на обновления остатков по складам
type stockClient struct {
	mu        sync.Mutex
	responses map[string]*dto.APIResponse // warehouseID -> ответ
	calls     []string
}

func (f *stockClient) Marketplace() dto.Marketplace { return dto.MarketplaceOzon }

func (f *stockClient) ListOrders(ctx context.Context, creds dto.CompanyCredentials, window dto.DateRange, offset, limit int) (*interfaces.OrderPage, error) {
	return &interfaces.OrderPage{}, nil
}

func (f *stockClient) GetOrder(ctx context.Context, creds dto.CompanyCredentials, postingNumber string) (json.RawMessage, error) {
	return nil, nil
}

func (f *stockClient) UpdateStock(ctx context.Context, creds dto.CompanyCredentials, offerID string, quantity int, warehouseID string) (*dto.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, warehouseID)
	if resp, ok := f.responses[warehouseID]; ok {
		return resp, nil
	}
	return &dto.APIResponse{}, nil
}

func (f *stockClient) TestConnection(ctx context.Context, creds dto.CompanyCredentials) bool {
	return true
}

func newStockService(client *stockClient, broker *fakeMessaging) *StockSyncService {
	return NewStockSyncService(
		&fakeCredentials{creds: []*dto.CompanyCredentials{testCreds()}},
		map[dto.Marketplace]interfaces.MarketplaceClient{dto.MarketplaceOzon: client},
		broker,
		onePassRunner{},
		testLogger,
	)
}

func fbsTarget(warehouseID string) dto.WarehouseTarget {
	return dto.WarehouseTarget{
		WarehouseID: warehouseID,
		Marketplace: dto.MarketplaceOzon,
		TenantID:    "company-1",
		Kind:        dto.WarehouseSellerFulfilled,
	}
}

func TestProcessSuccess(t *testing.T) {
	client := &stockClient{}
	svc := newStockService(client, &fakeMessaging{})

	results := svc.Process(context.Background(), &dto.StockSyncRequest{
		OfferID:    "ART-1",
		Quantity:   5,
		Warehouses: []dto.WarehouseTarget{fbsTarget("wh-1"), fbsTarget("wh-2")},
	})

	require.Len(t, results, 1)
	assert.Equal(t, dto.StockSyncSuccess, results[0].Status)
	assert.Equal(t, 2, results[0].SuccessCount)
	assert.Equal(t, 0, results[0].FailedCount)
	assert.ElementsMatch(t, []string{"wh-1", "wh-2"}, client.calls)
}

func TestProcessSkipsMarketplaceFulfilled(t *testing.T) {
	client := &stockClient{}
	svc := newStockService(client, &fakeMessaging{})

	fbo := fbsTarget("wh-fbo")
	fbo.Kind = dto.WarehouseMarketplaceFulfilled

	results := svc.Process(context.Background(), &dto.StockSyncRequest{
		OfferID:    "ART-1",
		Quantity:   5,
		Warehouses: []dto.WarehouseTarget{fbo},
	})

	require.Len(t, results, 1)
	assert.Equal(t, dto.StockSyncSkipped, results[0].Status)
	assert.Empty(t, client.calls, "склады FBO не должны дергать API")
}

func TestProcessDiscardsUnknownMarketplaceTargets(t *testing.T) {
	client := &stockClient{}
	broker := &fakeMessaging{}
	svc := newStockService(client, broker)

	foreign := fbsTarget("wh-foreign")
	foreign.Marketplace = dto.Marketplace("YANDEX")

	results := svc.Process(context.Background(), &dto.StockSyncRequest{
		OfferID:    "ART-1",
		Quantity:   5,
		Warehouses: []dto.WarehouseTarget{foreign, fbsTarget("wh-1")},
	})

	// чужой склад отброшен, для него нет ни результата, ни публикации
	require.Len(t, results, 1)
	assert.Equal(t, dto.MarketplaceOzon, results[0].Marketplace)
	assert.Equal(t, dto.StockSyncSuccess, results[0].Status)
	assert.ElementsMatch(t, []string{"wh-1"}, client.calls)
}

func TestProcessPartialSuccess(t *testing.T) {
	client := &stockClient{
		responses: map[string]*dto.APIResponse{
			"wh-bad": {Error: &dto.APIError{Code: "INVALID_ARGUMENT", Message: "нет такого склада"}},
		},
	}
	svc := newStockService(client, &fakeMessaging{})

	results := svc.Process(context.Background(), &dto.StockSyncRequest{
		OfferID:    "ART-1",
		Quantity:   5,
		Warehouses: []dto.WarehouseTarget{fbsTarget("wh-ok"), fbsTarget("wh-bad")},
	})

	require.Len(t, results, 1)
	result := results[0]
	assert.Equal(t, dto.StockSyncPartialSuccess, result.Status)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "wh-bad", result.Errors[0].WarehouseID)
	assert.Equal(t, "INVALID_ARGUMENT", result.Errors[0].Code)
}

func TestProcessFailsWithoutCredentials(t *testing.T) {
	client := &stockClient{}
	svc := NewStockSyncService(
		&fakeCredentials{}, // учетных данных нет
		map[dto.Marketplace]interfaces.MarketplaceClient{dto.MarketplaceOzon: client},
		&fakeMessaging{},
		onePassRunner{},
		testLogger,
	)

	results := svc.Process(context.Background(), &dto.StockSyncRequest{
		OfferID:    "ART-1",
		Quantity:   5,
		Warehouses: []dto.WarehouseTarget{fbsTarget("wh-1")},
	})

	require.Len(t, results, 1)
	assert.Equal(t, dto.StockSyncFailed, results[0].Status)
	assert.Empty(t, client.calls)
}

func TestHandleMessagePublishesResult(t *testing.T) {
	client := &stockClient{}
	broker := &fakeMessaging{}
	svc := newStockService(client, broker)

	payload, err := json.Marshal(dto.StockSyncRequest{
		OfferID:    "ART-1",
		Quantity:   3,
		Warehouses: []dto.WarehouseTarget{fbsTarget("wh-1")},
	})
	require.NoError(t, err)

	require.NoError(t, svc.HandleMessage(context.Background(), brokerMessage(payload)))

	responses := broker.byTopic(messaging.TopicStockSyncResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, "ART-1", responses[0].Key)

	var result dto.StockSyncResult
	require.NoError(t, json.Unmarshal(responses[0].Value, &result))
	assert.Equal(t, dto.StockSyncSuccess, result.Status)
}

func TestHandleMessageMalformedGoesToDeadLetter(t *testing.T) {
	broker := &fakeMessaging{}
	svc := newStockService(&stockClient{}, broker)

	require.NoError(t, svc.HandleMessage(context.Background(), brokerMessage([]byte("{сломано"))))

	assert.Len(t, broker.byTopic(messaging.TopicDeadLetter), 1)
	assert.Empty(t, broker.byTopic(messaging.TopicStockSyncResponse))
}
