package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athebyme/gomarket-sync/internal/adapters/messaging"
	"github.com/athebyme/gomarket-sync/pkg/dto"
)

func newUpsertService(storage *fakeOrderStorage, broker *fakeMessaging) *OrderUpsertService {
	return NewOrderUpsertService(storage, fakeTxManager{}, nil, broker, testLogger)
}

func testOrder(postingNumber string, status dto.OrderStatus) *dto.Order {
	return &dto.Order{
		PostingNumber: postingNumber,
		Marketplace:   dto.MarketplaceOzon,
		Source:        "OZON_FBS",
		TenantID:      "company-1",
		Status:        status,
		Items: []dto.OrderItem{
			{OfferID: "ART-1", Quantity: 1},
		},
	}
}

func TestUpsertCreatesOrderAndPublishesEvent(t *testing.T) {
	storage := newFakeOrderStorage()
	broker := &fakeMessaging{}
	svc := newUpsertService(storage, broker)

	created, err := svc.Upsert(context.Background(), testOrder("p-1", dto.StatusAwaitingPackaging))
	require.NoError(t, err)
	assert.True(t, created)

	types := broker.eventTypes(messaging.TopicOrderEvents)
	assert.Equal(t, []string{messaging.OrderCreatedEvent}, types)
}

func TestUpsertIsIdempotent(t *testing.T) {
	storage := newFakeOrderStorage()
	broker := &fakeMessaging{}
	svc := newUpsertService(storage, broker)

	_, err := svc.Upsert(context.Background(), testOrder("p-1", dto.StatusAwaitingPackaging))
	require.NoError(t, err)

	created, err := svc.Upsert(context.Background(), testOrder("p-1", dto.StatusAwaitingPackaging))
	require.NoError(t, err)
	assert.False(t, created)

	// событие о создании только одно, переходов статуса не было
	types := broker.eventTypes(messaging.TopicOrderEvents)
	assert.Equal(t, []string{messaging.OrderCreatedEvent}, types)
	assert.Empty(t, storage.transitions)
}

func TestUpsertRecordsStatusTransition(t *testing.T) {
	storage := newFakeOrderStorage()
	broker := &fakeMessaging{}
	svc := newUpsertService(storage, broker)

	_, err := svc.Upsert(context.Background(), testOrder("p-1", dto.StatusAwaitingPackaging))
	require.NoError(t, err)

	_, err = svc.Upsert(context.Background(), testOrder("p-1", dto.StatusDelivering))
	require.NoError(t, err)

	require.Len(t, storage.transitions, 1)
	assert.Equal(t, dto.StatusAwaitingPackaging, storage.transitions[0].From)
	assert.Equal(t, dto.StatusDelivering, storage.transitions[0].To)
}

func TestUpsertCancellationPublishesStockReturnOnce(t *testing.T) {
	storage := newFakeOrderStorage()
	broker := &fakeMessaging{}
	svc := newUpsertService(storage, broker)

	_, err := svc.Upsert(context.Background(), testOrder("p-1", dto.StatusAwaitingPackaging))
	require.NoError(t, err)

	_, err = svc.Upsert(context.Background(), testOrder("p-1", dto.StatusCancelled))
	require.NoError(t, err)

	// повторная доставка того же отмененного заказа
	_, err = svc.Upsert(context.Background(), testOrder("p-1", dto.StatusCancelled))
	require.NoError(t, err)

	types := broker.eventTypes(messaging.TopicOrderEvents)
	assert.Equal(t, []string{
		messaging.OrderCreatedEvent,
		messaging.OrderCancelledEvent,
		messaging.StockReturnEvent,
	}, types)
}

func TestUpsertNewOrderAlreadyCancelled(t *testing.T) {
	storage := newFakeOrderStorage()
	broker := &fakeMessaging{}
	svc := newUpsertService(storage, broker)

	_, err := svc.Upsert(context.Background(), testOrder("p-1", dto.StatusCancelled))
	require.NoError(t, err)

	types := broker.eventTypes(messaging.TopicOrderEvents)
	assert.Equal(t, []string{
		messaging.OrderCreatedEvent,
		messaging.OrderCancelledEvent,
		messaging.StockReturnEvent,
	}, types)
}

func TestUpsertPreservesCreatedAt(t *testing.T) {
	storage := newFakeOrderStorage()
	broker := &fakeMessaging{}
	svc := newUpsertService(storage, broker)

	first := testOrder("p-1", dto.StatusAwaitingPackaging)
	_, err := svc.Upsert(context.Background(), first)
	require.NoError(t, err)

	second := testOrder("p-1", dto.StatusDelivering)
	_, err = svc.Upsert(context.Background(), second)
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestUpsertBatchContinuesAfterFailure(t *testing.T) {
	storage := newFakeOrderStorage()
	broker := &fakeMessaging{}
	svc := newUpsertService(storage, broker)

	msg := &dto.OrderSyncMessage{
		TenantID:    "company-1",
		Marketplace: dto.MarketplaceOzon,
		Orders: []dto.Order{
			*testOrder("p-1", dto.StatusAwaitingPackaging),
			*testOrder("p-2", dto.StatusDelivering),
		},
	}

	result := svc.UpsertBatch(context.Background(), msg)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ProcessedCount)
	assert.Empty(t, result.Errors)
}

func TestHandleSyncMessagePublishesResult(t *testing.T) {
	storage := newFakeOrderStorage()
	broker := &fakeMessaging{}
	svc := newUpsertService(storage, broker)

	payload, err := json.Marshal(dto.OrderSyncMessage{
		TenantID:    "company-1",
		Marketplace: dto.MarketplaceOzon,
		Orders:      []dto.Order{*testOrder("p-1", dto.StatusAwaitingPackaging)},
	})
	require.NoError(t, err)

	err = svc.HandleSyncMessage(context.Background(), brokerMessage(payload))
	require.NoError(t, err)

	responses := broker.byTopic(messaging.TopicOrderSyncResponse)
	require.Len(t, responses, 1)

	var result dto.OrderSyncResult
	require.NoError(t, json.Unmarshal(responses[0].Value, &result))
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ProcessedCount)
}

func TestHandleSyncMessageMalformedGoesToDeadLetter(t *testing.T) {
	storage := newFakeOrderStorage()
	broker := &fakeMessaging{}
	svc := newUpsertService(storage, broker)

	err := svc.HandleSyncMessage(context.Background(), brokerMessage([]byte("не json")))
	require.NoError(t, err)

	assert.Len(t, broker.byTopic(messaging.TopicDeadLetter), 1)
	assert.Empty(t, broker.byTopic(messaging.TopicOrderSyncResponse))
}
