package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/athebyme/gomarket-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-sync/internal/domain/models"
	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/errors"
	"github.com/athebyme/gomarket-sync/pkg/interfaces"
)

var testLogger = logger.NewNop()

// fakeTxManager выполняет функцию без настоящей транзакции
type fakeTxManager struct{}

func (fakeTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// recordedMessage опубликованное фейковым брокером сообщение
type recordedMessage struct {
	Topic string
	Key   string
	Value []byte
}

// fakeMessaging запоминает публикации вместо отправки в Kafka
type fakeMessaging struct {
	mu       sync.Mutex
	messages []recordedMessage
}

func (f *fakeMessaging) Publish(ctx context.Context, topic string, message []byte) error {
	return f.PublishWithKey(ctx, topic, "", message)
}

func (f *fakeMessaging) PublishWithKey(ctx context.Context, topic string, key string, message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, recordedMessage{Topic: topic, Key: key, Value: message})
	return nil
}

func (f *fakeMessaging) Subscribe(ctx context.Context, topic string, handler interfaces.MessageHandler) (func() error, error) {
	return func() error { return nil }, nil
}

func (f *fakeMessaging) SubscribeGroup(ctx context.Context, topic, groupID string, handler interfaces.MessageHandler) (func() error, error) {
	return func() error { return nil }, nil
}

func (f *fakeMessaging) Close() error { return nil }

func (f *fakeMessaging) byTopic(topic string) []recordedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedMessage
	for _, m := range f.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeMessaging) eventTypes(topic string) []string {
	var types []string
	for _, m := range f.byTopic(topic) {
		var event OrderEvent
		if err := json.Unmarshal(m.Value, &event); err == nil {
			types = append(types, event.Type)
		}
	}
	return types
}

type transition struct {
	PostingNumber string
	From, To      dto.OrderStatus
}

// fakeOrderStorage хранилище заказов в памяти
type fakeOrderStorage struct {
	mu          sync.Mutex
	orders      map[string]*dto.Order
	transitions []transition
	saveErr     error
}

func newFakeOrderStorage() *fakeOrderStorage {
	return &fakeOrderStorage{orders: make(map[string]*dto.Order)}
}

func orderKey(postingNumber string, marketplace dto.Marketplace, tenantID string) string {
	return tenantID + "/" + string(marketplace) + "/" + postingNumber
}

func (f *fakeOrderStorage) GetOrder(ctx context.Context, postingNumber string, marketplace dto.Marketplace, tenantID string) (*dto.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderKey(postingNumber, marketplace, tenantID)]; ok {
		copied := *o
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeOrderStorage) SaveOrder(ctx context.Context, order *dto.Order) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return false, f.saveErr
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = time.Now().UTC()
	key := orderKey(order.PostingNumber, order.Marketplace, order.TenantID)
	_, exists := f.orders[key]
	copied := *order
	f.orders[key] = &copied
	return !exists, nil
}

func (f *fakeOrderStorage) ListOrders(ctx context.Context, tenantID string, marketplace dto.Marketplace, statuses []dto.OrderStatus, page, pageSize int) ([]*dto.Order, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*dto.Order
	for _, o := range f.orders {
		if o.TenantID == tenantID {
			copied := *o
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

func (f *fakeOrderStorage) SaveStatusTransition(ctx context.Context, order *dto.Order, from, to dto.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, transition{PostingNumber: order.PostingNumber, From: from, To: to})
	return nil
}

// fakeCheckpoints хранилище чекпоинтов в памяти
type fakeCheckpoints struct {
	mu          sync.Mutex
	checkpoints map[string]*models.SyncCheckpoint
	saves       []models.CheckpointStatus
}

func newFakeCheckpoints() *fakeCheckpoints {
	return &fakeCheckpoints{checkpoints: make(map[string]*models.SyncCheckpoint)}
}

func (f *fakeCheckpoints) GetCheckpoint(ctx context.Context, marketplace dto.Marketplace, companyID string) (*models.SyncCheckpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cp, ok := f.checkpoints[string(marketplace)+":"+companyID]; ok {
		copied := *cp
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeCheckpoints) SaveCheckpoint(ctx context.Context, checkpoint *models.SyncCheckpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	checkpoint.UpdatedAt = time.Now().UTC()
	copied := *checkpoint
	f.checkpoints[string(checkpoint.Marketplace)+":"+checkpoint.CompanyID] = &copied
	f.saves = append(f.saves, checkpoint.LastStatus)
	return nil
}

func (f *fakeCheckpoints) ListCheckpoints(ctx context.Context, companyID string) ([]*models.SyncCheckpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SyncCheckpoint
	for _, cp := range f.checkpoints {
		if cp.CompanyID == companyID {
			copied := *cp
			out = append(out, &copied)
		}
	}
	return out, nil
}

// brokerMessage собирает входящее сообщение брокера для обработчиков
func brokerMessage(value []byte) *interfaces.Message {
	return &interfaces.Message{ID: "msg-1", Value: value}
}

// fakeCredentials отдает заранее заданные учетные данные
type fakeCredentials struct {
	creds []*dto.CompanyCredentials
}

func (f *fakeCredentials) ListActive(ctx context.Context) ([]*dto.CompanyCredentials, error) {
	return f.creds, nil
}

func (f *fakeCredentials) GetActive(ctx context.Context, companyID string, marketplace dto.Marketplace) (*dto.CompanyCredentials, error) {
	for _, c := range f.creds {
		if c.CompanyID == companyID && c.Marketplace == marketplace {
			return c, nil
		}
	}
	return nil, errors.ErrNoCredentials
}
