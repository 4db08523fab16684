package services

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athebyme/gomarket-sync/internal/domain/models"
	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/errors"
	"github.com/athebyme/gomarket-sync/pkg/interfaces"
)

// fakeClient постранично отдает заранее заданные заказы
type fakeClient struct {
	mu      sync.Mutex
	orders  []json.RawMessage
	windows []dto.DateRange
	offsets []int
	listErr error
	alive   bool
}

func (f *fakeClient) Marketplace() dto.Marketplace { return dto.MarketplaceOzon }

func (f *fakeClient) ListOrders(ctx context.Context, creds dto.CompanyCredentials, window dto.DateRange, offset, limit int) (*interfaces.OrderPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.windows = append(f.windows, window)
	f.offsets = append(f.offsets, offset)

	if offset >= len(f.orders) {
		return &interfaces.OrderPage{}, nil
	}
	end := offset + limit
	if end > len(f.orders) {
		end = len(f.orders)
	}
	page := f.orders[offset:end]
	return &interfaces.OrderPage{Orders: page, HasMore: len(page) == limit}, nil
}

func (f *fakeClient) GetOrder(ctx context.Context, creds dto.CompanyCredentials, postingNumber string) (json.RawMessage, error) {
	return nil, errors.ErrNotFound
}

func (f *fakeClient) UpdateStock(ctx context.Context, creds dto.CompanyCredentials, offerID string, quantity int, warehouseID string) (*dto.APIResponse, error) {
	return &dto.APIResponse{}, nil
}

func (f *fakeClient) TestConnection(ctx context.Context, creds dto.CompanyCredentials) bool {
	return f.alive
}

// fakeMapper разбирает упрощенные заказы вида {"n": "...", "status": "..."}
type fakeMapper struct{}

func (fakeMapper) MapOrder(raw json.RawMessage) (*dto.Order, error) {
	var probe struct {
		N      string `json:"n"`
		Status string `json:"status"`
		Bad    bool   `json:"bad"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.Bad {
		return nil, stderrors.New("unreadable order")
	}
	return &dto.Order{
		PostingNumber: probe.N,
		Marketplace:   dto.MarketplaceOzon,
		Status:        dto.StatusFromCode(probe.Status),
	}, nil
}

// fakeMerger запоминает слитые заказы
type fakeMerger struct {
	mu     sync.Mutex
	orders []*dto.Order
	err    error
}

func (f *fakeMerger) Upsert(ctx context.Context, order *dto.Order) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.orders = append(f.orders, order)
	return true, nil
}

func rawOrders(numbers ...string) []json.RawMessage {
	var out []json.RawMessage
	for _, n := range numbers {
		out = append(out, json.RawMessage(`{"n":"`+n+`"}`))
	}
	return out
}

func testCreds() *dto.CompanyCredentials {
	return &dto.CompanyCredentials{
		CompanyID:   "company-1",
		Marketplace: dto.MarketplaceOzon,
		ClientID:    "client",
		APIKey:      "key",
		Active:      true,
	}
}

func newSyncService(client *fakeClient, checkpoints *fakeCheckpoints, merger *fakeMerger) *SyncService {
	return NewSyncService(
		checkpoints,
		&fakeCredentials{creds: []*dto.CompanyCredentials{testCreds()}},
		merger,
		map[dto.Marketplace]MarketplaceAdapter{
			dto.MarketplaceOzon: {Client: client, Mapper: fakeMapper{}},
		},
		SyncConfig{
			InitialSyncDays: 30,
			MaxGap:          30 * time.Minute,
			PageSize:        2,
			Concurrency:     4,
		},
		testLogger,
	)
}

func TestSyncCompanyInitialSync(t *testing.T) {
	client := &fakeClient{orders: rawOrders("p-1")}
	checkpoints := newFakeCheckpoints()
	merger := &fakeMerger{}
	svc := newSyncService(client, checkpoints, merger)

	report, err := svc.SyncCompany(context.Background(), testCreds(), false)
	require.NoError(t, err)

	assert.Equal(t, models.SyncModeInitial, report.Mode)
	assert.Equal(t, 1, report.OrdersFetched)

	// окно первого запуска уходит на initial_sync_days назад
	require.NotEmpty(t, client.windows)
	gap := client.windows[0].To.Sub(client.windows[0].From)
	assert.InDelta(t, (30 * 24 * time.Hour).Hours(), gap.Hours(), 1)

	// чекпоинт прошел через IN_PROGRESS и закончил SUCCESS
	assert.Equal(t, []models.CheckpointStatus{models.CheckpointInProgress, models.CheckpointSuccess}, checkpoints.saves)

	cp, err := checkpoints.GetCheckpoint(context.Background(), dto.MarketplaceOzon, "company-1")
	require.NoError(t, err)
	require.NotNil(t, cp.LastSyncTime)
	assert.Equal(t, client.windows[0].To, *cp.LastSyncTime)
	assert.Equal(t, 1, cp.OrdersFetched)

	// арендатор проставлен из учетных данных
	require.Len(t, merger.orders, 1)
	assert.Equal(t, "company-1", merger.orders[0].TenantID)
}

func TestSyncCompanyNoopWhenFresh(t *testing.T) {
	client := &fakeClient{orders: rawOrders("p-1")}
	checkpoints := newFakeCheckpoints()
	recent := time.Now().UTC().Add(-5 * time.Minute)
	require.NoError(t, checkpoints.SaveCheckpoint(context.Background(), &models.SyncCheckpoint{
		Marketplace:  dto.MarketplaceOzon,
		CompanyID:    "company-1",
		LastSyncTime: &recent,
		LastStatus:   models.CheckpointSuccess,
	}))
	checkpoints.saves = nil
	svc := newSyncService(client, checkpoints, &fakeMerger{})

	report, err := svc.SyncCompany(context.Background(), testCreds(), false)
	require.NoError(t, err)

	assert.Equal(t, models.SyncModeNoop, report.Mode)
	assert.Empty(t, client.offsets, "свежий чекпоинт не должен дергать API")
	assert.Empty(t, checkpoints.saves)
}

func TestSyncCompanyCatchUpFromLastBoundary(t *testing.T) {
	client := &fakeClient{orders: rawOrders("p-1")}
	checkpoints := newFakeCheckpoints()
	stale := time.Now().UTC().Add(-3 * time.Hour)
	require.NoError(t, checkpoints.SaveCheckpoint(context.Background(), &models.SyncCheckpoint{
		Marketplace:  dto.MarketplaceOzon,
		CompanyID:    "company-1",
		LastSyncTime: &stale,
		LastStatus:   models.CheckpointSuccess,
	}))
	svc := newSyncService(client, checkpoints, &fakeMerger{})

	report, err := svc.SyncCompany(context.Background(), testCreds(), false)
	require.NoError(t, err)

	assert.Equal(t, models.SyncModeCatchUp, report.Mode)
	require.NotEmpty(t, client.windows)
	assert.Equal(t, stale, client.windows[0].From)
}

func TestForceSyncBypassesFreshness(t *testing.T) {
	client := &fakeClient{orders: rawOrders("p-1")}
	checkpoints := newFakeCheckpoints()
	recent := time.Now().UTC().Add(-5 * time.Minute)
	require.NoError(t, checkpoints.SaveCheckpoint(context.Background(), &models.SyncCheckpoint{
		Marketplace:  dto.MarketplaceOzon,
		CompanyID:    "company-1",
		LastSyncTime: &recent,
		LastStatus:   models.CheckpointSuccess,
	}))
	merger := &fakeMerger{}
	svc := newSyncService(client, checkpoints, merger)

	report, err := svc.ForceSync(context.Background(), "company-1", dto.MarketplaceOzon)
	require.NoError(t, err)

	assert.Equal(t, 1, report.OrdersFetched)
	assert.Len(t, merger.orders, 1)
}

func TestSyncCompanyPagesUntilShortPage(t *testing.T) {
	// pageSize=2: полная страница, полная страница, короткая
	client := &fakeClient{orders: rawOrders("p-1", "p-2", "p-3", "p-4", "p-5")}
	checkpoints := newFakeCheckpoints()
	merger := &fakeMerger{}
	svc := newSyncService(client, checkpoints, merger)

	report, err := svc.SyncCompany(context.Background(), testCreds(), false)
	require.NoError(t, err)

	assert.Equal(t, 5, report.OrdersFetched)
	assert.Equal(t, []int{0, 2, 4}, client.offsets)
}

func TestSyncCompanyCountsMapFailures(t *testing.T) {
	client := &fakeClient{orders: []json.RawMessage{
		json.RawMessage(`{"n":"p-1"}`),
		json.RawMessage(`{"bad":true}`),
	}}
	checkpoints := newFakeCheckpoints()
	merger := &fakeMerger{}
	svc := newSyncService(client, checkpoints, merger)

	report, err := svc.SyncCompany(context.Background(), testCreds(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.OrdersFetched)
	assert.Equal(t, 1, report.MapFailures)
}

func TestSyncCompanyMarksCheckpointFailed(t *testing.T) {
	client := &fakeClient{listErr: stderrors.New("api is down")}
	checkpoints := newFakeCheckpoints()
	svc := newSyncService(client, checkpoints, &fakeMerger{})

	_, err := svc.SyncCompany(context.Background(), testCreds(), false)
	require.Error(t, err)

	cp, getErr := checkpoints.GetCheckpoint(context.Background(), dto.MarketplaceOzon, "company-1")
	require.NoError(t, getErr)
	assert.Equal(t, models.CheckpointFailed, cp.LastStatus)
	assert.Contains(t, cp.LastError, "api is down")
	assert.Nil(t, cp.LastSyncTime, "граница не двигается при сбое")
}

func TestSyncCompanyRejectsConcurrentRun(t *testing.T) {
	client := &fakeClient{orders: rawOrders("p-1")}
	svc := newSyncService(client, newFakeCheckpoints(), &fakeMerger{})

	require.True(t, svc.acquire("OZON:company-1"))
	defer svc.release("OZON:company-1")

	_, err := svc.SyncCompany(context.Background(), testCreds(), false)
	require.ErrorIs(t, err, errors.ErrSyncInProgress)
}

func TestSyncCompanyRejectsRunFromAnotherProcess(t *testing.T) {
	checkpoints := newFakeCheckpoints()
	require.NoError(t, checkpoints.SaveCheckpoint(context.Background(), &models.SyncCheckpoint{
		Marketplace: dto.MarketplaceOzon,
		CompanyID:   "company-1",
		LastStatus:  models.CheckpointInProgress,
	}))

	// второй экземпляр движка над тем же хранилищем: API и воркер
	client := &fakeClient{orders: rawOrders("p-1")}
	other := newSyncService(client, checkpoints, &fakeMerger{})

	_, err := other.ForceSync(context.Background(), "company-1", dto.MarketplaceOzon)
	require.ErrorIs(t, err, errors.ErrSyncInProgress)
	assert.Empty(t, client.offsets, "чужой запуск не должен дергать API")
}

func TestSyncCompanyIgnoresStaleInProgress(t *testing.T) {
	checkpoints := newFakeCheckpoints()
	require.NoError(t, checkpoints.SaveCheckpoint(context.Background(), &models.SyncCheckpoint{
		Marketplace: dto.MarketplaceOzon,
		CompanyID:   "company-1",
		LastStatus:  models.CheckpointInProgress,
	}))
	// владелец умер: отметка IN_PROGRESS старше потолка запуска
	checkpoints.checkpoints["OZON:company-1"].UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)

	client := &fakeClient{orders: rawOrders("p-1")}
	svc := newSyncService(client, checkpoints, &fakeMerger{})

	report, err := svc.SyncCompany(context.Background(), testCreds(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrdersFetched)
}

func TestSyncCompanyRecordsDuration(t *testing.T) {
	client := &fakeClient{orders: rawOrders("p-1")}
	checkpoints := newFakeCheckpoints()
	svc := newSyncService(client, checkpoints, &fakeMerger{})

	base := time.Now().UTC()
	step := 0
	svc.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	_, err := svc.SyncCompany(context.Background(), testCreds(), false)
	require.NoError(t, err)

	cp, err := checkpoints.GetCheckpoint(context.Background(), dto.MarketplaceOzon, "company-1")
	require.NoError(t, err)
	assert.Greater(t, cp.SyncDurationMs, int64(0), "длительность запуска сохраняется в чекпоинте")
}

func TestSyncAllContinuesAfterCompanyFailure(t *testing.T) {
	client := &fakeClient{listErr: stderrors.New("api is down")}
	checkpoints := newFakeCheckpoints()
	svc := newSyncService(client, checkpoints, &fakeMerger{})

	// сбой одной компании не валит весь запуск
	require.NoError(t, svc.SyncAll(context.Background()))
}

func TestCheckConnections(t *testing.T) {
	client := &fakeClient{alive: true}
	svc := newSyncService(client, newFakeCheckpoints(), &fakeMerger{})

	result := svc.CheckConnections(context.Background(), "company-1")
	assert.True(t, result[dto.MarketplaceOzon])

	result = svc.CheckConnections(context.Background(), "unknown-company")
	assert.False(t, result[dto.MarketplaceOzon])
}
