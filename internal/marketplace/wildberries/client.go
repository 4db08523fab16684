package wildberries

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/interfaces"
)

const defaultBaseURL = "https://marketplace-api.wildberries.ru"

// SourceFBS единственная схема, которую мы забираем у Wildberries
const SourceFBS = "WB_FBS"

// Client адаптер Marketplace API Wildberries
type Client struct {
	http   *resty.Client
	logger interfaces.LoggerPort
}

// NewClient создает клиента Marketplace API Wildberries
func NewClient(baseURL string, timeout time.Duration, logger interfaces.LoggerPort) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		logger: logger.WithMarketplace(string(dto.MarketplaceWildberries)),
	}
}

// Marketplace реализация интерфейса MarketplaceClient
func (c *Client) Marketplace() dto.Marketplace {
	return dto.MarketplaceWildberries
}

type ordersResponse struct {
	Orders []json.RawMessage `json:"orders"`
}

// ListOrders возвращает страницу сборочных заданий.
// WB использует next-курсор, но при сортировке по дате он совпадает
// со смещением, поэтому пагинация остается offset-based.
func (c *Client) ListOrders(ctx context.Context, creds dto.CompanyCredentials, window dto.DateRange, offset, limit int) (*interfaces.OrderPage, error) {
	var result ordersResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", creds.APIKey).
		SetQueryParams(map[string]string{
			"limit":    strconv.Itoa(limit),
			"next":     strconv.Itoa(offset),
			"dateFrom": strconv.FormatInt(window.From.Unix(), 10),
			"dateTo":   strconv.FormatInt(window.To.Unix(), 10),
		}).
		SetResult(&result).
		Get("/api/v3/orders")
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса сборочных заданий: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("сборочные задания: статус %d: %s", resp.StatusCode(), resp.String())
	}

	return &interfaces.OrderPage{
		Orders:  result.Orders,
		HasMore: len(result.Orders) == limit,
	}, nil
}

// GetOrder возвращает одно сборочное задание. Отдельного endpoint у WB нет,
// поэтому задание ищется в свежем окне по номеру.
func (c *Client) GetOrder(ctx context.Context, creds dto.CompanyCredentials, postingNumber string) (json.RawMessage, error) {
	window := dto.DateRange{From: time.Now().AddDate(0, 0, -30), To: time.Now()}

	offset := 0
	const pageSize = 1000
	for {
		page, err := c.ListOrders(ctx, creds, window, offset, pageSize)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Orders {
			var probe struct {
				RID string `json:"rid"`
				ID  int64  `json:"id"`
			}
			if err := json.Unmarshal(raw, &probe); err != nil {
				continue
			}
			if probe.RID == postingNumber || strconv.FormatInt(probe.ID, 10) == postingNumber {
				return raw, nil
			}
		}
		if !page.HasMore {
			return nil, fmt.Errorf("сборочное задание %s не найдено", postingNumber)
		}
		offset += pageSize
	}
}

type stockUpdateRequest struct {
	Stocks []stockUpdateItem `json:"stocks"`
}

type stockUpdateItem struct {
	SKU    string `json:"sku"`
	Amount int    `json:"amount"`
}

// UpdateStock обновляет остаток товара на складе продавца.
// WB сигналит об ошибках HTTP-статусом; статус переводится в код ошибки
// того же словаря, что у Ozon, чтобы классификация повторов была общей.
func (c *Client) UpdateStock(ctx context.Context, creds dto.CompanyCredentials, offerID string, quantity int, warehouseID string) (*dto.APIResponse, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", creds.APIKey).
		SetBody(stockUpdateRequest{
			Stocks: []stockUpdateItem{{SKU: offerID, Amount: quantity}},
		}).
		Put("/api/v3/stocks/" + warehouseID)
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления остатка %s: %w", offerID, err)
	}

	if resp.IsError() {
		return &dto.APIResponse{
			Error: &dto.APIError{
				Code:    errorCodeFromStatus(resp.StatusCode()),
				Message: resp.String(),
			},
		}, nil
	}

	return &dto.APIResponse{}, nil
}

// errorCodeFromStatus переводит HTTP-статус WB в код ошибки общего словаря
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case http.StatusGatewayTimeout:
		return "GATEWAY_TIMEOUT"
	case http.StatusBadGateway:
		return "BAD_GATEWAY"
	case http.StatusInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	default:
		return fmt.Sprintf("HTTP_%d", status)
	}
}

// TestConnection проверяет доступность API с данным токеном
func (c *Client) TestConnection(ctx context.Context, creds dto.CompanyCredentials) bool {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", creds.APIKey).
		Get("/api/v3/warehouses")
	if err != nil {
		c.logger.Warn("Проверка соединения не удалась", "company_id", creds.CompanyID, "error", err)
		return false
	}

	return resp.IsSuccess()
}
