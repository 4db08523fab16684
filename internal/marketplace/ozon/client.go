package ozon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/interfaces"
)

const defaultBaseURL = "https://api-seller.ozon.ru"

// Источники заказов Ozon
const (
	SourceFBO = "OZON_FBO"
	SourceFBS = "OZON_FBS"
)

// envelope обертка над сырым заказом: клиент помечает схему отгрузки,
// маппер этого же пакета ее разбирает
type envelope struct {
	Source string          `json:"source"`
	Order  json.RawMessage `json:"order"`
}

// Client адаптер Seller API Ozon
type Client struct {
	http   *resty.Client
	logger interfaces.LoggerPort
}

// NewClient создает клиента Seller API Ozon.
// baseURL пустой — используется боевой адрес API.
func NewClient(baseURL string, timeout time.Duration, logger interfaces.LoggerPort) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   http,
		logger: logger.WithMarketplace(string(dto.MarketplaceOzon)),
	}
}

// Marketplace реализация интерфейса MarketplaceClient
func (c *Client) Marketplace() dto.Marketplace {
	return dto.MarketplaceOzon
}

// authHeaders заголовки авторизации Seller API
func authHeaders(creds dto.CompanyCredentials) map[string]string {
	return map[string]string{
		"Client-Id": creds.ClientID,
		"Api-Key":   creds.APIKey,
	}
}

type listFilter struct {
	Since time.Time `json:"since"`
	To    time.Time `json:"to"`
}

type fboListRequest struct {
	Dir    string     `json:"dir"`
	Filter listFilter `json:"filter"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

type fboListResponse struct {
	Result []json.RawMessage `json:"result"`
}

type fbsListRequest struct {
	Dir    string     `json:"dir"`
	Filter listFilter `json:"filter"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

type fbsListResponse struct {
	Result struct {
		Postings []json.RawMessage `json:"postings"`
		HasNext  bool              `json:"has_next"`
	} `json:"result"`
}

// ListOrders возвращает страницу заказов обеих схем отгрузки.
// Для одного offset опрашиваются и FBO, и FBS: страница не пуста,
// пока хотя бы одна схема отдает полные страницы.
func (c *Client) ListOrders(ctx context.Context, creds dto.CompanyCredentials, window dto.DateRange, offset, limit int) (*interfaces.OrderPage, error) {
	page := &interfaces.OrderPage{}

	fbo, err := c.listFBO(ctx, creds, window, offset, limit)
	if err != nil {
		return nil, err
	}
	for _, raw := range fbo {
		wrapped, err := json.Marshal(envelope{Source: SourceFBO, Order: raw})
		if err != nil {
			return nil, fmt.Errorf("ошибка упаковки заказа FBO: %w", err)
		}
		page.Orders = append(page.Orders, wrapped)
	}

	fbs, err := c.listFBS(ctx, creds, window, offset, limit)
	if err != nil {
		return nil, err
	}
	for _, raw := range fbs {
		wrapped, err := json.Marshal(envelope{Source: SourceFBS, Order: raw})
		if err != nil {
			return nil, fmt.Errorf("ошибка упаковки заказа FBS: %w", err)
		}
		page.Orders = append(page.Orders, wrapped)
	}

	page.HasMore = len(fbo) == limit || len(fbs) == limit
	return page, nil
}

func (c *Client) listFBO(ctx context.Context, creds dto.CompanyCredentials, window dto.DateRange, offset, limit int) ([]json.RawMessage, error) {
	var result fboListResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(authHeaders(creds)).
		SetBody(fboListRequest{
			Dir:    "ASC",
			Filter: listFilter{Since: window.From, To: window.To},
			Limit:  limit,
			Offset: offset,
		}).
		SetResult(&result).
		Post("/v2/posting/fbo/list")
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса списка FBO: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("список FBO: статус %d: %s", resp.StatusCode(), resp.String())
	}

	return result.Result, nil
}

func (c *Client) listFBS(ctx context.Context, creds dto.CompanyCredentials, window dto.DateRange, offset, limit int) ([]json.RawMessage, error) {
	var result fbsListResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(authHeaders(creds)).
		SetBody(fbsListRequest{
			Dir:    "ASC",
			Filter: listFilter{Since: window.From, To: window.To},
			Limit:  limit,
			Offset: offset,
		}).
		SetResult(&result).
		Post("/v3/posting/fbs/list")
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса списка FBS: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("список FBS: статус %d: %s", resp.StatusCode(), resp.String())
	}

	return result.Result.Postings, nil
}

type fbsGetRequest struct {
	PostingNumber string `json:"posting_number"`
}

type fbsGetResponse struct {
	Result json.RawMessage `json:"result"`
}

// GetOrder возвращает одно отправление FBS по номеру
func (c *Client) GetOrder(ctx context.Context, creds dto.CompanyCredentials, postingNumber string) (json.RawMessage, error) {
	var result fbsGetResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(authHeaders(creds)).
		SetBody(fbsGetRequest{PostingNumber: postingNumber}).
		SetResult(&result).
		Post("/v3/posting/fbs/get")
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса отправления %s: %w", postingNumber, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("отправление %s: статус %d: %s", postingNumber, resp.StatusCode(), resp.String())
	}

	return json.Marshal(envelope{Source: SourceFBS, Order: result.Result})
}

type stockUpdateRequest struct {
	Stocks []stockUpdateItem `json:"stocks"`
}

type stockUpdateItem struct {
	OfferID     string `json:"offer_id"`
	Stock       int    `json:"stock"`
	WarehouseID string `json:"warehouse_id"`
}

// UpdateStock обновляет остаток товара на складе.
// Тело ответа возвращается без разбора ошибок: Ozon отвечает 200
// и кладет ошибки по позициям в result[].errors[].
func (c *Client) UpdateStock(ctx context.Context, creds dto.CompanyCredentials, offerID string, quantity int, warehouseID string) (*dto.APIResponse, error) {
	var result dto.APIResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(authHeaders(creds)).
		SetBody(stockUpdateRequest{
			Stocks: []stockUpdateItem{{OfferID: offerID, Stock: quantity, WarehouseID: warehouseID}},
		}).
		SetResult(&result).
		SetError(&result).
		Post("/v2/products/stocks")
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления остатка %s: %w", offerID, err)
	}
	if resp.IsError() && result.Error == nil {
		return nil, fmt.Errorf("обновление остатка %s: статус %d: %s", offerID, resp.StatusCode(), resp.String())
	}

	return &result, nil
}

// TestConnection проверяет доступность Seller API с данными учетными данными
func (c *Client) TestConnection(ctx context.Context, creds dto.CompanyCredentials) bool {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(authHeaders(creds)).
		SetBody(map[string]interface{}{}).
		Post("/v1/warehouse/list")
	if err != nil {
		c.logger.Warn("Проверка соединения не удалась", "company_id", creds.CompanyID, "error", err)
		return false
	}

	return resp.IsSuccess()
}
