package dto

import "time"

// CompanyCredentials учетные данные компании (арендатора) для API маркетплейса.
// Передаются явно в каждый вызов клиента — амбиентного контекста компании нет.
type CompanyCredentials struct {
	CompanyID   string      `json:"company_id"`
	Marketplace Marketplace `json:"marketplace"`
	ClientID    string      `json:"client_id"` // Client-Id для Ozon, не используется WB
	APIKey      string      `json:"api_key"`   // Api-Key / токен авторизации
	Active      bool        `json:"active"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Valid сообщает, пригодны ли учетные данные для вызовов API
func (c *CompanyCredentials) Valid() bool {
	return c != nil && c.Active && c.APIKey != ""
}
