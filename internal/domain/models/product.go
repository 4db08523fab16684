package models

import "time"

// ProductRef запись каталога, связывающая артикул продавца с товаром.
// Используется для обогащения позиций заказа идентификатором товара.
type ProductRef struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	OfferID   string    `json:"offer_id"` // артикул продавца
	Name      string    `json:"name"`
	Barcode   string    `json:"barcode,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
