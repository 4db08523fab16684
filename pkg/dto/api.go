package dto

import (
	"bytes"
	"encoding/json"
	"time"
)

// DateRange временное окно выборки заказов
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// APIError структурированная ошибка, встроенная в ответ маркетплейса
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIResponse обертка над ответом API маркетплейса.
// Маркетплейсы отвечают HTTP 200 и кладут ошибки внутрь тела:
// либо в result[].errors[], либо в корневой узел error.
type APIResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *APIError       `json:"error"`
}

// resultItem элемент массива result с возможными ошибками по позиции
type resultItem struct {
	Errors []APIError `json:"errors"`
}

// FirstError возвращает первую встреченную ошибку ответа:
// сначала просматривается result[].errors[], затем корневой error.
// nil означает успешный ответ.
func (r *APIResponse) FirstError() *APIError {
	if r == nil {
		return nil
	}

	if len(r.Result) > 0 && bytes.HasPrefix(bytes.TrimSpace(r.Result), []byte("[")) {
		var items []resultItem
		if err := json.Unmarshal(r.Result, &items); err == nil {
			for _, item := range items {
				if len(item.Errors) > 0 {
					e := item.Errors[0]
					return &e
				}
			}
		}
	}

	if r.Error != nil && (r.Error.Code != "" || r.Error.Message != "") {
		return r.Error
	}

	return nil
}
