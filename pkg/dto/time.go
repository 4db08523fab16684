package dto

import (
	"encoding/json"
	"time"
)

// LooseTime дата из ответа внешнего API. Нечитаемое или пустое значение
// становится nil и не ломает разбор всего документа: маркетплейсы иногда
// отдают даты в неожиданных форматах, и заказ должен пережить такое поле.
type LooseTime struct {
	Value *time.Time
}

// UnmarshalJSON разбирает значение как RFC3339 и молча обнуляет его при неудаче
func (t *LooseTime) UnmarshalJSON(data []byte) error {
	t.Value = nil

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if s == "" {
		return nil
	}

	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t.Value = &parsed
	return nil
}

// MarshalJSON сериализует значение обратно в RFC3339, nil остается null
func (t LooseTime) MarshalJSON() ([]byte, error) {
	if t.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(t.Value.Format(time.RFC3339))
}
