package retry

import "time"

// Decision результат классификации ошибки API
type Decision int

const (
	// DecisionRetry ошибка временная, вызов стоит повторить
	DecisionRetry Decision = iota
	// DecisionAbort ошибка постоянная, повтор бессмысленен
	DecisionAbort
)

// retryableCodes коды ошибок маркетплейсов, при которых повтор имеет смысл.
// Список общий для Ozon и Wildberries: оба отдают коды в этом формате.
var retryableCodes = map[string]struct{}{
	"TOO_MANY_REQUESTS":     {},
	"RATE_LIMIT_EXCEEDED":   {},
	"SERVICE_UNAVAILABLE":   {},
	"INTERNAL_SERVER_ERROR": {},
	"GATEWAY_TIMEOUT":       {},
	"BAD_GATEWAY":           {},
}

// Classify определяет по коду ошибки, является ли она временной.
// Функция чистая: для фиксированного кода решение всегда одно и то же.
func Classify(code string) Decision {
	if _, ok := retryableCodes[code]; ok {
		return DecisionRetry
	}
	return DecisionAbort
}

// Policy бюджет повторов для класса вызовов
type Policy struct {
	MaxAttempts     int           // максимальное число попыток, включая первую
	InitialInterval time.Duration // задержка перед второй попыткой
	Multiplier      float64       // множитель экспоненциального роста
	MaxInterval     time.Duration // потолок задержки
}

// StockUpdatePolicy бюджет для обновления остатков: маркетплейс ограничивает
// частоту обновлений по каждому артикулу, поэтому попыток много, а задержки длинные.
func StockUpdatePolicy() Policy {
	return Policy{
		MaxAttempts:     30,
		InitialInterval: 2 * time.Second,
		Multiplier:      2,
		MaxInterval:     60 * time.Second,
	}
}

// GenericPolicy бюджет для остальных вызовов (списки заказов, проверка соединения)
func GenericPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		Multiplier:      2,
		MaxInterval:     30 * time.Second,
	}
}
