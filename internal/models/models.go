package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Статусы ордера в orderBook SmartAPI
const (
	StatusComplete  = "complete"
	StatusOpen      = "open"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// Типы ордеров SmartAPI
const (
	OrderTypeMarket         = "MARKET"
	OrderTypeLimit          = "LIMIT"
	OrderTypeStopLoss       = "STOPLOSS"
	OrderTypeStopLossMarket = "STOPLOSS_MARKET"
)

// FlexInt - число из SmartAPI, которое приходит то числом, то строкой ("25"),
// то пустой строкой. Пустое/отсутствующее значение декодируется в 0.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		*f = 0
		return nil
	}

	*f = FlexInt(int(v))

	return nil
}

// FlexFloat - то же самое для дробных значений (price, triggerprice)
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		*f = 0
		return nil
	}

	*f = FlexFloat(v)

	return nil
}

// Order - ордер из orderBook мастер-аккаунта (снимок, не мутируется)
type Order struct {
	OrderID         string    `json:"orderid"`
	TradingSymbol   string    `json:"tradingsymbol"`
	SymbolToken     string    `json:"symboltoken"`
	TransactionType string    `json:"transactiontype"` // BUY / SELL
	OrderType       string    `json:"ordertype"`       // MARKET / LIMIT / STOPLOSS / STOPLOSS_MARKET
	ProductType     string    `json:"producttype"`
	Variety         string    `json:"variety"`
	Duration        string    `json:"duration"`
	Exchange        string    `json:"exchange"`
	Quantity        FlexInt   `json:"quantity"`
	Price           FlexFloat `json:"price"`
	TriggerPrice    FlexFloat `json:"triggerprice"`
	Status          string    `json:"status"`
	Text            string    `json:"text"`
	UpdateTime      string    `json:"updatetime"`
}

// Value возвращает стоимость ордера (для лимита max_order_value)
func (o Order) Value() float64 {
	return float64(o.Quantity) * float64(o.Price)
}

// Trade - запись из tradeBook
type Trade struct {
	OrderID         string    `json:"orderid"`
	TradingSymbol   string    `json:"tradingsymbol"`
	TransactionType string    `json:"transactiontype"`
	Exchange        string    `json:"exchange"`
	FillSize        FlexInt   `json:"fillsize"`
	FillPrice       FlexFloat `json:"fillprice"`
	FillTime        string    `json:"filltime"`
}

// OrderParams - параметры placeOrder. SmartAPI ожидает числовые поля строками.
type OrderParams struct {
	Variety         string `json:"variety"`
	TradingSymbol   string `json:"tradingsymbol"`
	SymbolToken     string `json:"symboltoken"`
	TransactionType string `json:"transactiontype"`
	Exchange        string `json:"exchange"`
	OrderType       string `json:"ordertype"`
	ProductType     string `json:"producttype"`
	Duration        string `json:"duration"`
	Price           string `json:"price"`
	SquareOff       string `json:"squareoff"`
	StopLoss        string `json:"stoploss"`
	Quantity        string `json:"quantity"`
	TriggerPrice    string `json:"triggerprice,omitempty"`
}

// Profile - профиль аккаунта (для проверки живости сессии)
type Profile struct {
	ClientCode string `json:"clientcode"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}

// CopyRecord - запись об одной попытке копирования (order, follower).
// Append-only: создается ровно один раз на попытку и не изменяется.
type CopyRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	MasterOrderID   string    `json:"master_order_id"`
	Symbol          string    `json:"symbol"`
	TransactionType string    `json:"transaction_type"`
	Quantity        int       `json:"quantity"`
	Price           float64   `json:"price"`
	Follower        string    `json:"follower"`
	Success         bool      `json:"success"`
	FollowerOrderID string    `json:"follower_order_id,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// Statistics - итоги сессии копирования
type Statistics struct {
	TotalCopies int     `json:"total_copies"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// SessionLog - формат JSON-файла, который сохраняется при остановке сессии
type SessionLog struct {
	Records    []CopyRecord `json:"records"`
	Statistics Statistics   `json:"statistics"`
}

// MarshalIndent сериализует лог сессии в тот же формат, что и файл logs/copy_trading_*.json
func (s SessionLog) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
