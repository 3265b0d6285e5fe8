package copytrader

import (
	"fmt"
	"slices"

	"smart_copy/internal/models"
)

// Policy - настройки копирования. Конфигурация, движком не мутируется.
type Policy struct {
	// Фильтрация по символам
	CopyAllOrders  bool     // false = копируем только AllowedSymbols
	AllowedSymbols []string // пустой список = ничего, если CopyAllOrders=false
	BlockedSymbols []string // никогда не копировать

	// Количество
	UseFixedQuantity   bool
	FixedQuantity      int     // используется как есть, masterQty игнорируется
	QuantityMultiplier float64 // floor(masterQty * multiplier)

	// Риск
	MaxOrderValue float64 // 0 = без лимита

	// Типы ордеров
	CopyMarketOrders bool
	CopyLimitOrders  bool
	CopyStopOrders   bool

	// Безопасность
	DryRun              bool
	RequireConfirmation bool
}

// DefaultPolicy - копировать все, количество 1:1
func DefaultPolicy() Policy {
	return Policy{
		CopyAllOrders:      true,
		QuantityMultiplier: 1.0,
		CopyMarketOrders:   true,
		CopyLimitOrders:    true,
		CopyStopOrders:     true,
	}
}

// ShouldCopy - чистая функция решения "копировать или нет".
// Порядок проверок фиксированный, первая сработавшая причина выигрывает:
// blocked-список всегда сильнее allowed-списка.
func (p Policy) ShouldCopy(order models.Order) (bool, string) {
	symbol := order.TradingSymbol

	if slices.Contains(p.BlockedSymbols, symbol) {
		return false, fmt.Sprintf("symbol %s is blocked", symbol)
	}

	if !p.CopyAllOrders && !slices.Contains(p.AllowedSymbols, symbol) {
		return false, fmt.Sprintf("symbol %s not in allowed list", symbol)
	}

	switch order.OrderType {
	case models.OrderTypeMarket:
		if !p.CopyMarketOrders {
			return false, "market orders disabled"
		}
	case models.OrderTypeLimit:
		if !p.CopyLimitOrders {
			return false, "limit orders disabled"
		}
	case models.OrderTypeStopLoss, models.OrderTypeStopLossMarket:
		if !p.CopyStopOrders {
			return false, "stop orders disabled"
		}
	}

	if p.MaxOrderValue > 0 && order.Value() > p.MaxOrderValue {
		return false, fmt.Sprintf("order value %.2f exceeds limit %.2f", order.Value(), p.MaxOrderValue)
	}

	return true, "order passes all filters"
}

// FollowerQuantity вычисляет количество для follower-аккаунта
func (p Policy) FollowerQuantity(masterQty int) int {
	if p.UseFixedQuantity && p.FixedQuantity > 0 {
		return p.FixedQuantity
	}

	return int(float64(masterQty) * p.QuantityMultiplier)
}
