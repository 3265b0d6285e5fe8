package copytrader

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"smart_copy/internal/models"
)

// Recorder принимает записи о попытках копирования (tracker, storage)
type Recorder interface {
	RecordCopy(rec models.CopyRecord)
}

// FollowerResult - исход размещения ордера на одном follower'е
type FollowerResult struct {
	Follower  string
	Success   bool
	OrderID   string
	Err       error
	LatencyMs int64
}

// ExecutionResult - суммарный результат копирования одного master-ордера
type ExecutionResult struct {
	Results      []FollowerResult
	SuccessCount int
	FailedCount  int
	TotalCount   int
	Skipped      bool
	Reason       string
}

// Engine раскладывает master-ордер по follower-аккаунтам.
// Решение копировать/нет принимает Policy, неудача одного follower'а
// не трогает остальных.
type Engine struct {
	policy    Policy
	recorder  Recorder
	logger    *slog.Logger
	confirmer Confirmer

	now func() time.Time
}

// Confirmer подтверждает копирование ордера перед размещением
// (например, через Telegram). Блокирующий вызов.
type Confirmer interface {
	Confirm(ctx context.Context, order models.Order) (bool, error)
}

// NewEngine создает движок копирования
func NewEngine(policy Policy, recorder Recorder, logger *slog.Logger) *Engine {
	return &Engine{
		policy:   policy,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Policy возвращает текущую политику движка
func (e *Engine) Policy() Policy {
	return e.policy
}

// SetConfirmer подключает подтверждение ордеров перед размещением
func (e *Engine) SetConfirmer(c Confirmer) {
	e.confirmer = c
}

// CopyOrder применяет политику к ордеру и, если он проходит фильтры,
// размещает зеркальные ордера на всех followers параллельно.
// Всегда возвращает результат, даже при полном провале: ошибки
// размещения живут в per-follower результатах, а не в error.
func (e *Engine) CopyOrder(ctx context.Context, order models.Order, followers []*AccountSession) (*ExecutionResult, error) {
	ok, reason := e.policy.ShouldCopy(order)
	if !ok {
		e.logger.Info("⏭️  Order skipped by policy",
			slog.String("order_id", order.OrderID),
			slog.String("symbol", order.TradingSymbol),
			slog.String("reason", reason))
		return &ExecutionResult{Skipped: true, Reason: reason}, nil
	}

	if e.policy.RequireConfirmation {
		if e.confirmer == nil {
			e.logger.Warn("⚠️  Confirmation required but no confirmer configured, skipping order",
				slog.String("order_id", order.OrderID))
			return &ExecutionResult{Skipped: true, Reason: "confirmation required but unavailable"}, nil
		}

		approved, err := e.confirmer.Confirm(ctx, order)
		if err != nil {
			return &ExecutionResult{Skipped: true, Reason: "confirmation failed"}, fmt.Errorf("confirm order %s: %w", order.OrderID, err)
		}
		if !approved {
			e.logger.Info("🚫 Order rejected by operator", slog.String("order_id", order.OrderID))
			return &ExecutionResult{Skipped: true, Reason: "rejected by operator"}, nil
		}
	}

	if len(followers) == 0 {
		e.logger.Warn("⚠️  No active followers, nothing to copy",
			slog.String("order_id", order.OrderID))
		return &ExecutionResult{Skipped: true, Reason: "no active followers"}, nil
	}

	quantity := e.policy.FollowerQuantity(int(order.Quantity))
	if quantity <= 0 {
		reason := fmt.Sprintf("computed follower quantity %d is not positive", quantity)
		e.logger.Warn("⚠️  Order skipped", slog.String("order_id", order.OrderID), slog.String("reason", reason))
		return &ExecutionResult{Skipped: true, Reason: reason}, nil
	}

	params := e.buildOrderParams(order, quantity)

	e.logger.Info("📋 Copying order to followers",
		slog.String("order_id", order.OrderID),
		slog.String("symbol", order.TradingSymbol),
		slog.String("side", order.TransactionType),
		slog.Int("quantity", quantity),
		slog.Int("followers", len(followers)),
		slog.Bool("dry_run", e.policy.DryRun))

	result := &ExecutionResult{TotalCount: len(followers)}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, follower := range followers {
		g.Go(func() error {
			res := e.placeForFollower(gctx, follower, params)

			rec := models.CopyRecord{
				Timestamp:       e.now(),
				MasterOrderID:   order.OrderID,
				Symbol:          order.TradingSymbol,
				TransactionType: order.TransactionType,
				Quantity:        quantity,
				Price:           float64(order.Price),
				Follower:        follower.Name,
				Success:         res.Success,
				FollowerOrderID: res.OrderID,
			}
			if res.Err != nil {
				rec.Error = res.Err.Error()
			}
			if e.recorder != nil {
				e.recorder.RecordCopy(rec)
			}

			mu.Lock()
			result.Results = append(result.Results, res)
			if res.Success {
				result.SuccessCount++
			} else {
				result.FailedCount++
			}
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	e.logger.Info("📋 Copy execution finished",
		slog.String("order_id", order.OrderID),
		slog.Int("success", result.SuccessCount),
		slog.Int("failed", result.FailedCount))

	return result, nil
}

// placeForFollower размещает один зеркальный ордер.
// В dry-run режиме ордер только логируется.
func (e *Engine) placeForFollower(ctx context.Context, follower *AccountSession, params models.OrderParams) FollowerResult {
	started := e.now()

	if e.policy.DryRun {
		e.logger.Info("🧪 [DRY RUN] Would place order",
			slog.String("follower", follower.Name),
			slog.String("symbol", params.TradingSymbol),
			slog.String("side", params.TransactionType),
			slog.String("quantity", params.Quantity))
		return FollowerResult{
			Follower: follower.Name,
			Success:  true,
			OrderID:  "dry-run",
		}
	}

	orderID, err := follower.Client.PlaceOrder(ctx, params)
	latency := e.now().Sub(started).Milliseconds()

	if err != nil {
		e.logger.Error("❌ Order placement failed",
			slog.String("follower", follower.Name),
			slog.String("symbol", params.TradingSymbol),
			slog.Any("error", err))
		return FollowerResult{Follower: follower.Name, Err: err, LatencyMs: latency}
	}

	e.logger.Info("✅ Order placed",
		slog.String("follower", follower.Name),
		slog.String("symbol", params.TradingSymbol),
		slog.String("order_id", orderID),
		slog.Int64("latency_ms", latency))

	return FollowerResult{
		Follower:  follower.Name,
		Success:   true,
		OrderID:   orderID,
		LatencyMs: latency,
	}
}

// buildOrderParams переводит master-ордер в параметры размещения.
// Пустые variety/duration падают на NORMAL/DAY.
func (e *Engine) buildOrderParams(order models.Order, quantity int) models.OrderParams {
	variety := order.Variety
	if variety == "" {
		variety = "NORMAL"
	}

	duration := order.Duration
	if duration == "" {
		duration = "DAY"
	}

	params := models.OrderParams{
		Variety:         variety,
		TradingSymbol:   order.TradingSymbol,
		SymbolToken:     order.SymbolToken,
		TransactionType: order.TransactionType,
		Exchange:        order.Exchange,
		OrderType:       order.OrderType,
		ProductType:     order.ProductType,
		Duration:        duration,
		Price:           strconv.FormatFloat(float64(order.Price), 'f', -1, 64),
		SquareOff:       "0",
		StopLoss:        "0",
		Quantity:        strconv.Itoa(quantity),
	}

	if order.TriggerPrice > 0 {
		params.TriggerPrice = strconv.FormatFloat(float64(order.TriggerPrice), 'f', -1, 64)
	}

	return params
}
