package copytrader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"smart_copy/internal/models"
	"smart_copy/internal/smartapi"
)

const (
	defaultMarketInterval   = 6 * time.Second
	defaultOffHoursInterval = time.Minute
	defaultGracePeriod      = 15 * time.Second

	seedRetries   = 3
	seedBaseDelay = 10 * time.Second
)

// OrderFetcher отдает order book master-аккаунта
type OrderFetcher interface {
	OrderBook(ctx context.Context) ([]models.Order, error)
}

// MarketHours сообщает, открыта ли биржа в данный момент
type MarketHours interface {
	IsOpen(t time.Time) bool
}

// OrderHandler вызывается монитором на обнаруженный ордер
type OrderHandler func(ctx context.Context, order models.Order)

// Monitor опрашивает order book master-аккаунта и выявляет новые ордера.
//
// Частота опроса адаптивная: в торговые часы короткий интервал, вне их
// длинный. Все вызовы идут через Limiter, который и держит клиентский
// потолок, и отсекает опросы во время backoff после throttle.
// Poke будит цикл досрочно (например, по websocket-событию).
type Monitor struct {
	fetcher OrderFetcher
	tracker *Tracker
	limiter *Limiter
	hours   MarketHours
	logger  *slog.Logger

	marketInterval   time.Duration
	offHoursInterval time.Duration
	gracePeriod      time.Duration

	onNewOrder       OrderHandler
	onCompletedOrder OrderHandler

	wake chan struct{}

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewMonitor создает монитор с адаптивными интервалами по умолчанию
func NewMonitor(fetcher OrderFetcher, tracker *Tracker, limiter *Limiter, hours MarketHours, logger *slog.Logger) *Monitor {
	return &Monitor{
		fetcher:          fetcher,
		tracker:          tracker,
		limiter:          limiter,
		hours:            hours,
		logger:           logger,
		marketInterval:   defaultMarketInterval,
		offHoursInterval: defaultOffHoursInterval,
		gracePeriod:      defaultGracePeriod,
		wake:             make(chan struct{}, 1),
		now:              time.Now,
		sleep:            sleepCtx,
	}
}

// SetIntervals переопределяет интервалы опроса
func (m *Monitor) SetIntervals(market, offHours time.Duration) {
	m.marketInterval = market
	m.offHoursInterval = offHours
}

// SetGracePeriod переопределяет стартовую паузу перед первым опросом
func (m *Monitor) SetGracePeriod(d time.Duration) {
	m.gracePeriod = d
}

// OnNewOrder регистрирует обработчик любого нового ордера
func (m *Monitor) OnNewOrder(h OrderHandler) {
	m.onNewOrder = h
}

// OnCompletedOrder регистрирует обработчик нового исполненного ордера
func (m *Monitor) OnCompletedOrder(h OrderHandler) {
	m.onCompletedOrder = h
}

// Poke будит цикл опроса досрочно. Неблокирующий.
func (m *Monitor) Poke() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Seed запоминает текущий order book как baseline: существующие ордера
// не считаются новыми. Throttle на seed'е ретраится линейно, любая
// другая ошибка не фатальна - монитор стартует с пустым baseline.
func (m *Monitor) Seed(ctx context.Context) error {
	var lastErr error

	for attempt := 1; attempt <= seedRetries; attempt++ {
		orders, err := m.fetcher.OrderBook(ctx)
		if err == nil {
			seeded := m.tracker.Seed(orders)
			m.logger.Info("🌱 Order baseline seeded", slog.Int("orders", seeded))
			return nil
		}

		lastErr = err

		if !smartapi.IsThrottle(err) {
			m.logger.Warn("⚠️  Baseline seed failed, starting with empty baseline",
				slog.Any("error", err))
			return nil
		}

		wait := seedBaseDelay * time.Duration(attempt)
		m.logger.Warn("⚠️  Throttled during baseline seed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait))

		if err := m.sleep(ctx, wait); err != nil {
			return err
		}
	}

	return fmt.Errorf("seed order baseline: %w", lastErr)
}

// Run запускает цикл опроса до отмены контекста
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("👀 Monitor starting",
		slog.Duration("market_interval", m.marketInterval),
		slog.Duration("off_hours_interval", m.offHoursInterval),
		slog.Duration("grace_period", m.gracePeriod))

	if m.gracePeriod > 0 {
		if err := m.sleep(ctx, m.gracePeriod); err != nil {
			return m.finish(ctx.Err())
		}
	}

	for {
		m.checkOnce(ctx)

		interval := m.interval()

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return m.finish(ctx.Err())
		case <-m.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// interval выбирает интервал опроса по состоянию биржи
func (m *Monitor) interval() time.Duration {
	if m.hours != nil && m.hours.IsOpen(m.now()) {
		return m.marketInterval
	}
	return m.offHoursInterval
}

// checkOnce выполняет один цикл: лимиты, запрос, diff, обработчики
func (m *Monitor) checkOnce(ctx context.Context) {
	if inBackoff, remaining := m.limiter.InBackoff(); inBackoff {
		m.logger.Debug("⏸️  Skipping poll, throttle backoff active",
			slog.Duration("remaining", remaining))
		return
	}

	if err := m.limiter.Acquire(ctx); err != nil {
		return
	}

	orders, err := m.fetcher.OrderBook(ctx)
	if err != nil {
		if smartapi.IsThrottle(err) {
			backoff := m.limiter.RecordThrottle()
			m.logger.Warn("⚠️  Broker throttled order book poll, backing off",
				slog.Duration("backoff", backoff))
			return
		}

		m.logger.Warn("⚠️  Order book poll failed", slog.Any("error", err))
		return
	}

	m.limiter.RecordSuccess()

	for _, order := range orders {
		if !m.tracker.IsNew(order.OrderID) {
			continue
		}

		m.logger.Info("🆕 New order detected",
			slog.String("order_id", order.OrderID),
			slog.String("symbol", order.TradingSymbol),
			slog.String("side", order.TransactionType),
			slog.String("status", order.Status))

		if m.onNewOrder != nil {
			m.onNewOrder(ctx, order)
		}

		if order.Status == models.StatusComplete && m.onCompletedOrder != nil {
			m.onCompletedOrder(ctx, order)
		}
	}
}

// finish логирует итоги сессии и возвращает причину остановки
func (m *Monitor) finish(cause error) error {
	stats := m.tracker.Statistics()
	m.logger.Info("👀 Monitor stopped",
		slog.Int("known_orders", m.tracker.KnownCount()),
		slog.Int("total_copies", stats.TotalCopies),
		slog.Int("successful", stats.Successful),
		slog.Int("failed", stats.Failed),
		slog.Float64("success_rate", stats.SuccessRate))
	return cause
}
