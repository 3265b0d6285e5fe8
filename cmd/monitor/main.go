package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smart_copy/internal/config"
	"smart_copy/internal/copytrader"
	"smart_copy/internal/markethours"
	"smart_copy/internal/models"
	"smart_copy/internal/smartapi"
	"smart_copy/internal/telegram"

	"github.com/lmittmann/tint"
)

// Режим одного аккаунта: следим за ордерами без копирования.
// Удобен для проверки credentials и наблюдения перед включением followers.
func main() {
	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
		AddSource:  false,
		NoColor:    false,
	}))

	logger.Info("=== SmartAPI Order Monitor ===")

	cfg := config.Load(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := smartapi.New(cfg.Master, logger)
	if _, err := client.InitializeSession(ctx, 3, time.Minute); err != nil {
		logger.Error("❌ Session initialization failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer client.Logout(context.Background())

	var notifier *telegram.Notifier
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		if n, err := telegram.New(cfg.TelegramToken, cfg.TelegramChatID, logger); err == nil {
			notifier = n
		} else {
			logger.Warn("⚠️  Telegram notifier unavailable", slog.Any("error", err))
		}
	}

	tracker := copytrader.NewTracker()
	limiter := copytrader.NewLimiter(cfg.MaxCallsPerMinute, logger)
	hours := markethours.NewNSE(logger)

	monitor := copytrader.NewMonitor(client, tracker, limiter, hours, logger)
	monitor.SetIntervals(cfg.MarketHoursInterval, cfg.OffHoursInterval)
	monitor.SetGracePeriod(cfg.GracePeriod)

	monitor.OnNewOrder(func(_ context.Context, order models.Order) {
		logger.Info("📊 Order details",
			slog.String("order_id", order.OrderID),
			slog.String("symbol", order.TradingSymbol),
			slog.String("side", order.TransactionType),
			slog.String("type", order.OrderType),
			slog.Int("quantity", int(order.Quantity)),
			slog.Float64("price", float64(order.Price)),
			slog.Float64("value", order.Value()),
			slog.String("status", order.Status))

		if notifier != nil {
			notifier.NotifyOrder(order)
		}
	})

	monitor.OnCompletedOrder(func(ctx context.Context, order models.Order) {
		trades, err := client.TradeBook(ctx)
		if err != nil {
			logger.Warn("⚠️  Trade book unavailable", slog.Any("error", err))
			return
		}

		for _, trade := range trades {
			if trade.OrderID != order.OrderID {
				continue
			}

			logger.Info("💹 Order filled",
				slog.String("order_id", trade.OrderID),
				slog.String("symbol", trade.TradingSymbol),
				slog.Int("fill_size", int(trade.FillSize)),
				slog.Float64("fill_price", float64(trade.FillPrice)))
		}
	})

	if err := monitor.Seed(ctx); err != nil {
		logger.Error("❌ Failed to seed order baseline", slog.Any("error", err))
		os.Exit(1)
	}

	if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("❌ Monitor failed", slog.Any("error", err))
	}

	logger.Info("✅ Monitor stopped")
}
