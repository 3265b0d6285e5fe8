package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"smart_copy/internal/config"
	"smart_copy/internal/copytrader"
	"smart_copy/internal/markethours"
	"smart_copy/internal/models"
	"smart_copy/internal/smartapi"
	"smart_copy/internal/storage"
	"smart_copy/internal/telegram"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

func main() {
	validateOnly := flag.Bool("validate", false, "verify account sessions and exit")
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen, // "3:04PM"
		AddSource:  false,
		NoColor:    false,
	}))

	logger.Info("=== SmartAPI Copy Trader ===")

	cfg := config.Load(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализация сессий: master фатален, followers best-effort
	manager := copytrader.NewClientManager(logger)
	manager.SetInitDelay(cfg.InitDelay)

	if err := manager.Initialize(ctx, cfg.Master, cfg.Followers); err != nil {
		logger.Error("❌ Session initialization failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer manager.Logout(context.Background())

	if *validateOnly {
		if err := manager.VerifySessions(ctx); err != nil {
			logger.Error("❌ Session validation failed", slog.Any("error", err))
			os.Exit(1)
		}

		logger.Info("✅ All sessions valid")
		return
	}

	sessionID := uuid.NewString()
	logger.Info("🚀 Starting copy trading session", slog.String("session_id", sessionID))

	db, err := storage.New(cfg.DBPath, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Telegram опционален
	var notifier *telegram.Notifier
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		notifier, err = telegram.New(cfg.TelegramToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Warn("⚠️  Telegram notifier unavailable", slog.Any("error", err))
			notifier = nil
		}
	}

	tracker := copytrader.NewTracker()
	limiter := copytrader.NewLimiter(cfg.MaxCallsPerMinute, logger)
	hours := markethours.NewNSE(logger)

	recorder := &sessionRecorder{
		tracker:   tracker,
		db:        db,
		sessionID: sessionID,
		logger:    logger,
	}

	engine := copytrader.NewEngine(cfg.Policy, recorder, logger)

	master := manager.Master()
	monitor := copytrader.NewMonitor(master.Client, tracker, limiter, hours, logger)
	monitor.SetIntervals(cfg.MarketHoursInterval, cfg.OffHoursInterval)
	monitor.SetGracePeriod(cfg.GracePeriod)

	monitor.OnNewOrder(func(ctx context.Context, order models.Order) {
		err := db.AddLog(ctx, sessionID, "info", "new_order",
			fmt.Sprintf("%s %s %s qty=%d status=%s",
				order.OrderID, order.TransactionType, order.TradingSymbol, int(order.Quantity), order.Status))
		if err != nil {
			logger.Warn("⚠️  Failed to persist activity log", slog.Any("error", err))
		}

		if notifier != nil {
			notifier.NotifyOrder(order)
		}
	})

	monitor.OnCompletedOrder(func(ctx context.Context, order models.Order) {
		result, err := engine.CopyOrder(ctx, order, manager.ActiveFollowers())
		if err != nil {
			logger.Error("❌ Copy execution error",
				slog.String("order_id", order.OrderID),
				slog.Any("error", err))
			return
		}

		if notifier != nil {
			notifier.NotifyResult(order, result)
		}
	})

	// Baseline: существующие ордера не копируем
	if err := monitor.Seed(ctx); err != nil {
		logger.Error("❌ Failed to seed order baseline", slog.Any("error", err))
		os.Exit(1)
	}

	// Websocket стрим будит монитор раньше интервала опроса.
	// Best-effort: при недоступности стрима polling работает сам по себе.
	if stream, err := smartapi.NewStream(master.Client); err == nil {
		stream.SetHandler(func(update smartapi.OrderUpdate) {
			logger.Debug("📨 Order update from stream",
				slog.String("order_id", update.OrderData.OrderID),
				slog.String("status", update.OrderStatus))
			monitor.Poke()
		})

		if err := stream.Connect(); err != nil {
			logger.Warn("⚠️  Order stream unavailable, polling only", slog.Any("error", err))
		} else {
			defer stream.Disconnect()
		}
	} else {
		logger.Warn("⚠️  Order stream unavailable, polling only", slog.Any("error", err))
	}

	go serveHealth(cfg.Address, logger)

	if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("❌ Monitor failed", slog.Any("error", err))
	}

	logger.Info("🛑 Shutting down...")

	shutdown(tracker, notifier, cfg.LogDir, logger)

	logger.Info("✅ Copy trader stopped")
}

// shutdown экспортирует итоги сессии в JSON и шлет финальную статистику
func shutdown(tracker *copytrader.Tracker, notifier *telegram.Notifier, logDir string, logger *slog.Logger) {
	stats := tracker.Statistics()
	logger.Info("📊 Session statistics",
		slog.Int("total_copies", stats.TotalCopies),
		slog.Int("successful", stats.Successful),
		slog.Int("failed", stats.Failed),
		slog.Float64("success_rate", stats.SuccessRate))

	exportPath := filepath.Join(logDir, fmt.Sprintf("copy_trading_%s.json", time.Now().Format("20060102_150405")))
	if err := tracker.SaveRecords(exportPath); err != nil {
		logger.Error("Failed to export session records", slog.Any("error", err))
	} else {
		logger.Info("💾 Session records exported", slog.String("path", exportPath))
	}

	if notifier != nil {
		notifier.NotifyStatistics(stats)
	}
}

// serveHealth поднимает health endpoint для оркестратора
func serveHealth(address string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:         address,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("📡 Health endpoint starting", slog.String("address", address))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Health server failed", slog.Any("error", err))
	}
}

// sessionRecorder дублирует записи копирования в tracker и в БД
type sessionRecorder struct {
	tracker   *copytrader.Tracker
	db        *storage.Storage
	sessionID string
	logger    *slog.Logger
}

func (r *sessionRecorder) RecordCopy(rec models.CopyRecord) {
	r.tracker.RecordCopy(rec)

	if err := r.db.AddCopyRecord(context.Background(), r.sessionID, rec); err != nil {
		r.logger.Warn("⚠️  Failed to persist copy record", slog.Any("error", err))
	}
}
