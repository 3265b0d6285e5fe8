package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"smart_copy/internal/copytrader"
	"smart_copy/internal/smartapi"
)

// Config содержит конфигурацию приложения
type Config struct {
	Master    smartapi.Credentials
	Followers []smartapi.Credentials

	Policy copytrader.Policy

	// Интервалы опроса
	MarketHoursInterval time.Duration
	OffHoursInterval    time.Duration
	MaxCallsPerMinute   int
	InitDelay           time.Duration
	GracePeriod         time.Duration

	DBPath string
	LogDir string

	TelegramToken  string
	TelegramChatID int64

	Address string // HTTP сервер для health endpoint'а
}

// Load загружает конфигурацию из переменных окружения.
// Фатальные ошибки (отсутствие обязательных credentials) завершают процесс.
func Load(logger *slog.Logger) *Config {
	cfg, err := loadFromEnv(os.Getenv)
	if err != nil {
		logger.Error("❌ Configuration error", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Policy.DryRun {
		logger.Info("🔍 DRY_RUN enabled - only logging, no real trades")
	} else {
		logger.Warn("⚠️  DRY_RUN disabled - REAL TRADES WILL BE EXECUTED!")
	}

	logger.Info("⚙️  Configuration loaded",
		slog.String("master", cfg.Master.Name),
		slog.Int("followers", len(cfg.Followers)),
		slog.Duration("market_interval", cfg.MarketHoursInterval),
		slog.Duration("off_hours_interval", cfg.OffHoursInterval),
		slog.Int("max_calls_per_minute", cfg.MaxCallsPerMinute))

	return cfg
}

// loadFromEnv собирает конфиг из источника переменных окружения.
// Вынесена отдельно, чтобы тестировать без реального окружения.
func loadFromEnv(getenv func(string) string) (*Config, error) {
	master := credentialsFromEnv(getenv, "MASTER", "master")
	if err := master.Validate(); err != nil {
		return nil, fmt.Errorf("master account: %w", err)
	}

	followers, err := followersFromEnv(getenv)
	if err != nil {
		return nil, err
	}

	policy := copytrader.DefaultPolicy()

	// DRY_RUN по умолчанию true для безопасности
	policy.DryRun = getenv("DRY_RUN") != "false"

	if v := getenv("COPY_ALL_ORDERS"); v != "" {
		policy.CopyAllOrders = v == "true"
	}
	if v := getenv("ALLOWED_SYMBOLS"); v != "" {
		policy.AllowedSymbols = splitSymbols(v)
	}
	if v := getenv("BLOCKED_SYMBOLS"); v != "" {
		policy.BlockedSymbols = splitSymbols(v)
	}
	if v := getenv("USE_FIXED_QUANTITY"); v == "true" {
		policy.UseFixedQuantity = true
	}
	if v := getenv("FIXED_QUANTITY"); v != "" {
		policy.FixedQuantity = envInt(v, policy.FixedQuantity)
	}
	if v := getenv("QUANTITY_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			policy.QuantityMultiplier = f
		}
	}
	if v := getenv("MAX_ORDER_VALUE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			policy.MaxOrderValue = f
		}
	}
	if v := getenv("COPY_MARKET_ORDERS"); v != "" {
		policy.CopyMarketOrders = v == "true"
	}
	if v := getenv("COPY_LIMIT_ORDERS"); v != "" {
		policy.CopyLimitOrders = v == "true"
	}
	if v := getenv("COPY_STOP_ORDERS"); v != "" {
		policy.CopyStopOrders = v == "true"
	}
	if v := getenv("REQUIRE_CONFIRMATION"); v == "true" {
		policy.RequireConfirmation = true
	}

	cfg := &Config{
		Master:              master,
		Followers:           followers,
		Policy:              policy,
		MarketHoursInterval: envDuration(getenv("MARKET_HOURS_INTERVAL"), 6*time.Second),
		OffHoursInterval:    envDuration(getenv("OFF_HOURS_INTERVAL"), time.Minute),
		MaxCallsPerMinute:   envInt(getenv("MAX_CALLS_PER_MINUTE"), 10),
		InitDelay:           envDuration(getenv("INIT_DELAY"), 5*time.Second),
		GracePeriod:         envDuration(getenv("GRACE_PERIOD"), 15*time.Second),
		DBPath:              getenv("DB_PATH"),
		LogDir:              getenv("LOG_DIR"),
		TelegramToken:       getenv("TELEGRAM_BOT_TOKEN"),
		Address:             getenv("ADDRESS"),
	}

	if cfg.DBPath == "" {
		cfg.DBPath = "./copy_trader.db"
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}
	if cfg.Address == "" {
		cfg.Address = "0.0.0.0:8080"
	}

	if chatID := getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q", chatID)
		}
		cfg.TelegramChatID = id
	}

	return cfg, nil
}

// credentialsFromEnv читает учетные данные аккаунта по префиксу переменных
func credentialsFromEnv(getenv func(string) string, prefix, defaultName string) smartapi.Credentials {
	name := getenv(prefix + "_NAME")
	if name == "" {
		name = defaultName
	}

	return smartapi.Credentials{
		Name:       name,
		APIKey:     getenv(prefix + "_API_KEY"),
		ClientID:   getenv(prefix + "_CLIENT_ID"),
		Password:   getenv(prefix + "_PASSWORD"),
		TOTPSecret: getenv(prefix + "_TOTP_SECRET"),
		SecretKey:  getenv(prefix + "_SECRET_KEY"),
	}
}

// followersFromEnv сканирует FOLLOWER_1_*, FOLLOWER_2_*, ... до первого
// отсутствующего API key. Дыры в нумерации завершают скан.
func followersFromEnv(getenv func(string) string) ([]smartapi.Credentials, error) {
	var followers []smartapi.Credentials

	for i := 1; ; i++ {
		prefix := fmt.Sprintf("FOLLOWER_%d", i)
		if getenv(prefix+"_API_KEY") == "" {
			break
		}

		creds := credentialsFromEnv(getenv, prefix, fmt.Sprintf("follower_%d", i))
		if err := creds.Validate(); err != nil {
			return nil, fmt.Errorf("follower %d: %w", i, err)
		}

		followers = append(followers, creds)
	}

	return followers, nil
}

func splitSymbols(v string) []string {
	var symbols []string
	for _, s := range strings.Split(v, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

func envDuration(v string, fallback time.Duration) time.Duration {
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envInt(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
