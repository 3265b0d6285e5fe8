package copytrader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"smart_copy/internal/smartapi"
)

const (
	defaultInitDelay      = 5 * time.Second
	defaultMaxRetries     = 3
	defaultBaseRetryDelay = time.Minute
)

// AccountSession - залогиненный аккаунт: клиент плюс его сессия
type AccountSession struct {
	Name   string
	Client *smartapi.Client
}

// ClientManager управляет сессиями master-аккаунта и followers.
// Инициализация ступенчатая: между аккаунтами выдерживается пауза,
// чтобы не словить throttle на login endpoint'е.
type ClientManager struct {
	logger *slog.Logger

	master    *AccountSession
	followers []*AccountSession

	initDelay      time.Duration
	maxRetries     int
	baseRetryDelay time.Duration

	newClient func(smartapi.Credentials) *smartapi.Client
	sleep     func(context.Context, time.Duration) error
}

// NewClientManager создает менеджер с дефолтными интервалами инициализации
func NewClientManager(logger *slog.Logger) *ClientManager {
	return &ClientManager{
		logger:         logger,
		initDelay:      defaultInitDelay,
		maxRetries:     defaultMaxRetries,
		baseRetryDelay: defaultBaseRetryDelay,
		newClient: func(creds smartapi.Credentials) *smartapi.Client {
			return smartapi.New(creds, logger)
		},
		sleep: sleepCtx,
	}
}

// SetInitDelay переопределяет паузу между инициализацией аккаунтов
func (m *ClientManager) SetInitDelay(d time.Duration) {
	m.initDelay = d
}

// Initialize логинит master и всех followers.
// Ошибка master'а фатальна. Follower, не прошедший инициализацию,
// пропускается с warning'ом: копирование продолжится на остальных.
func (m *ClientManager) Initialize(ctx context.Context, master smartapi.Credentials, followers []smartapi.Credentials) error {
	m.logger.Info("🔐 Initializing account sessions",
		slog.Int("followers", len(followers)))

	masterClient := m.newClient(master)
	if _, err := masterClient.InitializeSession(ctx, m.maxRetries, m.baseRetryDelay); err != nil {
		return fmt.Errorf("master session %q: %w", master.Name, err)
	}

	m.master = &AccountSession{Name: master.Name, Client: masterClient}
	m.logger.Info("✅ Master session ready", slog.String("account", master.Name))

	for _, creds := range followers {
		if err := m.sleep(ctx, m.initDelay); err != nil {
			return err
		}

		client := m.newClient(creds)
		if _, err := client.InitializeSession(ctx, m.maxRetries, m.baseRetryDelay); err != nil {
			m.logger.Warn("⚠️  Follower session failed, skipping account",
				slog.String("account", creds.Name),
				slog.Any("error", err))
			continue
		}

		m.followers = append(m.followers, &AccountSession{Name: creds.Name, Client: client})
		m.logger.Info("✅ Follower session ready", slog.String("account", creds.Name))
	}

	m.logger.Info("🔐 Session initialization complete",
		slog.Int("active_followers", len(m.followers)),
		slog.Int("configured_followers", len(followers)))

	return nil
}

// Master возвращает сессию master-аккаунта
func (m *ClientManager) Master() *AccountSession {
	return m.master
}

// ActiveFollowers возвращает followers с рабочими сессиями
func (m *ClientManager) ActiveFollowers() []*AccountSession {
	return m.followers
}

// VerifySessions проверяет все сессии запросом профиля.
// Возвращает ошибку, если хотя бы одна сессия не отвечает.
func (m *ClientManager) VerifySessions(ctx context.Context) error {
	if m.master == nil {
		return fmt.Errorf("master session is not initialized")
	}

	accounts := append([]*AccountSession{m.master}, m.followers...)

	var failed int
	for _, acc := range accounts {
		profile, err := acc.Client.Profile(ctx)
		if err != nil {
			m.logger.Error("❌ Session verification failed",
				slog.String("account", acc.Name),
				slog.Any("error", err))
			failed++
			continue
		}

		m.logger.Info("✅ Session verified",
			slog.String("account", acc.Name),
			slog.String("client_id", profile.ClientCode),
			slog.String("holder", profile.Name))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sessions failed verification", failed, len(accounts))
	}

	return nil
}

// Logout завершает все сессии. Ошибки логируются, но не прерывают обход.
func (m *ClientManager) Logout(ctx context.Context) {
	accounts := m.followers
	if m.master != nil {
		accounts = append([]*AccountSession{m.master}, accounts...)
	}

	for _, acc := range accounts {
		if err := acc.Client.Logout(ctx); err != nil {
			m.logger.Warn("⚠️  Logout failed", slog.String("account", acc.Name), slog.Any("error", err))
			continue
		}
		m.logger.Info("👋 Logged out", slog.String("account", acc.Name))
	}
}
