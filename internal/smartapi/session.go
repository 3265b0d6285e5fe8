package smartapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session - результат успешного generateSession.
// Один активный handle на аккаунт; повторная инициализация возвращает его же.
type Session struct {
	JWTToken     string
	RefreshToken string
	FeedToken    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Initialized  bool
}

// tokenExpiry читает exp claim из JWT брокера. Токен чужой, подпись не
// проверяем - нам нужен только срок жизни сессии. Нулевое время, если
// токен не распарсился.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}

	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}

	if claims.ExpiresAt == nil {
		return time.Time{}
	}

	return claims.ExpiresAt.Time
}

// Session возвращает текущий session handle (nil до логина)
func (c *Client) Session() *Session {
	return c.session
}

// Initialized сообщает, есть ли у клиента активная сессия
func (c *Client) Initialized() bool {
	return c.session != nil && c.session.Initialized
}

// InitializeSession логинится с ретраями.
// Линейный backoff baseDelay*attempt только на throttle-ошибках; любая другая
// ошибка фатальна сразу. Повторный вызов на живой сессии - no-op.
func (c *Client) InitializeSession(ctx context.Context, maxRetries int, baseDelay time.Duration) (*Session, error) {
	if c.Initialized() {
		c.logger.Info("♻️  Session already initialized",
			slog.String("account", c.creds.Name),
			slog.Time("created_at", c.session.CreatedAt))

		return c.session, nil
	}

	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		c.logger.Info("🔄 Initializing session",
			slog.String("account", c.creds.Name),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxRetries))

		session, err := c.Login(ctx)
		if err == nil {
			return session, nil
		}

		if !IsThrottle(err) {
			return nil, err
		}

		lastErr = err

		if attempt < maxRetries {
			wait := baseDelay * time.Duration(attempt)
			c.logger.Warn("⚠️  Rate limit during login, waiting before retry",
				slog.String("account", c.creds.Name),
				slog.Duration("wait", wait))

			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("session init for %s failed after %d attempts: %w", c.creds.Name, maxRetries, lastErr)
}

// sleepCtx - прерываемый sleep
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
