package copytrader

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	rateWindow       = time.Minute
	rateWindowBuffer = time.Second

	baseBackoff = time.Minute
	maxBackoff  = 5 * time.Minute
)

// Limiter - кооперативный клиентский rate limit поверх лимитов брокера.
//
// Скользящее 60-секундное окно: когда счетчик вызовов упирается в потолок,
// Acquire блокируется до конца окна плюс секунда буфера и сбрасывает окно.
// Это best-effort защита, не гарантия: если брокер все равно ответил
// throttling'ом, RecordThrottle переводит limiter в экспоненциальный backoff
// (60s, 120s, 240s, cap 300s), и все опросы до backoffUntil отсекаются
// без API-вызова. Любой успешный вызов сбрасывает backoff.
//
// Состояние окна принадлежит одному монитору и не разделяется между
// аккаунтами.
type Limiter struct {
	mu sync.Mutex

	ceiling     int
	windowStart time.Time
	calls       int

	consecutiveThrottles int
	backoffUntil         time.Time

	logger *slog.Logger

	// Подменяются в тестах
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewLimiter создает limiter с потолком ceiling вызовов в минуту
func NewLimiter(ceiling int, logger *slog.Logger) *Limiter {
	return &Limiter{
		ceiling: ceiling,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Acquire выдает слот на один исходящий вызов.
// Блокируется (прерываемо через ctx), если окно исчерпано.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()

	now := l.now()

	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= rateWindow {
		l.windowStart = now
		l.calls = 0
	}

	if l.calls >= l.ceiling {
		wait := rateWindow - now.Sub(l.windowStart) + rateWindowBuffer

		l.logger.Warn("⚠️  Rate limit reached, waiting for window reset",
			slog.Int("calls", l.calls),
			slog.Int("ceiling", l.ceiling),
			slog.Duration("wait", wait))

		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}

		l.mu.Lock()
		l.windowStart = l.now()
		l.calls = 0
	}

	l.calls++
	l.mu.Unlock()

	return nil
}

// InBackoff сообщает, действует ли сейчас backoff, и сколько осталось ждать
func (l *Limiter) InBackoff() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.backoffUntil.IsZero() {
		return false, 0
	}

	remaining := l.backoffUntil.Sub(l.now())
	if remaining <= 0 {
		return false, 0
	}

	return true, remaining
}

// RecordThrottle регистрирует серверный throttle и возвращает длительность
// назначенного backoff: min(60 * 2^(n-1), 300) секунд.
func (l *Limiter) RecordThrottle() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutiveThrottles++

	backoff := baseBackoff << (l.consecutiveThrottles - 1)
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}

	now := l.now()
	l.backoffUntil = now.Add(backoff)

	// Окно тоже сбрасываем: после throttle старый счетчик бессмысленен
	l.windowStart = now
	l.calls = 0

	return backoff
}

// RecordSuccess сбрасывает backoff после успешного вызова
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutiveThrottles = 0
	l.backoffUntil = time.Time{}
}

// Calls возвращает счетчик вызовов текущего окна (для статусных логов)
func (l *Limiter) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.calls
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
