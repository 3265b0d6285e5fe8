package smartapi

import (
	"errors"
	"fmt"
	"strings"
)

// AuthError - невалидные credentials или отклоненный логин.
// Фатальна для аккаунта, не ретраится.
type AuthError struct {
	ClientID string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failed for %s: %s", e.ClientID, e.Message)
}

// ThrottleError - серверный rate limit ("Access denied because of exceeding
// access rate"). При инициализации сессии ретраится с линейным backoff,
// в polling-цикле переводит монитор в экспоненциальный backoff.
type ThrottleError struct {
	Message string
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("rate limited: %s", e.Message)
}

// FetchError - временная ошибка чтения (сеть, парсинг, status=false без
// throttle-признаков). Пропускаем тик, цикл продолжается.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PlacementError - ордер отклонен брокером при копировании.
// Логируется как failed CopyRecord, другие followers не затрагивает.
type PlacementError struct {
	Message   string
	ErrorCode string
}

func (e *PlacementError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("order rejected (%s): %s", e.ErrorCode, e.Message)
	}

	return fmt.Sprintf("order rejected: %s", e.Message)
}

// IsThrottle сообщает, является ли ошибка серверным rate limit
func IsThrottle(err error) bool {
	var throttle *ThrottleError
	return errors.As(err, &throttle)
}

// IsAuth сообщает, является ли ошибка фатальной ошибкой аутентификации
func IsAuth(err error) bool {
	var auth *AuthError
	return errors.As(err, &auth)
}

// throttledMessage распознает rate-limit ответы SmartAPI по тексту сообщения.
// Брокер не отдает стабильный errorcode для throttling, поэтому матчим текст.
func throttledMessage(msg string) bool {
	msg = strings.ToLower(msg)

	return strings.Contains(msg, "access rate") || strings.Contains(msg, "access denied")
}
