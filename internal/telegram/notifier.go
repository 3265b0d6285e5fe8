package telegram

import (
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"smart_copy/internal/copytrader"
	"smart_copy/internal/models"
)

// Notifier шлет уведомления о событиях копирования в Telegram.
// Все отправки best-effort: ошибка доставки логируется и не влияет
// на торговый цикл.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// New создает Notifier и проверяет токен бота
func New(token string, chatID int64, logger *slog.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	logger.Info("✅ Bot authorized", slog.String("username", bot.Self.UserName))

	return &Notifier{
		bot:    bot,
		chatID: chatID,
		logger: logger,
	}, nil
}

// Notify отправляет текстовое сообщение
func (n *Notifier) Notify(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Warn("⚠️  Telegram notification failed", slog.Any("error", err))
	}
}

// NotifyOrder сообщает о новом ордере на master-аккаунте
func (n *Notifier) NotifyOrder(order models.Order) {
	var b strings.Builder

	fmt.Fprintf(&b, "🆕 Новый ордер\n\n")
	fmt.Fprintf(&b, "📊 %s %s\n", order.TransactionType, order.TradingSymbol)
	fmt.Fprintf(&b, "Количество: %d\n", int(order.Quantity))
	fmt.Fprintf(&b, "Цена: %.2f\n", float64(order.Price))
	fmt.Fprintf(&b, "Тип: %s\n", order.OrderType)
	fmt.Fprintf(&b, "Статус: %s", order.Status)

	n.Notify(b.String())
}

// NotifyResult сообщает об итогах копирования одного ордера
func (n *Notifier) NotifyResult(order models.Order, result *copytrader.ExecutionResult) {
	if result.Skipped {
		n.Notify(fmt.Sprintf("⏭️ Ордер %s (%s) пропущен: %s",
			order.OrderID, order.TradingSymbol, result.Reason))
		return
	}

	var b strings.Builder

	icon := "✅"
	if result.FailedCount > 0 {
		icon = "⚠️"
	}
	if result.SuccessCount == 0 {
		icon = "❌"
	}

	fmt.Fprintf(&b, "%s Копирование %s %s\n\n", icon, order.TransactionType, order.TradingSymbol)
	fmt.Fprintf(&b, "Успешно: %d/%d\n", result.SuccessCount, result.TotalCount)

	for _, res := range result.Results {
		if res.Success {
			fmt.Fprintf(&b, "  ✅ %s → %s\n", res.Follower, res.OrderID)
		} else {
			fmt.Fprintf(&b, "  ❌ %s: %v\n", res.Follower, res.Err)
		}
	}

	n.Notify(b.String())
}

// NotifyStatistics отправляет итоги сессии
func (n *Notifier) NotifyStatistics(stats models.Statistics) {
	n.Notify(fmt.Sprintf("📊 Итоги сессии\n\nКопирований: %d\nУспешно: %d\nОшибок: %d\nSuccess rate: %.1f%%",
		stats.TotalCopies, stats.Successful, stats.Failed, stats.SuccessRate))
}
