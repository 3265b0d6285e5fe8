package copytrader

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"smart_copy/internal/models"
)

// Tracker помнит все orderid, которые мы уже видели у мастера, и ведет
// append-only журнал попыток копирования.
//
// Множество known растет монотонно в рамках сессии и никогда не сжимается:
// orderid, однажды добавленный, больше никогда не считается новым.
type Tracker struct {
	mu      sync.Mutex
	known   map[string]struct{}
	records []models.CopyRecord
	failed  []models.CopyRecord
}

// NewTracker создает пустой tracker
func NewTracker() *Tracker {
	return &Tracker{
		known: make(map[string]struct{}),
	}
}

// Seed загружает уже существующие ордера, чтобы не считать их новыми.
// Возвращает число добавленных id.
func (t *Tracker) Seed(orders []models.Order) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	added := 0
	for _, order := range orders {
		if order.OrderID == "" {
			continue
		}

		if _, ok := t.known[order.OrderID]; !ok {
			t.known[order.OrderID] = struct{}{}
			added++
		}
	}

	return added
}

// IsNew сообщает, видим ли мы этот orderid впервые, и запоминает его.
// true возвращается ровно один раз на id. Пустой id никогда не новый.
func (t *Tracker) IsNew(orderID string) bool {
	if orderID == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.known[orderID]; ok {
		return false
	}

	t.known[orderID] = struct{}{}

	return true
}

// KnownCount возвращает размер множества известных ордеров
func (t *Tracker) KnownCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.known)
}

// RecordCopy добавляет запись о попытке копирования
func (t *Tracker) RecordCopy(record models.CopyRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = append(t.records, record)

	if !record.Success {
		t.failed = append(t.failed, record)
	}
}

// Records возвращает копию журнала попыток
func (t *Tracker) Records() []models.CopyRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.CopyRecord, len(t.records))
	copy(out, t.records)

	return out
}

// FailedRecords возвращает только неудачные попытки
func (t *Tracker) FailedRecords() []models.CopyRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.CopyRecord, len(t.failed))
	copy(out, t.failed)

	return out
}

// Statistics считает итоги сессии
func (t *Tracker) Statistics() models.Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := models.Statistics{
		TotalCopies: len(t.records),
		Failed:      len(t.failed),
	}
	stats.Successful = stats.TotalCopies - stats.Failed

	if stats.TotalCopies > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.TotalCopies) * 100
	}

	return stats
}

// SaveRecords пишет журнал сессии в JSON файл (формат logs/copy_trading_*.json)
func (t *Tracker) SaveRecords(path string) error {
	log := models.SessionLog{
		Records:    t.Records(),
		Statistics: t.Statistics(),
	}

	data, err := log.MarshalIndent()
	if err != nil {
		return fmt.Errorf("failed to marshal session log: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save records: %w", err)
	}

	return nil
}
