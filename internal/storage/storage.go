package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"smart_copy/internal/models"
)

// Storage управляет базой данных
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

// New создает новый экземпляр Storage
func New(dbPath string, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	storage := &Storage{
		db:     db,
		logger: logger,
	}

	if err := storage.init(); err != nil {
		return nil, err
	}

	return storage, nil
}

// init инициализирует таблицы БД
func (s *Storage) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS copy_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			master_order_id TEXT NOT NULL,
			symbol TEXT,
			transaction_type TEXT,
			quantity INTEGER,
			price REAL,
			follower TEXT,
			success INTEGER DEFAULT 0,
			follower_order_id TEXT,
			error TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_session_id ON copy_records(session_id);
		CREATE INDEX IF NOT EXISTS idx_master_order_id ON copy_records(master_order_id);

		CREATE TABLE IF NOT EXISTS activity_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			level TEXT,
			action TEXT,
			message TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	s.logger.Info("✅ Database initialized")

	return nil
}

// AddCopyRecord сохраняет запись о попытке копирования
func (s *Storage) AddCopyRecord(ctx context.Context, sessionID string, rec models.CopyRecord) error {
	successInt := 0
	if rec.Success {
		successInt = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO copy_records (session_id, master_order_id, symbol, transaction_type,
		                          quantity, price, follower, success, follower_order_id, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, rec.MasterOrderID, rec.Symbol, rec.TransactionType,
		rec.Quantity, rec.Price, rec.Follower, successInt, rec.FollowerOrderID, rec.Error, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to add copy record: %w", err)
	}

	return nil
}

// AddLog пишет событие в журнал активности
func (s *Storage) AddLog(ctx context.Context, sessionID, level, action, message string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (session_id, level, action, message)
		VALUES (?, ?, ?, ?)
	`, sessionID, level, action, message)
	if err != nil {
		return fmt.Errorf("failed to add log entry: %w", err)
	}

	return nil
}

// SessionRecords возвращает все записи копирования одной сессии
func (s *Storage) SessionRecords(ctx context.Context, sessionID string) ([]models.CopyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT master_order_id, symbol, COALESCE(transaction_type, ''),
		       COALESCE(quantity, 0), COALESCE(price, 0),
		       COALESCE(follower, ''), COALESCE(success, 0),
		       COALESCE(follower_order_id, ''), COALESCE(error, ''), created_at
		FROM copy_records
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.CopyRecord
	for rows.Next() {
		var rec models.CopyRecord
		var successInt int
		var createdAt time.Time

		err := rows.Scan(&rec.MasterOrderID, &rec.Symbol, &rec.TransactionType,
			&rec.Quantity, &rec.Price, &rec.Follower, &successInt,
			&rec.FollowerOrderID, &rec.Error, &createdAt)
		if err != nil {
			continue
		}

		rec.Success = successInt == 1
		rec.Timestamp = createdAt
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Close закрывает соединение с БД
func (s *Storage) Close() error {
	return s.db.Close()
}
