package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart_copy/internal/models"
)

func testStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestStorageCopyRecords(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)

	require.NoError(t, s.AddCopyRecord(ctx, "session-1", models.CopyRecord{
		Timestamp:       now,
		MasterOrderID:   "1001",
		Symbol:          "SBIN-EQ",
		TransactionType: "BUY",
		Quantity:        10,
		Price:           750.5,
		Follower:        "follower_1",
		Success:         true,
		FollowerOrderID: "2001",
	}))
	require.NoError(t, s.AddCopyRecord(ctx, "session-1", models.CopyRecord{
		Timestamp:     now,
		MasterOrderID: "1001",
		Symbol:        "SBIN-EQ",
		Follower:      "follower_2",
		Success:       false,
		Error:         "insufficient funds",
	}))
	require.NoError(t, s.AddCopyRecord(ctx, "session-2", models.CopyRecord{
		Timestamp:     now,
		MasterOrderID: "9999",
		Symbol:        "INFY-EQ",
		Follower:      "follower_1",
		Success:       true,
	}))

	records, err := s.SessionRecords(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, records, 2, "records from other sessions are not returned")

	assert.Equal(t, "1001", records[0].MasterOrderID)
	assert.True(t, records[0].Success)
	assert.Equal(t, "2001", records[0].FollowerOrderID)
	assert.Equal(t, 750.5, records[0].Price)

	assert.False(t, records[1].Success)
	assert.Equal(t, "insufficient funds", records[1].Error)
}

func TestStorageEmptySession(t *testing.T) {
	s := testStorage(t)

	records, err := s.SessionRecords(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStorageActivityLog(t *testing.T) {
	s := testStorage(t)

	assert.NoError(t, s.AddLog(context.Background(), "session-1", "info", "new_order", "order 1001 detected"))
}

func TestStorageAddLogAfterClose(t *testing.T) {
	s := testStorage(t)
	require.NoError(t, s.Close())

	// Запись в закрытую БД возвращает ошибку, которую caller обязан залогировать
	err := s.AddLog(context.Background(), "session-1", "info", "new_order", "late entry")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to add log entry")
}
