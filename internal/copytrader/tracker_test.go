package copytrader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart_copy/internal/models"
)

func TestTrackerSeed(t *testing.T) {
	tracker := NewTracker()

	added := tracker.Seed([]models.Order{
		{OrderID: "A"},
		{OrderID: "B"},
		{OrderID: ""}, // пустой id пропускается
		{OrderID: "A"},
	})

	assert.Equal(t, 2, added)
	assert.Equal(t, 2, tracker.KnownCount())

	// После seed существующие ордера не считаются новыми
	assert.False(t, tracker.IsNew("A"))
	assert.False(t, tracker.IsNew("B"))
}

func TestTrackerIsNewOncePerID(t *testing.T) {
	tracker := NewTracker()

	assert.True(t, tracker.IsNew("X"))
	assert.False(t, tracker.IsNew("X"))
	assert.False(t, tracker.IsNew("X"))

	assert.True(t, tracker.IsNew("Y"))
	assert.Equal(t, 2, tracker.KnownCount())
}

func TestTrackerEmptyIDNeverNew(t *testing.T) {
	tracker := NewTracker()

	assert.False(t, tracker.IsNew(""))
	assert.False(t, tracker.IsNew(""))
	assert.Equal(t, 0, tracker.KnownCount())
}

func TestTrackerStatistics(t *testing.T) {
	tracker := NewTracker()

	assert.Equal(t, models.Statistics{}, tracker.Statistics(), "empty tracker has zero rate, not NaN")

	tracker.RecordCopy(models.CopyRecord{MasterOrderID: "1", Follower: "f1", Success: true})
	tracker.RecordCopy(models.CopyRecord{MasterOrderID: "1", Follower: "f2", Success: true})
	tracker.RecordCopy(models.CopyRecord{MasterOrderID: "2", Follower: "f1", Success: true})
	tracker.RecordCopy(models.CopyRecord{MasterOrderID: "2", Follower: "f2", Success: false, Error: "boom"})

	stats := tracker.Statistics()
	assert.Equal(t, 4, stats.TotalCopies)
	assert.Equal(t, 3, stats.Successful)
	assert.Equal(t, 1, stats.Failed)
	assert.InDelta(t, 75.0, stats.SuccessRate, 0.001)

	assert.Len(t, tracker.FailedRecords(), 1)
	assert.Equal(t, "boom", tracker.FailedRecords()[0].Error)
}

func TestTrackerSaveRecords(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordCopy(models.CopyRecord{MasterOrderID: "1", Symbol: "SBIN-EQ", Follower: "f1", Success: true})
	tracker.RecordCopy(models.CopyRecord{MasterOrderID: "1", Symbol: "SBIN-EQ", Follower: "f2", Success: false})

	path := filepath.Join(t.TempDir(), "logs", "copy_trading_test.json")
	require.NoError(t, tracker.SaveRecords(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var log models.SessionLog
	require.NoError(t, json.Unmarshal(data, &log))

	assert.Len(t, log.Records, 2)
	assert.Equal(t, 2, log.Statistics.TotalCopies)
	assert.Equal(t, 1, log.Statistics.Successful)
	assert.InDelta(t, 50.0, log.Statistics.SuccessRate, 0.001)
}
