package sqlite

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eda-agent/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.InitSchema())
	return client
}

func TestUpsertAndGetDataset(t *testing.T) {
	client := newTestClient(t)

	ds := &models.Dataset{
		ID:         "tx.csv",
		Filename:   "tx.csv",
		ByteSize:   1234,
		UploadedAt: time.Now(),
	}
	require.NoError(t, client.UpsertDataset(ds))
	require.NoError(t, client.MarkProfiled("tx.csv", 500))

	got, err := client.GetDataset("tx.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.RowCount)
	require.NotNil(t, got.ProfiledAt)

	// A re-upload resets the profiled state.
	require.NoError(t, client.UpsertDataset(ds))
	got, err = client.GetDataset("tx.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.RowCount)
	assert.Nil(t, got.ProfiledAt)
}

func TestAskHistoryNewestFirst(t *testing.T) {
	client := newTestClient(t)

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		record := &models.AskRecord{
			ID:         fmt.Sprintf("ask-%d", i),
			DatasetID:  "tx.csv",
			Question:   fmt.Sprintf("question %d", i),
			IntentKind: "metric",
			Answer:     "42",
			LatencyMS:  10,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, client.InsertAskRecord(record))
	}

	records, err := client.GetAskHistory("tx.csv", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ask-2", records[0].ID)
	assert.Equal(t, "ask-1", records[1].ID)

	records, err = client.GetAskHistory("other.csv", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestProfileRunInsert(t *testing.T) {
	client := newTestClient(t)

	require.NoError(t, client.UpsertDataset(&models.Dataset{
		ID:         "tx.csv",
		Filename:   "tx.csv",
		ByteSize:   10,
		UploadedAt: time.Now(),
	}))

	run := &models.ProfileRun{
		DatasetID:  "tx.csv",
		Rows:       1000,
		Columns:    5,
		Warnings:   1,
		DurationMS: 37,
		CreatedAt:  time.Now(),
	}
	assert.NoError(t, client.InsertProfileRun(run))
}
