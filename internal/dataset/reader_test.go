package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eda-agent/backend/pkg/apperr"
)

type dirOpener struct {
	dir string
}

func (d dirOpener) Open(datasetID string) (*os.File, error) {
	f, err := os.Open(filepath.Join(d.dir, datasetID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("dataset %q not found", datasetID)
		}
		return nil, err
	}
	return f, nil
}

func writeCSV(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestScanBatchSizes(t *testing.T) {
	dir := t.TempDir()

	var sb strings.Builder
	sb.WriteString("id,value\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&sb, "%d,%d\n", i, i*2)
	}
	writeCSV(t, dir, "data.csv", sb.String())

	reader := NewReader(dirOpener{dir}, 10)

	var starts []int64
	var sizes []int
	err := reader.Scan(context.Background(), "data.csv", func(s *Schema, b *Batch) error {
		starts = append(starts, b.StartRow)
		sizes = append(sizes, len(b.Rows))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 10, 20}, starts)
	assert.Equal(t, []int{10, 10, 5}, sizes)
}

func TestScanRestartable(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "data.csv", "a,b\n1,2\n3,4\n5,6\n")

	reader := NewReader(dirOpener{dir}, 2)

	count := func() int64 {
		var rows int64
		err := reader.Scan(context.Background(), "data.csv", func(s *Schema, b *Batch) error {
			rows += int64(len(b.Rows))
			return nil
		})
		require.NoError(t, err)
		return rows
	}

	assert.Equal(t, int64(3), count())
	assert.Equal(t, int64(3), count())
}

func TestScanPreservesOrder(t *testing.T) {
	dir := t.TempDir()

	var sb strings.Builder
	sb.WriteString("id\n")
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&sb, "%d\n", i)
	}
	writeCSV(t, dir, "data.csv", sb.String())

	reader := NewReader(dirOpener{dir}, 5)

	var got []string
	err := reader.Scan(context.Background(), "data.csv", func(s *Schema, b *Batch) error {
		for _, row := range b.Rows {
			got = append(got, row[0])
		}
		return nil
	})
	require.NoError(t, err)

	for i, v := range got {
		assert.Equal(t, fmt.Sprintf("%d", i), v)
	}
}

func TestScanNotFound(t *testing.T) {
	reader := NewReader(dirOpener{t.TempDir()}, 10)

	err := reader.Scan(context.Background(), "missing.csv", func(s *Schema, b *Batch) error {
		return nil
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestScanRaggedRow(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "bad.csv", "a,b,c\n1,2,3\n4,5\n")

	reader := NewReader(dirOpener{dir}, 10)

	err := reader.Scan(context.Background(), "bad.csv", func(s *Schema, b *Batch) error {
		return nil
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindMalformedInput))
}

func TestScanEmptyFile(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "empty.csv", "")

	reader := NewReader(dirOpener{dir}, 10)

	err := reader.Scan(context.Background(), "empty.csv", func(s *Schema, b *Batch) error {
		return nil
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindMalformedInput))
}

func TestScanHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "header.csv", "a,b,c\n")

	reader := NewReader(dirOpener{dir}, 10)

	calls := 0
	err := reader.Scan(context.Background(), "header.csv", func(s *Schema, b *Batch) error {
		calls++
		assert.Len(t, s.Columns, 3)
		assert.Empty(t, b.Rows)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestScanHeaderlessFile(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "raw.csv", "1,2\n3,4\n")

	reader := NewReader(dirOpener{dir}, 10)

	var rows int64
	var schema *Schema
	err := reader.Scan(context.Background(), "raw.csv", func(s *Schema, b *Batch) error {
		schema = s
		rows += int64(len(b.Rows))
		return nil
	})
	require.NoError(t, err)

	// The first row is data, not a header, and must not be dropped.
	assert.Equal(t, int64(2), rows)
	require.Len(t, schema.Columns, 2)
	assert.Equal(t, "column_1", schema.Columns[0].Name)
	assert.Equal(t, "column_2", schema.Columns[1].Name)
	assert.Equal(t, TypeNumeric, schema.Columns[0].Type)
}

func TestScanCancelled(t *testing.T) {
	dir := t.TempDir()

	var sb strings.Builder
	sb.WriteString("id\n")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&sb, "%d\n", i)
	}
	writeCSV(t, dir, "data.csv", sb.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := NewReader(dirOpener{dir}, 10)
	err := reader.Scan(ctx, "data.csv", func(s *Schema, b *Batch) error {
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSchemaInference(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "mixed.csv",
		"Amount,When,Merchant\n"+
			"12.5,2024-01-01,acme\n"+
			"99,2024-01-02,globex\n"+
			"3.25,2024-01-03,acme\n")

	reader := NewReader(dirOpener{dir}, 10)
	schema, err := reader.Schema("mixed.csv")
	require.NoError(t, err)

	require.Len(t, schema.Columns, 3)
	assert.Equal(t, TypeNumeric, schema.Columns[0].Type)
	assert.Equal(t, TypeDatetime, schema.Columns[1].Type)
	assert.Equal(t, TypeCategorical, schema.Columns[2].Type)
	assert.NotEmpty(t, schema.Hash)
}

func TestScanEarlyStop(t *testing.T) {
	dir := t.TempDir()

	var sb strings.Builder
	sb.WriteString("id\n")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&sb, "%d\n", i)
	}
	writeCSV(t, dir, "data.csv", sb.String())

	reader := NewReader(dirOpener{dir}, 10)

	calls := 0
	err := reader.Scan(context.Background(), "data.csv", func(s *Schema, b *Batch) error {
		calls++
		return ErrStopScan
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
