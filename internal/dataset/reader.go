package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"

	"github.com/eda-agent/backend/pkg/apperr"
)

// ErrStopScan lets a batch callback end the scan early without surfacing an
// error to the caller.
var ErrStopScan = errors.New("stop scan")

// Opener resolves a dataset identifier to a readable file. The filesystem
// store satisfies it.
type Opener interface {
	Open(datasetID string) (*os.File, error)
}

// Batch is one bounded slice of data rows. StartRow is the zero-based index
// of the first data row in the file.
type Batch struct {
	StartRow int64
	Rows     [][]string
}

// Reader iterates a CSV dataset in bounded-memory row batches. Each Scan
// opens a fresh handle, so the sequence is restartable; rows are read through
// encoding/csv, so quoted fields never straddle a batch boundary.
type Reader struct {
	opener    Opener
	chunkRows int
}

func NewReader(opener Opener, chunkRows int) *Reader {
	if chunkRows <= 0 {
		chunkRows = 50000
	}
	return &Reader{opener: opener, chunkRows: chunkRows}
}

// Schema reads the header and a first-batch sample and infers column types
// without scanning the rest of the file.
func (r *Reader) Schema(datasetID string) (*Schema, error) {
	var schema *Schema
	err := r.Scan(context.Background(), datasetID, func(s *Schema, b *Batch) error {
		schema = s
		return ErrStopScan
	})
	if err != nil {
		return nil, err
	}
	return schema, nil
}

// Scan streams the whole file exactly once, in order, calling fn with the
// inferred schema and each batch. The file handle is released on every exit
// path, including callback errors and context cancellation.
func (r *Reader) Scan(ctx context.Context, datasetID string, fn func(*Schema, *Batch) error) error {
	f, err := r.opener.Open(datasetID)
	if err != nil {
		return err
	}
	defer f.Close()

	cr := csv.NewReader(bufio.NewReaderSize(f, 1<<16))
	cr.ReuseRecord = false

	first, err := cr.Read()
	if err == io.EOF {
		return apperr.MalformedInput("dataset %q is empty", datasetID)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindMalformedInput, err, "dataset %q header unreadable", datasetID)
	}

	headers, firstRowIsData := analyzeHeaders(first)

	// First batch doubles as the type-inference sample.
	var schema *Schema
	var rowIndex int64
	batch := &Batch{Rows: make([][]string, 0, r.chunkRows)}
	if firstRowIsData {
		batch.Rows = append(batch.Rows, first)
		rowIndex++
	}

	flush := func() error {
		if schema == nil {
			schema = buildSchema(headers, batch.Rows)
		}
		if len(batch.Rows) == 0 {
			return nil
		}
		if err := fn(schema, batch); err != nil {
			return err
		}
		batch = &Batch{StartRow: rowIndex, Rows: make([][]string, 0, r.chunkRows)}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return apperr.Wrap(apperr.KindMalformedInput, err, "dataset %q row %d unparseable", datasetID, rowIndex)
		}
		if len(record) != len(headers) {
			return apperr.MalformedInput("dataset %q row %d has %d fields, expected %d", datasetID, rowIndex, len(record), len(headers))
		}

		batch.Rows = append(batch.Rows, record)
		rowIndex++

		if len(batch.Rows) >= r.chunkRows {
			if err := flush(); err != nil {
				if errors.Is(err, ErrStopScan) {
					return nil
				}
				return err
			}
		}
	}

	if err := flush(); err != nil {
		if errors.Is(err, ErrStopScan) {
			return nil
		}
		return err
	}

	// Header-only files still need the schema delivered once.
	if rowIndex == 0 {
		if err := fn(schema, &Batch{}); err != nil && !errors.Is(err, ErrStopScan) {
			return err
		}
	}
	return nil
}
