package profile

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eda-agent/backend/internal/dataset"
	"github.com/eda-agent/backend/pkg/logger"
)

type AggregatorConfig struct {
	SketchEpsilon float64
	TopK          int
	LabelColumn   string
	// TypeTolerance is the fraction of unparseable non-null values a numeric
	// or datetime column may carry before it is downgraded to categorical.
	TypeTolerance float64
	// ProgressBatches controls how often the progress callback fires.
	ProgressBatches int
}

// Aggregator consumes the chunked reader's batch sequence exactly once and
// produces a DatasetProfile.
type Aggregator struct {
	cfg    AggregatorConfig
	reader *dataset.Reader
}

func NewAggregator(reader *dataset.Reader, cfg AggregatorConfig) *Aggregator {
	if cfg.SketchEpsilon <= 0 {
		cfg.SketchEpsilon = 0.01
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 20
	}
	if cfg.TypeTolerance <= 0 {
		cfg.TypeTolerance = 0.02
	}
	if cfg.ProgressBatches <= 0 {
		cfg.ProgressBatches = 2
	}
	return &Aggregator{cfg: cfg, reader: reader}
}

// columnAcc is the running state for one column. Mean and variance follow
// Welford's update, so the variance accumulator cannot go negative the way a
// naive sum-of-squares difference can on skewed data.
type columnAcc struct {
	name string
	typ  dataset.ColumnType

	count     int64
	nullCount int64

	mean float64
	m2   float64
	min  float64
	max  float64

	sketch *QuantileSketch
	topk   *TopKTable

	minTime time.Time
	maxTime time.Time

	parseFailures int64
	downgraded    bool
	downgradeSeen int64
}

func (a *Aggregator) newAcc(col dataset.Column) *columnAcc {
	acc := &columnAcc{
		name: col.Name,
		typ:  col.Type,
		min:  math.Inf(1),
		max:  math.Inf(-1),
		topk: NewTopKTable(a.cfg.TopK),
	}
	if col.Type == dataset.TypeNumeric {
		acc.sketch = NewQuantileSketch(a.cfg.SketchEpsilon)
	}
	return acc
}

func (acc *columnAcc) observeNumeric(v float64) {
	acc.count++
	delta := v - acc.mean
	acc.mean += delta / float64(acc.count)
	acc.m2 += delta * (v - acc.mean)

	if v < acc.min {
		acc.min = v
	}
	if v > acc.max {
		acc.max = v
	}
	acc.sketch.Insert(v)
}

func (acc *columnAcc) observeDatetime(t time.Time) {
	acc.count++
	if acc.count == 1 || t.Before(acc.minTime) {
		acc.minTime = t
	}
	if acc.count == 1 || t.After(acc.maxTime) {
		acc.maxTime = t
	}
}

func (acc *columnAcc) observeCategorical(v string) {
	acc.count++
	acc.topk.Add(v)
}

// downgrade flips a numeric or datetime column to categorical after too many
// type contradictions. Every non-null value seen so far stays in the count,
// including the unparseable ones, so count plus null count still adds up to
// rows processed. Value statistics restart from the downgrade point; the
// attached warning says so.
func (acc *columnAcc) downgrade() {
	acc.typ = dataset.TypeCategorical
	acc.downgraded = true
	acc.downgradeSeen = acc.count + acc.parseFailures
	acc.count = acc.downgradeSeen
	acc.mean = 0
	acc.m2 = 0
	acc.min = math.Inf(1)
	acc.max = math.Inf(-1)
	acc.sketch = nil
}

// Run performs the full streaming pass. Only reader I/O and parse-structure
// errors abort; per-column type contradictions downgrade the column and are
// reported as profile warnings.
func (a *Aggregator) Run(ctx context.Context, datasetID string, byteSize int64, onProgress func(Progress)) (*DatasetProfile, error) {
	start := time.Now()

	var schema *dataset.Schema
	var accs []*columnAcc
	var labelCounts map[string]int64
	labelIdx := -1

	var rows int64
	var batches int

	err := a.reader.Scan(ctx, datasetID, func(s *dataset.Schema, batch *dataset.Batch) error {
		if accs == nil {
			schema = s
			accs = make([]*columnAcc, len(s.Columns))
			for i, col := range s.Columns {
				accs[i] = a.newAcc(col)
			}
			if a.cfg.LabelColumn != "" {
				if i, ok := s.Index(a.cfg.LabelColumn); ok {
					labelIdx = i
					labelCounts = make(map[string]int64)
				}
			}
		}

		for _, row := range batch.Rows {
			for i, raw := range row {
				a.observe(accs[i], raw)
			}
			if labelIdx >= 0 {
				if v := normalizeLabel(row[labelIdx]); v != "" {
					labelCounts[v]++
				}
			}
		}

		rows += int64(len(batch.Rows))
		batches++
		if onProgress != nil && batches%a.cfg.ProgressBatches == 0 {
			onProgress(Progress{Dataset: datasetID, RowsProcessed: rows, Batches: batches})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	prof := &DatasetProfile{
		Dataset:     datasetID,
		RowCount:    rows,
		ByteSize:    byteSize,
		GeneratedAt: time.Now().UTC(),
		SchemaHash:  schema.Hash,
		Columns:     make(map[string]*ColumnStat, len(accs)),
	}

	for _, acc := range accs {
		prof.ColumnOrder = append(prof.ColumnOrder, acc.name)
		prof.Columns[acc.name] = acc.finalize()
		if acc.downgraded {
			prof.Warnings = append(prof.Warnings,
				fmt.Sprintf("column %s downgraded to categorical after %d of %d values contradicted type %s; value statistics restart from the downgrade point",
					acc.name, acc.parseFailures, acc.downgradeSeen, schemaType(schema, acc.name)))
		}
	}

	if labelIdx >= 0 {
		prof.ClassBalance = buildClassBalance(a.cfg.LabelColumn, labelCounts)
	}

	if onProgress != nil {
		onProgress(Progress{Dataset: datasetID, RowsProcessed: rows, Batches: batches, Done: true})
	}

	logger.Info("Aggregation pass finished",
		zap.String("dataset", datasetID),
		zap.Int64("rows", rows),
		zap.Int("columns", len(accs)),
		zap.Int("warnings", len(prof.Warnings)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return prof, nil
}

func (a *Aggregator) observe(acc *columnAcc, raw string) {
	v := normalizeValue(raw)
	if v == "" {
		acc.nullCount++
		return
	}

	switch acc.typ {
	case dataset.TypeNumeric:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			acc.parseFailures++
			a.maybeDowngrade(acc)
			return
		}
		acc.observeNumeric(f)

	case dataset.TypeDatetime:
		t, ok := dataset.ParseDatetime(v)
		if !ok {
			acc.parseFailures++
			a.maybeDowngrade(acc)
			return
		}
		acc.observeDatetime(t)

	default:
		acc.observeCategorical(v)
	}
}

func (a *Aggregator) maybeDowngrade(acc *columnAcc) {
	seen := acc.count + acc.parseFailures
	if seen < 50 {
		return
	}
	if float64(acc.parseFailures)/float64(seen) > a.cfg.TypeTolerance {
		logger.Warn("Column type contradicted past tolerance, downgrading",
			zap.String("column", acc.name),
			zap.Int64("failures", acc.parseFailures),
			zap.Int64("seen", seen),
		)
		acc.downgrade()
	}
}

func (acc *columnAcc) finalize() *ColumnStat {
	stat := &ColumnStat{
		Name:      acc.name,
		Type:      acc.typ,
		Count:     acc.count,
		NullCount: acc.nullCount,
	}

	switch acc.typ {
	case dataset.TypeNumeric:
		if acc.count > 0 {
			stat.Mean = acc.mean
			stat.Min = acc.min
			stat.Max = acc.max
			if acc.count > 1 {
				stat.Variance = acc.m2 / float64(acc.count-1)
				stat.StdDev = math.Sqrt(stat.Variance)
			}
			stat.Quantiles = make(map[string]float64, 5)
			for label, q := range map[string]float64{
				"p01": 0.01, "p25": 0.25, "p50": 0.50, "p75": 0.75, "p99": 0.99,
			} {
				if v, ok := acc.sketch.Query(q); ok {
					stat.Quantiles[label] = v
				}
			}
		}

	case dataset.TypeDatetime:
		if acc.count > 0 {
			minT, maxT := acc.minTime, acc.maxTime
			stat.MinTime = &minT
			stat.MaxTime = &maxT
		}

	default:
		stat.TopValues = acc.topk.Top()
	}

	return stat
}

func buildClassBalance(column string, counts map[string]int64) *ClassBalance {
	var total, positives int64
	for v, c := range counts {
		total += c
		if v == "1" || strings.EqualFold(v, "true") {
			positives += c
		}
	}

	cb := &ClassBalance{Column: column, Counts: counts}
	if total > 0 {
		cb.PositiveRate = float64(positives) / float64(total)
	}
	return cb
}

func normalizeValue(raw string) string {
	return strings.TrimSpace(raw)
}

// normalizeLabel collapses numeric spellings of a class label ("0.0", "1") to
// a canonical form so the balance counts do not split.
func normalizeLabel(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return v
}

func schemaType(s *dataset.Schema, name string) dataset.ColumnType {
	if c, ok := s.Column(name); ok {
		return c.Type
	}
	return dataset.TypeCategorical
}
