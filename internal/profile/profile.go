package profile

import (
	"time"

	"github.com/eda-agent/backend/internal/dataset"
)

// ValueCount is one entry of a categorical column's top-K table.
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// ColumnStat is the finalized per-column statistics block of a profile.
// Count covers non-null values only, so Count+NullCount equals the dataset
// row count.
type ColumnStat struct {
	Name      string             `json:"name"`
	Type      dataset.ColumnType `json:"type"`
	Count     int64              `json:"count"`
	NullCount int64              `json:"null_count"`

	// Numeric columns.
	Mean      float64            `json:"mean,omitempty"`
	Variance  float64            `json:"variance,omitempty"`
	StdDev    float64            `json:"std_dev,omitempty"`
	Min       float64            `json:"min,omitempty"`
	Max       float64            `json:"max,omitempty"`
	Quantiles map[string]float64 `json:"quantiles,omitempty"`

	// Datetime columns.
	MinTime *time.Time `json:"min_time,omitempty"`
	MaxTime *time.Time `json:"max_time,omitempty"`

	// Categorical columns.
	TopValues []ValueCount `json:"top_values,omitempty"`
}

// ClassBalance summarizes the designated binary label column so class-rate
// questions never need a second pass.
type ClassBalance struct {
	Column       string           `json:"column"`
	Counts       map[string]int64 `json:"counts"`
	PositiveRate float64          `json:"positive_rate"`
}

// DatasetProfile is the immutable result of one full aggregation pass. A new
// profile fully replaces the old one for the same dataset identifier.
type DatasetProfile struct {
	Dataset      string                 `json:"dataset"`
	RowCount     int64                  `json:"row_count"`
	ByteSize     int64                  `json:"byte_size"`
	GeneratedAt  time.Time              `json:"generated_at"`
	SchemaHash   string                 `json:"schema_hash"`
	Version      uint64                 `json:"version"`
	Columns      map[string]*ColumnStat `json:"columns"`
	ColumnOrder  []string               `json:"column_order"`
	ClassBalance *ClassBalance          `json:"class_balance,omitempty"`
	Warnings     []string               `json:"warnings,omitempty"`
}

// Progress is emitted by the aggregator as batches complete.
type Progress struct {
	Dataset       string `json:"dataset"`
	RowsProcessed int64  `json:"rows_processed"`
	Batches       int    `json:"batches"`
	Done          bool   `json:"done"`
}
