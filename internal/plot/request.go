package plot

import (
	"fmt"
	"strings"

	"github.com/eda-agent/backend/internal/dataset"
	"github.com/eda-agent/backend/pkg/apperr"
	"github.com/eda-agent/backend/pkg/utils"
)

type Kind string

const (
	KindHistogram   Kind = "histogram"
	KindTimeSeries  Kind = "time_series"
	KindCorrHeatmap Kind = "corr_heatmap"
	KindBoxByClass  Kind = "box_by_class"
	KindScatterPCA  Kind = "scatter_pca"
)

// Request is the tagged plot variant. Fields unused by a kind are ignored by
// that kind's validation and excluded from its key.
type Request struct {
	Kind        Kind   `json:"kind"`
	Column      string `json:"column,omitempty"`       // histogram / box value column
	TimeColumn  string `json:"time_column,omitempty"`  // time series axis
	ClassColumn string `json:"class_column,omitempty"` // box / scatter grouping
	Bins        int    `json:"bins,omitempty"`
	SampleRows  int    `json:"sample_rows,omitempty"`
	MaxPerClass int    `json:"max_per_class,omitempty"`
	LogScale    bool   `json:"log_scale,omitempty"`
}

// Artifact references a rendered plot. Immutable once created; may be
// re-rendered byte-identically from the same request.
type Artifact struct {
	Key         string  `json:"key"`
	FileName    string  `json:"file_name"`
	Path        string  `json:"path"`
	ContentType string  `json:"content_type"`
	Kind        Kind    `json:"kind"`
	Params      Request `json:"params"`
	FromCache   bool    `json:"from_cache"`
}

func (r Request) fileExt() string {
	switch r.Kind {
	case KindCorrHeatmap, KindBoxByClass:
		return ".html"
	default:
		return ".png"
	}
}

func (r Request) contentType() string {
	if r.fileExt() == ".html" {
		return "text/html"
	}
	return "image/png"
}

// Key derives the stable content address for (dataset, kind, parameters).
// Identical requests map to the same key, so the artifact cache can answer
// them without re-rendering.
func (r Request) Key(datasetID string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "dataset=%s|kind=%s", datasetID, r.Kind)

	switch r.Kind {
	case KindHistogram:
		fmt.Fprintf(&sb, "|column=%s|bins=%d|log=%t", r.Column, r.Bins, r.LogScale)
	case KindTimeSeries:
		fmt.Fprintf(&sb, "|time=%s|bins=%d", r.TimeColumn, r.Bins)
	case KindCorrHeatmap:
		fmt.Fprintf(&sb, "|sample=%d", r.SampleRows)
	case KindBoxByClass:
		fmt.Fprintf(&sb, "|column=%s|class=%s|max_per_class=%d", r.Column, r.ClassColumn, r.MaxPerClass)
	case KindScatterPCA:
		fmt.Fprintf(&sb, "|class=%s|sample=%d", r.ClassColumn, r.SampleRows)
	}

	return utils.HashString(sb.String())
}

// validate checks the request against the inferred schema before any scan
// begins.
func (r Request) validate(schema *dataset.Schema) error {
	switch r.Kind {
	case KindHistogram:
		return requireColumn(schema, r.Column, dataset.TypeNumeric)

	case KindTimeSeries:
		col, ok := schema.Column(r.TimeColumn)
		if !ok {
			return apperr.InvalidRequest("column %q does not exist in dataset", r.TimeColumn)
		}
		if col.Type != dataset.TypeDatetime && col.Type != dataset.TypeNumeric {
			return apperr.InvalidRequest("column %q has type %s, time series needs a timestamp-like or numeric column", r.TimeColumn, col.Type)
		}
		return nil

	case KindCorrHeatmap:
		if len(schema.NumericColumns()) < 2 {
			return apperr.InvalidRequest("correlation heatmap needs at least two numeric columns")
		}
		return nil

	case KindBoxByClass:
		if err := requireColumn(schema, r.Column, dataset.TypeNumeric); err != nil {
			return err
		}
		if _, ok := schema.Column(r.ClassColumn); !ok {
			return apperr.InvalidRequest("column %q does not exist in dataset", r.ClassColumn)
		}
		return nil

	case KindScatterPCA:
		if len(schema.NumericColumns()) < 2 {
			return apperr.InvalidRequest("PCA scatter needs at least two numeric columns")
		}
		if r.ClassColumn != "" {
			if _, ok := schema.Column(r.ClassColumn); !ok {
				return apperr.InvalidRequest("column %q does not exist in dataset", r.ClassColumn)
			}
		}
		return nil

	default:
		return apperr.InvalidRequest("unknown plot kind %q", r.Kind)
	}
}

func requireColumn(schema *dataset.Schema, name string, typ dataset.ColumnType) error {
	col, ok := schema.Column(name)
	if !ok {
		return apperr.InvalidRequest("column %q does not exist in dataset", name)
	}
	if col.Type != typ {
		return apperr.InvalidRequest("column %q has type %s, expected %s", name, col.Type, typ)
	}
	return nil
}
