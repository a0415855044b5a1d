package intent

import (
	"context"

	"github.com/eda-agent/backend/internal/dataset"
)

type Kind string

const (
	KindMetric      Kind = "metric"
	KindPlot        Kind = "plot"
	KindExplanation Kind = "explanation"
)

// Intent is the structured reading of a free-form question about a dataset.
// Metric intents are answered from the profile alone; plot intents name the
// chart to render; everything else becomes an explanation.
type Intent struct {
	Kind     Kind     `json:"kind"`
	Metric   string   `json:"metric,omitempty"`    // mean, median, min, max, std, variance, count, missing, class_rate
	PlotKind string   `json:"plot_kind,omitempty"` // histogram, time_series, corr_heatmap, box_by_class, scatter_pca
	Columns  []string `json:"columns,omitempty"`
	LogScale bool     `json:"log_scale,omitempty"`
}

// Extractor turns a question into an Intent given the dataset's schema. The
// rule extractor always succeeds; the LLM extractor may fail and callers fall
// back to rules.
type Extractor interface {
	Extract(ctx context.Context, question string, schema *dataset.Schema) (Intent, error)
}
