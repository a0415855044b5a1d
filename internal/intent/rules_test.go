package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eda-agent/backend/internal/dataset"
)

func testSchema() *dataset.Schema {
	return &dataset.Schema{
		Columns: []dataset.Column{
			{Name: "Time", Type: dataset.TypeNumeric},
			{Name: "Amount", Type: dataset.TypeNumeric},
			{Name: "V1", Type: dataset.TypeNumeric},
			{Name: "V12", Type: dataset.TypeNumeric},
			{Name: "Class", Type: dataset.TypeCategorical},
		},
	}
}

func TestRuleExtractor(t *testing.T) {
	tests := []struct {
		question string
		want     Intent
	}{
		{
			question: "show a histogram of Amount with log scale",
			want:     Intent{Kind: KindPlot, PlotKind: "histogram", Columns: []string{"Amount"}, LogScale: true},
		},
		{
			question: "how is Amount distributed?",
			want:     Intent{Kind: KindPlot, PlotKind: "histogram", Columns: []string{"Amount"}},
		},
		{
			question: "plot transactions over time",
			want:     Intent{Kind: KindPlot, PlotKind: "time_series", Columns: []string{"Time"}},
		},
		{
			question: "are V1 and V12 correlated?",
			want:     Intent{Kind: KindPlot, PlotKind: "corr_heatmap", Columns: []string{"V1", "V12"}},
		},
		{
			question: "boxplot of Amount by Class",
			want:     Intent{Kind: KindPlot, PlotKind: "box_by_class", Columns: []string{"Amount", "Class"}},
		},
		{
			question: "show me a PCA scatter colored by Class",
			want:     Intent{Kind: KindPlot, PlotKind: "scatter_pca", Columns: []string{"Class"}},
		},
		{
			question: "what is the average Amount?",
			want:     Intent{Kind: KindMetric, Metric: "mean", Columns: []string{"Amount"}},
		},
		{
			question: "median of Amount",
			want:     Intent{Kind: KindMetric, Metric: "median", Columns: []string{"Amount"}},
		},
		{
			question: "what is the variance of Amount?",
			want:     Intent{Kind: KindMetric, Metric: "variance", Columns: []string{"Amount"}},
		},
		{
			question: "standard deviation of Amount",
			want:     Intent{Kind: KindMetric, Metric: "std", Columns: []string{"Amount"}},
		},
		{
			question: "how many rows does this dataset have?",
			want:     Intent{Kind: KindMetric, Metric: "count"},
		},
		{
			question: "how many missing values in Amount?",
			want:     Intent{Kind: KindMetric, Metric: "missing", Columns: []string{"Amount"}},
		},
		{
			question: "what is the fraud rate?",
			want:     Intent{Kind: KindMetric, Metric: "class_rate"},
		},
		{
			question: "tell me something interesting about this data",
			want:     Intent{Kind: KindExplanation},
		},
	}

	ext := NewRuleExtractor()
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got, err := ext.Extract(context.Background(), tt.question, testSchema())
			require.NoError(t, err)
			assert.Equal(t, tt.want.Kind, got.Kind)
			assert.Equal(t, tt.want.Metric, got.Metric)
			assert.Equal(t, tt.want.PlotKind, got.PlotKind)
			assert.Equal(t, tt.want.LogScale, got.LogScale)
			assert.Equal(t, tt.want.Columns, got.Columns)
		})
	}
}

func TestColumnMatchingRespectsWordBoundaries(t *testing.T) {
	ext := NewRuleExtractor()

	got, err := ext.Extract(context.Background(), "mean of V12 please", testSchema())
	require.NoError(t, err)
	assert.Equal(t, []string{"V12"}, got.Columns)

	got, err = ext.Extract(context.Background(), "mean of V1 please", testSchema())
	require.NoError(t, err)
	assert.Equal(t, []string{"V1"}, got.Columns)
}

func TestMetricWithoutColumnFallsThrough(t *testing.T) {
	ext := NewRuleExtractor()

	// "average" with no recognizable column cannot become a metric intent.
	got, err := ext.Extract(context.Background(), "what is the average?", testSchema())
	require.NoError(t, err)
	assert.Equal(t, KindExplanation, got.Kind)
}
