package plot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eda-agent/backend/internal/dataset"
	"github.com/eda-agent/backend/pkg/apperr"
)

func testSchema() *dataset.Schema {
	return &dataset.Schema{
		Columns: []dataset.Column{
			{Name: "Time", Type: dataset.TypeNumeric},
			{Name: "Amount", Type: dataset.TypeNumeric},
			{Name: "When", Type: dataset.TypeDatetime},
			{Name: "Class", Type: dataset.TypeCategorical},
		},
	}
}

func TestRequestKeyDeterministic(t *testing.T) {
	a := Request{Kind: KindHistogram, Column: "Amount", Bins: 50}
	b := Request{Kind: KindHistogram, Column: "Amount", Bins: 50}

	assert.Equal(t, a.Key("tx.csv"), b.Key("tx.csv"))
	assert.NotEqual(t, a.Key("tx.csv"), a.Key("other.csv"))
	assert.NotEqual(t, a.Key("tx.csv"), Request{Kind: KindHistogram, Column: "Amount", Bins: 40}.Key("tx.csv"))
	assert.NotEqual(t, a.Key("tx.csv"), Request{Kind: KindHistogram, Column: "Time", Bins: 50}.Key("tx.csv"))
}

func TestRequestKeyIgnoresIrrelevantFields(t *testing.T) {
	a := Request{Kind: KindHistogram, Column: "Amount", Bins: 50}
	b := Request{Kind: KindHistogram, Column: "Amount", Bins: 50, ClassColumn: "Class", MaxPerClass: 99}

	// ClassColumn and MaxPerClass play no role in a histogram.
	assert.Equal(t, a.Key("tx.csv"), b.Key("tx.csv"))
}

func TestRequestFileExtByKind(t *testing.T) {
	assert.Equal(t, ".png", Request{Kind: KindHistogram}.fileExt())
	assert.Equal(t, ".png", Request{Kind: KindTimeSeries}.fileExt())
	assert.Equal(t, ".png", Request{Kind: KindScatterPCA}.fileExt())
	assert.Equal(t, ".html", Request{Kind: KindCorrHeatmap}.fileExt())
	assert.Equal(t, ".html", Request{Kind: KindBoxByClass}.fileExt())
}

func TestValidate(t *testing.T) {
	schema := testSchema()

	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"histogram numeric", Request{Kind: KindHistogram, Column: "Amount"}, false},
		{"histogram categorical", Request{Kind: KindHistogram, Column: "Class"}, true},
		{"histogram missing column", Request{Kind: KindHistogram, Column: "Nope"}, true},
		{"time series datetime", Request{Kind: KindTimeSeries, TimeColumn: "When"}, false},
		{"time series numeric", Request{Kind: KindTimeSeries, TimeColumn: "Time"}, false},
		{"time series categorical", Request{Kind: KindTimeSeries, TimeColumn: "Class"}, true},
		{"heatmap", Request{Kind: KindCorrHeatmap}, false},
		{"box valid", Request{Kind: KindBoxByClass, Column: "Amount", ClassColumn: "Class"}, false},
		{"box missing class", Request{Kind: KindBoxByClass, Column: "Amount", ClassColumn: "Nope"}, true},
		{"scatter", Request{Kind: KindScatterPCA, ClassColumn: "Class"}, false},
		{"scatter bad class", Request{Kind: KindScatterPCA, ClassColumn: "Nope"}, true},
		{"unknown kind", Request{Kind: "pie"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.validate(schema)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.IsKind(err, apperr.KindInvalidRequest))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateHeatmapNeedsTwoNumeric(t *testing.T) {
	schema := &dataset.Schema{
		Columns: []dataset.Column{
			{Name: "Amount", Type: dataset.TypeNumeric},
			{Name: "Class", Type: dataset.TypeCategorical},
		},
	}

	err := Request{Kind: KindCorrHeatmap}.validate(schema)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidRequest))

	err = Request{Kind: KindScatterPCA}.validate(schema)
	require.Error(t, err)
}
