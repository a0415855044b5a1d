package intent

import (
	"context"
	"sort"
	"strings"

	prose "github.com/jdkato/prose/v2"

	"github.com/eda-agent/backend/internal/dataset"
)

// metricWords maps question vocabulary onto profile metrics.
var metricWords = map[string]string{
	"mean":      "mean",
	"average":   "mean",
	"avg":       "mean",
	"median":    "median",
	"min":       "min",
	"minimum":   "min",
	"smallest":  "min",
	"lowest":    "min",
	"max":       "max",
	"maximum":   "max",
	"largest":   "max",
	"highest":   "max",
	"std":       "std",
	"deviation": "std",
	"spread":    "std",
	"variance":  "variance",
	"rows":      "count",
	"count":     "count",
	"size":      "count",
	"missing":   "missing",
	"null":      "missing",
	"nulls":     "missing",
	"empty":     "missing",
	"rate":      "class_rate",
	"balance":   "class_rate",
	"imbalance": "class_rate",
	"fraction":  "class_rate",
	"share":     "class_rate",
}

var plotWords = map[string]string{
	"histogram":    "histogram",
	"distribution": "histogram",
	"distributed":  "histogram",
	"trend":        "time_series",
	"timeline":     "time_series",
	"correlation":  "corr_heatmap",
	"correlated":   "corr_heatmap",
	"correlate":    "corr_heatmap",
	"heatmap":      "corr_heatmap",
	"box":          "box_by_class",
	"boxplot":      "box_by_class",
	"scatter":      "scatter_pca",
	"pca":          "scatter_pca",
	"projection":   "scatter_pca",
	"components":   "scatter_pca",
}

// RuleExtractor reads questions with keyword rules over a tokenized form of
// the text. It never errors, which makes it the fallback behind the LLM
// extractor and the whole story when no API key is configured.
type RuleExtractor struct{}

func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

func (r *RuleExtractor) Extract(_ context.Context, question string, schema *dataset.Schema) (Intent, error) {
	tokens := tokenize(question)
	lower := strings.ToLower(question)

	columns := matchColumns(lower, schema)

	out := Intent{Kind: KindExplanation, Columns: columns}

	for i, tok := range tokens {
		if tok == "log" || tok == "logarithmic" {
			out.LogScale = true
		}
		if tok == "over" && i+1 < len(tokens) && tokens[i+1] == "time" {
			out.Kind = KindPlot
			out.PlotKind = "time_series"
		}
		if tok == "time" && i+1 < len(tokens) && tokens[i+1] == "series" {
			out.Kind = KindPlot
			out.PlotKind = "time_series"
		}
	}

	if out.PlotKind == "" {
		for _, tok := range tokens {
			if kind, ok := plotWords[tok]; ok {
				out.Kind = KindPlot
				out.PlotKind = kind
				break
			}
		}
	}
	if out.Kind == KindPlot {
		return out, nil
	}

	for _, tok := range tokens {
		if metric, ok := metricWords[tok]; ok {
			if needsColumn(metric) && len(columns) == 0 {
				continue
			}
			out.Kind = KindMetric
			out.Metric = metric
			return out, nil
		}
	}

	// "how many" without a recognized metric word still means row count.
	for i, tok := range tokens {
		if tok == "how" && i+1 < len(tokens) && tokens[i+1] == "many" {
			out.Kind = KindMetric
			out.Metric = "count"
			return out, nil
		}
	}

	return out, nil
}

func needsColumn(metric string) bool {
	switch metric {
	case "count", "class_rate":
		return false
	}
	return true
}

func tokenize(question string) []string {
	doc, err := prose.NewDocument(question,
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
		prose.WithTagging(false),
	)
	if err != nil {
		return strings.Fields(strings.ToLower(question))
	}

	var tokens []string
	for _, tok := range doc.Tokens() {
		tokens = append(tokens, strings.ToLower(tok.Text))
	}
	return tokens
}

// matchColumns finds schema column names mentioned in the question, ordered
// by their position in the text.
func matchColumns(lowerQuestion string, schema *dataset.Schema) []string {
	type hit struct {
		name string
		pos  int
	}

	var hits []hit
	for _, col := range schema.Columns {
		name := strings.ToLower(col.Name)
		if name == "" {
			continue
		}
		if pos := wordIndex(lowerQuestion, name); pos >= 0 {
			hits = append(hits, hit{name: col.Name, pos: pos})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	names := make([]string, len(hits))
	for i, h := range hits {
		names[i] = h.name
	}
	return names
}

// wordIndex finds needle in haystack at a word boundary, so column "V1" does
// not match inside "V12".
func wordIndex(haystack, needle string) int {
	for start := 0; ; {
		idx := strings.Index(haystack[start:], needle)
		if idx < 0 {
			return -1
		}
		idx += start

		before := idx == 0 || !isWordChar(haystack[idx-1])
		afterIdx := idx + len(needle)
		after := afterIdx >= len(haystack) || !isWordChar(haystack[afterIdx])
		if before && after {
			return idx
		}
		start = idx + 1
	}
}

func isWordChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
