package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eda-agent/backend/internal/dataset"
	"github.com/eda-agent/backend/internal/intent"
	"github.com/eda-agent/backend/internal/metrics"
	"github.com/eda-agent/backend/internal/plot"
	"github.com/eda-agent/backend/internal/profile"
	"github.com/eda-agent/backend/internal/storage/models"
	"github.com/eda-agent/backend/internal/storage/sqlite"
	"github.com/eda-agent/backend/pkg/apperr"
	"github.com/eda-agent/backend/pkg/logger"
)

// Composer turns fact lines into a natural-language answer; the LLM client
// satisfies it. A nil composer falls back to template answers.
type Composer interface {
	ComposeAnswer(ctx context.Context, question string, facts []string) (string, error)
}

// Dispatcher answers free-form questions about a profiled dataset. Metric
// questions read the published profile only; plot questions delegate to the
// plot engine; everything else becomes a profile-backed explanation. The
// dispatcher never scans the dataset itself.
type Dispatcher struct {
	db           *sqlite.Client
	profiles     *profile.Store
	plots        *plot.Engine
	rules        intent.Extractor
	llmExtractor intent.Extractor
	composer     Composer
	staticPrefix string
}

type AskRequest struct {
	Dataset  string `json:"dataset"`
	Question string `json:"question"`
}

type AskResponse struct {
	ID       string   `json:"id"`
	Dataset  string   `json:"dataset"`
	Question string   `json:"question"`
	Intent   string   `json:"intent"`
	Answer   string   `json:"answer"`
	Details  *Details `json:"details,omitempty"`
}

type Details struct {
	PlotURL  string         `json:"plot_url,omitempty"`
	PlotPath string         `json:"plot_path,omitempty"`
	Meta     *plot.Artifact `json:"meta,omitempty"`
}

func NewDispatcher(db *sqlite.Client, profiles *profile.Store, plots *plot.Engine, llmExtractor intent.Extractor, composer Composer, staticPrefix string) *Dispatcher {
	return &Dispatcher{
		db:           db,
		profiles:     profiles,
		plots:        plots,
		rules:        intent.NewRuleExtractor(),
		llmExtractor: llmExtractor,
		composer:     composer,
		staticPrefix: strings.TrimSuffix(staticPrefix, "/"),
	}
}

// ProcessAsk answers one question. The profile must already exist; a missing
// profile surfaces as ProfileMissing rather than triggering a scan.
func (d *Dispatcher) ProcessAsk(ctx context.Context, req AskRequest) (*AskResponse, error) {
	startTime := time.Now()
	askID := uuid.New().String()

	logger.Info("Processing question",
		zap.String("ask_id", askID),
		zap.String("dataset", req.Dataset),
		zap.String("question", req.Question),
	)

	prof, err := d.profiles.MustShow(ctx, req.Dataset)
	if err != nil {
		metrics.AskTotal.WithLabelValues("unknown", "error").Inc()
		return nil, err
	}

	schema := schemaFromProfile(prof)
	it := d.extract(ctx, req.Question, schema)

	resp := &AskResponse{
		ID:       askID,
		Dataset:  req.Dataset,
		Question: req.Question,
		Intent:   string(it.Kind),
	}

	switch it.Kind {
	case intent.KindMetric:
		err = d.answerMetric(ctx, resp, prof, it)
	case intent.KindPlot:
		err = d.answerPlot(ctx, resp, prof, it)
	default:
		err = d.answerExplanation(ctx, resp, prof, it)
	}

	if err != nil {
		metrics.AskTotal.WithLabelValues(string(it.Kind), "error").Inc()
		return nil, err
	}
	metrics.AskTotal.WithLabelValues(string(it.Kind), "success").Inc()

	latency := int(time.Since(startTime).Milliseconds())
	record := &models.AskRecord{
		ID:         askID,
		DatasetID:  req.Dataset,
		Question:   req.Question,
		IntentKind: string(it.Kind),
		Answer:     resp.Answer,
		LatencyMS:  latency,
		CreatedAt:  time.Now(),
	}
	if resp.Details != nil && resp.Details.Meta != nil {
		record.PlotKey = resp.Details.Meta.Key
	}
	if d.db != nil {
		if err := d.db.InsertAskRecord(record); err != nil {
			logger.Warn("Failed to record question", zap.String("ask_id", askID), zap.Error(err))
		}
	}

	logger.Info("Question answered",
		zap.String("ask_id", askID),
		zap.String("intent", string(it.Kind)),
		zap.Int("latency_ms", latency),
	)
	return resp, nil
}

// History returns the most recent questions asked about a dataset, newest
// first. Without a registry the history is empty.
func (d *Dispatcher) History(dataset string, limit int) ([]models.AskRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if d.db == nil {
		return nil, nil
	}
	return d.db.GetAskHistory(dataset, limit)
}

func (d *Dispatcher) extract(ctx context.Context, question string, schema *dataset.Schema) intent.Intent {
	if d.llmExtractor != nil {
		it, err := d.llmExtractor.Extract(ctx, question, schema)
		if err == nil {
			return it
		}
		logger.Warn("LLM intent extraction failed, using rules", zap.Error(err))
	}
	it, _ := d.rules.Extract(ctx, question, schema)
	return it
}

// schemaFromProfile rebuilds the column schema from the published profile so
// intent extraction never touches the dataset file.
func schemaFromProfile(prof *profile.DatasetProfile) *dataset.Schema {
	columns := make([]dataset.Column, 0, len(prof.ColumnOrder))
	for _, name := range prof.ColumnOrder {
		stat, ok := prof.Columns[name]
		if !ok {
			continue
		}
		columns = append(columns, dataset.Column{Name: name, Type: stat.Type})
	}
	return &dataset.Schema{Columns: columns, Hash: prof.SchemaHash}
}

func (d *Dispatcher) answerMetric(ctx context.Context, resp *AskResponse, prof *profile.DatasetProfile, it intent.Intent) error {
	facts, answer, err := metricFacts(prof, it)
	if err != nil {
		return err
	}

	resp.Answer = answer
	if d.composer != nil {
		if composed, err := d.composer.ComposeAnswer(ctx, resp.Question, facts); err == nil {
			resp.Answer = composed
		} else {
			logger.Warn("Answer composition failed, using template", zap.Error(err))
		}
	}
	return nil
}

func metricFacts(prof *profile.DatasetProfile, it intent.Intent) (facts []string, answer string, err error) {
	switch it.Metric {
	case "count":
		facts = []string{fmt.Sprintf("dataset %s has %d rows and %d columns", prof.Dataset, prof.RowCount, len(prof.ColumnOrder))}
		answer = fmt.Sprintf("Dataset %s has %d rows across %d columns.", prof.Dataset, prof.RowCount, len(prof.ColumnOrder))
		return facts, answer, nil

	case "class_rate":
		cb := prof.ClassBalance
		if cb == nil {
			return nil, "", apperr.InvalidRequest("dataset %s has no label column to compute a class rate", prof.Dataset)
		}
		var parts []string
		for value, count := range cb.Counts {
			parts = append(parts, fmt.Sprintf("%s=%d", value, count))
		}
		facts = []string{
			fmt.Sprintf("label column %s counts: %s", cb.Column, strings.Join(parts, ", ")),
			fmt.Sprintf("positive rate %.6f (%.4f%%)", cb.PositiveRate, cb.PositiveRate*100),
		}
		answer = fmt.Sprintf("The positive rate of %s is %.4f%% (%d rows total).", cb.Column, cb.PositiveRate*100, prof.RowCount)
		return facts, answer, nil
	}

	if len(it.Columns) == 0 {
		return nil, "", apperr.InvalidRequest("question does not name a column of dataset %s", prof.Dataset)
	}
	column := it.Columns[0]
	stat, ok := prof.Columns[column]
	if !ok {
		return nil, "", apperr.InvalidRequest("column %q does not exist in dataset", column)
	}

	if it.Metric == "missing" {
		pct := 0.0
		if prof.RowCount > 0 {
			pct = float64(stat.NullCount) / float64(prof.RowCount) * 100
		}
		facts = []string{fmt.Sprintf("column %s has %d missing values out of %d rows (%.2f%%)", column, stat.NullCount, prof.RowCount, pct)}
		answer = fmt.Sprintf("Column %s has %d missing values (%.2f%% of %d rows).", column, stat.NullCount, pct, prof.RowCount)
		return facts, answer, nil
	}

	if stat.Type != dataset.TypeNumeric {
		return nil, "", apperr.InvalidRequest("column %q has type %s, metric %q needs a numeric column", column, stat.Type, it.Metric)
	}

	var value float64
	switch it.Metric {
	case "mean":
		value = stat.Mean
	case "median":
		value = stat.Quantiles["p50"]
	case "min":
		value = stat.Min
	case "max":
		value = stat.Max
	case "std":
		value = stat.StdDev
	case "variance":
		value = stat.Variance
	default:
		return nil, "", apperr.InvalidRequest("unknown metric %q", it.Metric)
	}

	facts = []string{fmt.Sprintf("%s of column %s is %g (over %d non-null values)", it.Metric, column, value, stat.Count)}
	answer = fmt.Sprintf("The %s of %s is %g.", it.Metric, column, value)
	return facts, answer, nil
}

func (d *Dispatcher) answerPlot(ctx context.Context, resp *AskResponse, prof *profile.DatasetProfile, it intent.Intent) error {
	req, err := d.plotRequest(prof, it)
	if err != nil {
		return err
	}

	artifact, err := d.plots.Render(ctx, prof.Dataset, req)
	if err != nil {
		return err
	}

	resp.Details = &Details{
		PlotURL:  d.staticPrefix + "/" + artifact.FileName,
		PlotPath: artifact.Path,
		Meta:     artifact,
	}
	resp.Answer = fmt.Sprintf("Rendered a %s plot for dataset %s.", req.Kind, prof.Dataset)
	return nil
}

// plotRequest maps an intent onto a concrete plot request, filling column
// choices from the profile when the question left them implicit.
func (d *Dispatcher) plotRequest(prof *profile.DatasetProfile, it intent.Intent) (plot.Request, error) {
	req := plot.Request{Kind: plot.Kind(it.PlotKind), LogScale: it.LogScale}

	numeric := func() string {
		for _, name := range it.Columns {
			if stat, ok := prof.Columns[name]; ok && stat.Type == dataset.TypeNumeric {
				return name
			}
		}
		for _, name := range prof.ColumnOrder {
			if prof.Columns[name].Type == dataset.TypeNumeric {
				return name
			}
		}
		return ""
	}

	classColumn := ""
	if prof.ClassBalance != nil {
		classColumn = prof.ClassBalance.Column
	}
	for _, name := range it.Columns {
		if stat, ok := prof.Columns[name]; ok && stat.Type == dataset.TypeCategorical {
			classColumn = name
			break
		}
	}

	switch req.Kind {
	case plot.KindHistogram:
		req.Column = numeric()
		if req.Column == "" {
			return req, apperr.InvalidRequest("dataset %s has no numeric column to plot", prof.Dataset)
		}

	case plot.KindTimeSeries:
		for _, name := range it.Columns {
			if stat, ok := prof.Columns[name]; ok && stat.Type == dataset.TypeDatetime {
				req.TimeColumn = name
				break
			}
		}
		if req.TimeColumn == "" {
			for _, name := range prof.ColumnOrder {
				if prof.Columns[name].Type == dataset.TypeDatetime {
					req.TimeColumn = name
					break
				}
			}
		}
		if req.TimeColumn == "" {
			req.TimeColumn = numeric()
		}
		if req.TimeColumn == "" {
			return req, apperr.InvalidRequest("dataset %s has no timestamp-like column to plot", prof.Dataset)
		}

	case plot.KindBoxByClass:
		req.Column = numeric()
		req.ClassColumn = classColumn
		if req.Column == "" || req.ClassColumn == "" {
			return req, apperr.InvalidRequest("box plot needs a numeric column and a class column in dataset %s", prof.Dataset)
		}

	case plot.KindScatterPCA:
		req.ClassColumn = classColumn

	case plot.KindCorrHeatmap:

	default:
		return req, apperr.InvalidRequest("unknown plot kind %q", it.PlotKind)
	}

	return req, nil
}

func (d *Dispatcher) answerExplanation(ctx context.Context, resp *AskResponse, prof *profile.DatasetProfile, it intent.Intent) error {
	var summary string
	var artifact *plot.Artifact

	// Render a suggested distribution plot alongside the summary; the two
	// are independent and the plot may hit the artifact cache.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary = summarizeProfile(prof)
		return nil
	})

	suggested := suggestedColumn(prof, it)
	if suggested != "" {
		g.Go(func() error {
			a, err := d.plots.Render(gctx, prof.Dataset, plot.Request{
				Kind:   plot.KindHistogram,
				Column: suggested,
			})
			if err != nil {
				logger.Warn("Suggested plot failed",
					zap.String("dataset", prof.Dataset),
					zap.String("column", suggested),
					zap.Error(err),
				)
				return nil
			}
			artifact = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	facts := []string{
		fmt.Sprintf("dataset %s: %d rows, %d columns, %d bytes", prof.Dataset, prof.RowCount, len(prof.ColumnOrder), prof.ByteSize),
	}
	if prof.ClassBalance != nil {
		facts = append(facts, fmt.Sprintf("label column %s positive rate %.6f", prof.ClassBalance.Column, prof.ClassBalance.PositiveRate))
	}
	for _, w := range prof.Warnings {
		facts = append(facts, "warning: "+w)
	}
	facts = append(facts, "numeric summary:\n"+summary)

	resp.Answer = strings.Join(facts, "\n")
	if d.composer != nil {
		if composed, err := d.composer.ComposeAnswer(ctx, resp.Question, facts); err == nil {
			resp.Answer = composed + "\n\n" + summary
		} else {
			logger.Warn("Answer composition failed, using template", zap.Error(err))
		}
	}

	if artifact != nil {
		resp.Details = &Details{
			PlotURL:  d.staticPrefix + "/" + artifact.FileName,
			PlotPath: artifact.Path,
			Meta:     artifact,
		}
	}
	return nil
}

func suggestedColumn(prof *profile.DatasetProfile, it intent.Intent) string {
	for _, name := range it.Columns {
		if stat, ok := prof.Columns[name]; ok && stat.Type == dataset.TypeNumeric {
			return name
		}
	}
	for _, name := range prof.ColumnOrder {
		if prof.Columns[name].Type == dataset.TypeNumeric {
			return name
		}
	}
	return ""
}

// summarizeProfile renders the numeric columns as a fixed-width table.
func summarizeProfile(prof *profile.DatasetProfile) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Column", "Mean", "Std", "Min", "Median", "Max", "Missing"})

	for _, name := range prof.ColumnOrder {
		stat := prof.Columns[name]
		if stat.Type != dataset.TypeNumeric {
			continue
		}
		t.AppendRow(table.Row{
			name,
			fmt.Sprintf("%.4g", stat.Mean),
			fmt.Sprintf("%.4g", stat.StdDev),
			fmt.Sprintf("%.4g", stat.Min),
			fmt.Sprintf("%.4g", stat.Quantiles["p50"]),
			fmt.Sprintf("%.4g", stat.Max),
			stat.NullCount,
		})
	}

	t.SetStyle(table.StyleLight)
	return t.Render()
}
