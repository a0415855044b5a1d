package plot

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eda-agent/backend/internal/dataset"
	"github.com/eda-agent/backend/internal/metrics"
	"github.com/eda-agent/backend/internal/profile"
	"github.com/eda-agent/backend/pkg/apperr"
	"github.com/eda-agent/backend/pkg/logger"
	"github.com/eda-agent/backend/pkg/utils"
)

// maxBoxClasses bounds the class cardinality a boxplot will draw.
const maxBoxClasses = 20

// Artifacts is the on-disk artifact store; the filesystem store satisfies it.
type Artifacts interface {
	WritePlot(name string, data []byte) (string, error)
	PlotExists(name string) (string, bool)
}

// Profiles lets the engine reuse already-published profile statistics, such
// as numeric bounds, without a scan. Show never triggers a computation.
type Profiles interface {
	Show(ctx context.Context, datasetID string) (*profile.DatasetProfile, error)
}

// ArtifactCache mirrors artifact metadata into Redis, best effort.
type ArtifactCache interface {
	SetArtifact(ctx context.Context, key string, meta interface{}) error
	GetArtifact(ctx context.Context, key string, meta interface{}) (bool, error)
}

type Config struct {
	DefaultBins   int
	DefaultSample int
	MaxPerClass   int
}

// Engine renders plot artifacts on demand. Artifacts are content addressed
// by their request key, so an existing file short-circuits the render and
// identical requests converge on one artifact.
type Engine struct {
	reader    *dataset.Reader
	artifacts Artifacts
	profiles  Profiles
	cache     ArtifactCache
	cfg       Config
}

func NewEngine(reader *dataset.Reader, artifacts Artifacts, profiles Profiles, cache ArtifactCache, cfg Config) *Engine {
	if cfg.DefaultBins <= 0 {
		cfg.DefaultBins = 50
	}
	if cfg.DefaultSample <= 0 {
		cfg.DefaultSample = 20000
	}
	if cfg.MaxPerClass <= 0 {
		cfg.MaxPerClass = 5000
	}
	return &Engine{
		reader:    reader,
		artifacts: artifacts,
		profiles:  profiles,
		cache:     cache,
		cfg:       cfg,
	}
}

// Render produces the artifact for a plot request, reusing a previously
// rendered file when one exists for the same key. Validation runs against
// the inferred schema before any full scan starts.
func (e *Engine) Render(ctx context.Context, datasetID string, req Request) (*Artifact, error) {
	schema, err := e.reader.Schema(datasetID)
	if err != nil {
		return nil, err
	}

	req = e.normalize(req)
	if err := req.validate(schema); err != nil {
		return nil, err
	}

	key := req.Key(datasetID)
	name := key + req.fileExt()

	if e.cache != nil {
		var cached Artifact
		if hit, err := e.cache.GetArtifact(ctx, key, &cached); err == nil && hit {
			// Cached metadata may outlive the file, so the file check stays.
			if path, ok := e.artifacts.PlotExists(cached.FileName); ok {
				metrics.PlotCacheHits.Inc()
				cached.Path = path
				cached.FromCache = true
				return &cached, nil
			}
		}
	}

	if path, ok := e.artifacts.PlotExists(name); ok {
		metrics.PlotCacheHits.Inc()
		return &Artifact{
			Key:         key,
			FileName:    name,
			Path:        path,
			ContentType: req.contentType(),
			Kind:        req.Kind,
			Params:      req,
			FromCache:   true,
		}, nil
	}
	metrics.PlotCacheMisses.Inc()

	start := time.Now()
	var data []byte
	switch req.Kind {
	case KindHistogram:
		data, err = e.renderHistogram(ctx, datasetID, schema, req)
	case KindTimeSeries:
		data, err = e.renderTimeSeries(ctx, datasetID, schema, req)
	case KindCorrHeatmap:
		data, err = e.renderCorrHeatmap(ctx, datasetID, schema, req, key)
	case KindBoxByClass:
		data, err = e.renderBoxByClass(ctx, datasetID, schema, req, key)
	case KindScatterPCA:
		data, err = e.renderScatterPCA(ctx, datasetID, schema, req, key)
	}
	if err != nil {
		metrics.PlotRenderTotal.WithLabelValues(string(req.Kind), "error").Inc()
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindRender, err, "failed to render %s for dataset %s", req.Kind, datasetID)
	}

	path, err := e.artifacts.WritePlot(name, data)
	if err != nil {
		metrics.PlotRenderTotal.WithLabelValues(string(req.Kind), "error").Inc()
		return nil, err
	}

	metrics.PlotRenderDuration.WithLabelValues(string(req.Kind)).Observe(time.Since(start).Seconds())
	metrics.PlotRenderTotal.WithLabelValues(string(req.Kind), "success").Inc()

	artifact := &Artifact{
		Key:         key,
		FileName:    name,
		Path:        path,
		ContentType: req.contentType(),
		Kind:        req.Kind,
		Params:      req,
	}

	if e.cache != nil {
		if err := e.cache.SetArtifact(ctx, key, artifact); err != nil {
			logger.Warn("Failed to cache artifact metadata", zap.String("key", key), zap.Error(err))
		}
	}

	logger.Info("Plot rendered",
		zap.String("dataset", datasetID),
		zap.String("kind", string(req.Kind)),
		zap.String("file", name),
		zap.Duration("duration", time.Since(start)),
	)
	return artifact, nil
}

func (e *Engine) normalize(req Request) Request {
	if req.Bins <= 0 {
		req.Bins = e.cfg.DefaultBins
	}
	if req.SampleRows <= 0 {
		req.SampleRows = e.cfg.DefaultSample
	}
	if req.MaxPerClass <= 0 {
		req.MaxPerClass = e.cfg.MaxPerClass
	}
	return req
}

// columnBounds finds min and max of the transformed column. The profile's
// published bounds are reused for the untransformed case so most histograms
// need only the binning pass.
func (e *Engine) columnBounds(ctx context.Context, datasetID, column string, colIdx int, transform func(string) (float64, bool)) (float64, float64, error) {
	min := math.Inf(1)
	max := math.Inf(-1)

	err := e.reader.Scan(ctx, datasetID, func(_ *dataset.Schema, b *dataset.Batch) error {
		for _, row := range b.Rows {
			v, ok := transform(row[colIdx])
			if !ok {
				continue
			}
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	if min > max {
		return 0, 0, apperr.Render("column %q has no plottable values", column)
	}
	return min, max, nil
}

func (e *Engine) profileBounds(ctx context.Context, datasetID, column string) (float64, float64, bool) {
	if e.profiles == nil {
		return 0, 0, false
	}
	p, err := e.profiles.Show(ctx, datasetID)
	if err != nil {
		return 0, 0, false
	}
	stat, ok := p.Columns[column]
	if !ok || stat.Type != dataset.TypeNumeric || stat.Count == 0 {
		return 0, 0, false
	}
	return stat.Min, stat.Max, true
}

// binCounts fills fixed-width bins over [min, max]. Values outside the range
// are clamped into the edge bins, which only matters when bounds came from a
// stale profile.
func (e *Engine) binCounts(ctx context.Context, datasetID string, colIdx, bins int, min, max float64, transform func(string) (float64, bool)) ([]float64, []int64, error) {
	if max == min {
		max = min + 1
	}
	width := (max - min) / float64(bins)

	edges := make([]float64, bins+1)
	for i := range edges {
		edges[i] = min + width*float64(i)
	}

	counts := make([]int64, bins)
	err := e.reader.Scan(ctx, datasetID, func(_ *dataset.Schema, b *dataset.Batch) error {
		for _, row := range b.Rows {
			v, ok := transform(row[colIdx])
			if !ok {
				continue
			}
			idx := int((v - min) / width)
			if idx < 0 {
				idx = 0
			}
			if idx >= bins {
				idx = bins - 1
			}
			counts[idx]++
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return edges, counts, nil
}

func parseNumeric(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func (e *Engine) renderHistogram(ctx context.Context, datasetID string, schema *dataset.Schema, req Request) ([]byte, error) {
	colIdx, _ := schema.Index(req.Column)

	transform := parseNumeric
	title := fmt.Sprintf("Distribution of %s in %s", req.Column, datasetID)
	if req.LogScale {
		transform = func(raw string) (float64, bool) {
			v, ok := parseNumeric(raw)
			if !ok || v <= 0 {
				return 0, false
			}
			return math.Log10(v), true
		}
		title = fmt.Sprintf("Distribution of log10(%s) in %s", req.Column, datasetID)
	}

	min, max, ok := 0.0, 0.0, false
	if !req.LogScale {
		min, max, ok = e.profileBounds(ctx, datasetID, req.Column)
	}
	if !ok {
		var err error
		min, max, err = e.columnBounds(ctx, datasetID, req.Column, colIdx, transform)
		if err != nil {
			return nil, err
		}
	}

	edges, counts, err := e.binCounts(ctx, datasetID, colIdx, req.Bins, min, max, transform)
	if err != nil {
		return nil, err
	}
	if sum(counts) == 0 {
		return nil, apperr.Render("column %q has no plottable values", req.Column)
	}

	return renderHistogramPNG(title, edges, counts)
}

func (e *Engine) renderTimeSeries(ctx context.Context, datasetID string, schema *dataset.Schema, req Request) ([]byte, error) {
	colIdx, _ := schema.Index(req.TimeColumn)
	col, _ := schema.Column(req.TimeColumn)

	transform := parseNumeric
	label := func(v float64) string { return fmt.Sprintf("%.4g", v) }
	if col.Type == dataset.TypeDatetime {
		transform = func(raw string) (float64, bool) {
			t, ok := dataset.ParseDatetime(raw)
			if !ok {
				return 0, false
			}
			return float64(t.Unix()), true
		}
		label = func(v float64) string {
			return time.Unix(int64(v), 0).UTC().Format("2006-01-02 15:04")
		}
	}

	min, max, err := e.columnBounds(ctx, datasetID, req.TimeColumn, colIdx, transform)
	if err != nil {
		return nil, err
	}
	edges, counts, err := e.binCounts(ctx, datasetID, colIdx, req.Bins, min, max, transform)
	if err != nil {
		return nil, err
	}
	if sum(counts) == 0 {
		return nil, apperr.Render("column %q has no plottable values", req.TimeColumn)
	}

	labels := make([]string, len(counts))
	for i := range counts {
		labels[i] = label(edges[i])
	}

	title := fmt.Sprintf("Rows over %s in %s", req.TimeColumn, datasetID)
	return renderTimeSeriesPNG(title, labels, counts)
}

// sampleNumeric fills a reservoir with rows whose selected numeric columns
// all parse. classIdx below zero means no label.
func (e *Engine) sampleNumeric(ctx context.Context, datasetID string, schema *dataset.Schema, columns []string, classIdx int, res *Reservoir) error {
	indexes := make([]int, len(columns))
	for i, name := range columns {
		indexes[i], _ = schema.Index(name)
	}

	return e.reader.Scan(ctx, datasetID, func(_ *dataset.Schema, b *dataset.Batch) error {
		for _, row := range b.Rows {
			values := make([]float64, len(indexes))
			ok := true
			for i, idx := range indexes {
				v, parsed := parseNumeric(row[idx])
				if !parsed {
					ok = false
					break
				}
				values[i] = v
			}
			if !ok {
				continue
			}
			sample := SampleRow{Values: values}
			if classIdx >= 0 {
				sample.Label = row[classIdx]
			}
			res.Add(sample)
		}
		return nil
	})
}

func (e *Engine) renderCorrHeatmap(ctx context.Context, datasetID string, schema *dataset.Schema, req Request, key string) ([]byte, error) {
	columns := schema.NumericColumns()

	res := NewReservoir(req.SampleRows, utils.SeedFromString(key))
	if err := e.sampleNumeric(ctx, datasetID, schema, columns, -1, res); err != nil {
		return nil, err
	}
	rows := res.Rows()
	if len(rows) < 2 {
		return nil, apperr.Render("not enough complete numeric rows in dataset %s for a correlation heatmap", datasetID)
	}

	matrix := pearsonMatrix(rows, len(columns))
	title := fmt.Sprintf("Correlation heatmap of %s", datasetID)
	return renderHeatmapHTML(title, columns, matrix)
}

func (e *Engine) renderBoxByClass(ctx context.Context, datasetID string, schema *dataset.Schema, req Request, key string) ([]byte, error) {
	colIdx, _ := schema.Index(req.Column)
	classIdx, _ := schema.Index(req.ClassColumn)

	seed := utils.SeedFromString(key)
	reservoirs := make(map[string]*Reservoir)

	err := e.reader.Scan(ctx, datasetID, func(_ *dataset.Schema, b *dataset.Batch) error {
		for _, row := range b.Rows {
			v, ok := parseNumeric(row[colIdx])
			if !ok {
				continue
			}
			class := row[classIdx]
			res, ok := reservoirs[class]
			if !ok {
				if len(reservoirs) >= maxBoxClasses {
					return apperr.Render("class column %q has more than %d distinct values", req.ClassColumn, maxBoxClasses)
				}
				res = NewReservoir(req.MaxPerClass, seed+int64(len(reservoirs)))
				reservoirs[class] = res
			}
			res.Add(SampleRow{Values: []float64{v}})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(reservoirs) == 0 {
		return nil, apperr.Render("column %q has no plottable values", req.Column)
	}

	classes := make([]string, 0, len(reservoirs))
	for class := range reservoirs {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	groups := make([]fiveNumber, 0, len(classes))
	for _, class := range classes {
		values := make([]float64, 0, len(reservoirs[class].Rows()))
		for _, row := range reservoirs[class].Rows() {
			values = append(values, row.Values[0])
		}
		sort.Float64s(values)
		groups = append(groups, fiveNumber{
			Class: class,
			Values: [5]float64{
				values[0],
				sortedQuantile(values, 0.25),
				sortedQuantile(values, 0.5),
				sortedQuantile(values, 0.75),
				values[len(values)-1],
			},
		})
	}

	title := fmt.Sprintf("%s by %s in %s", req.Column, req.ClassColumn, datasetID)
	return renderBoxplotHTML(title, req.Column, groups)
}

func (e *Engine) renderScatterPCA(ctx context.Context, datasetID string, schema *dataset.Schema, req Request, key string) ([]byte, error) {
	columns := schema.NumericColumns()

	classIdx := -1
	if req.ClassColumn != "" {
		classIdx, _ = schema.Index(req.ClassColumn)
	}

	res := NewReservoir(req.SampleRows, utils.SeedFromString(key))
	if err := e.sampleNumeric(ctx, datasetID, schema, columns, classIdx, res); err != nil {
		return nil, err
	}
	rows := res.Rows()
	if len(rows) < 3 {
		return nil, apperr.Render("not enough complete numeric rows in dataset %s for a PCA scatter", datasetID)
	}

	projected := projectPCA(rows, len(columns))
	points := make(map[string][][2]float64)
	for i, row := range rows {
		label := row.Label
		if label == "" {
			label = "all"
		}
		points[label] = append(points[label], projected[i])
	}

	title := fmt.Sprintf("PCA projection of %s", datasetID)
	return renderScatterPNG(title, points)
}

// sortedQuantile interpolates linearly between neighbors of a sorted slice.
func sortedQuantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func pearsonMatrix(rows []SampleRow, dims int) [][]float64 {
	n := float64(len(rows))

	means := make([]float64, dims)
	for _, row := range rows {
		for j := 0; j < dims; j++ {
			means[j] += row.Values[j]
		}
	}
	for j := range means {
		means[j] /= n
	}

	cov := make([][]float64, dims)
	for i := range cov {
		cov[i] = make([]float64, dims)
	}
	for _, row := range rows {
		for i := 0; i < dims; i++ {
			di := row.Values[i] - means[i]
			for j := i; j < dims; j++ {
				cov[i][j] += di * (row.Values[j] - means[j])
			}
		}
	}

	matrix := make([][]float64, dims)
	for i := range matrix {
		matrix[i] = make([]float64, dims)
	}
	for i := 0; i < dims; i++ {
		for j := i; j < dims; j++ {
			denom := math.Sqrt(cov[i][i] * cov[j][j])
			v := 0.0
			if denom > 0 {
				v = cov[i][j] / denom
			} else if i == j {
				v = 1
			}
			matrix[i][j] = v
			matrix[j][i] = v
		}
	}
	return matrix
}

func sum(counts []int64) int64 {
	var total int64
	for _, c := range counts {
		total += c
	}
	return total
}
