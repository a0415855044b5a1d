package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/eda-agent/backend/internal/plot"
)

// PlotDefaults fills column choices for the named plot routes when the query
// string leaves them out.
type PlotDefaults struct {
	ValueColumn string
	TimeColumn  string
	ClassColumn string
}

type PlotHandler struct {
	engine       *plot.Engine
	defaults     PlotDefaults
	staticPrefix string
}

func NewPlotHandler(engine *plot.Engine, defaults PlotDefaults, staticPrefix string) *PlotHandler {
	return &PlotHandler{engine: engine, defaults: defaults, staticPrefix: strings.TrimRight(staticPrefix, "/")}
}

func (h *PlotHandler) HandleHistogram(c *fiber.Ctx) error {
	return h.render(c, plot.Request{
		Kind:     plot.KindHistogram,
		Column:   c.Query("column", h.defaults.ValueColumn),
		Bins:     c.QueryInt("bins"),
		LogScale: c.QueryBool("log"),
	})
}

func (h *PlotHandler) HandleTimeSeries(c *fiber.Ctx) error {
	return h.render(c, plot.Request{
		Kind:       plot.KindTimeSeries,
		TimeColumn: c.Query("column", h.defaults.TimeColumn),
		Bins:       c.QueryInt("bins"),
	})
}

func (h *PlotHandler) HandleCorrHeatmap(c *fiber.Ctx) error {
	return h.render(c, plot.Request{
		Kind:       plot.KindCorrHeatmap,
		SampleRows: c.QueryInt("sample"),
	})
}

func (h *PlotHandler) HandleBoxByClass(c *fiber.Ctx) error {
	return h.render(c, plot.Request{
		Kind:        plot.KindBoxByClass,
		Column:      c.Query("column", h.defaults.ValueColumn),
		ClassColumn: c.Query("class", h.defaults.ClassColumn),
		MaxPerClass: c.QueryInt("max_per_class"),
	})
}

func (h *PlotHandler) HandleScatterPCA(c *fiber.Ctx) error {
	return h.render(c, plot.Request{
		Kind:        plot.KindScatterPCA,
		ClassColumn: c.Query("class", h.defaults.ClassColumn),
		SampleRows:  c.QueryInt("sample"),
	})
}

func (h *PlotHandler) render(c *fiber.Ctx, req plot.Request) error {
	artifact, err := h.engine.Render(c.Context(), c.Params("dataset"), req)
	if err != nil {
		return respondError(c, err)
	}

	if artifact.FromCache {
		c.Set("X-Cache", "hit")
	} else {
		c.Set("X-Cache", "miss")
	}
	return c.JSON(fiber.Map{
		"plot_url":  h.staticPrefix + "/" + artifact.FileName,
		"plot_path": artifact.Path,
		"key":       artifact.Key,
		"kind":      artifact.Kind,
		"params":    artifact.Params,
	})
}
