package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProfilePassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eda_profile_pass_duration_seconds",
			Help:    "Full aggregation pass duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	ProfilePassTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eda_profile_pass_total",
			Help: "Total aggregation passes by outcome",
		},
		[]string{"status"},
	)

	RowsProfiledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eda_rows_profiled_total",
			Help: "Total CSV rows consumed by aggregation passes",
		},
	)

	PlotRenderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eda_plot_render_duration_seconds",
			Help:    "Plot render duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	PlotRenderTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eda_plot_render_total",
			Help: "Total plot renders by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	PlotCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eda_plot_cache_hits_total",
			Help: "Plot requests served from the artifact cache",
		},
	)

	PlotCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eda_plot_cache_misses_total",
			Help: "Plot requests that required a render",
		},
	)

	AskTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eda_ask_total",
			Help: "Agent questions by intent kind and outcome",
		},
		[]string{"intent", "status"},
	)

	UploadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eda_uploads_total",
			Help: "Total dataset uploads",
		},
	)

	UploadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eda_upload_bytes_total",
			Help: "Total bytes of uploaded datasets",
		},
	)
)

func Init() {
	prometheus.MustRegister(ProfilePassDuration)
	prometheus.MustRegister(ProfilePassTotal)
	prometheus.MustRegister(RowsProfiledTotal)
	prometheus.MustRegister(PlotRenderDuration)
	prometheus.MustRegister(PlotRenderTotal)
	prometheus.MustRegister(PlotCacheHits)
	prometheus.MustRegister(PlotCacheMisses)
	prometheus.MustRegister(AskTotal)
	prometheus.MustRegister(UploadsTotal)
	prometheus.MustRegister(UploadBytes)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
