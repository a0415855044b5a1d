package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eda-agent/backend/internal/dataset"
	"github.com/eda-agent/backend/internal/plot"
	"github.com/eda-agent/backend/internal/profile"
	"github.com/eda-agent/backend/internal/query"
	"github.com/eda-agent/backend/internal/storage/fs"
)

type testApp struct {
	app   *fiber.App
	store *fs.Store
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	base := t.TempDir()

	store, err := fs.NewStore(base+"/datasets", base+"/profiles", base+"/plots")
	require.NoError(t, err)

	reader := dataset.NewReader(store, 500)
	aggregator := profile.NewAggregator(reader, profile.AggregatorConfig{
		SketchEpsilon:   0.01,
		TopK:            10,
		LabelColumn:     "Class",
		TypeTolerance:   0.02,
		ProgressBatches: 2,
	})
	profiles := profile.NewStore(store, aggregator, nil, nil)
	engine := plot.NewEngine(reader, store, profiles, nil, plot.Config{
		DefaultBins:   20,
		DefaultSample: 1000,
		MaxPerClass:   200,
	})
	dispatcher := query.NewDispatcher(nil, profiles, engine, nil, nil, "/static")

	app := fiber.New()
	datasetHandler := NewDatasetHandler(store, nil, profiles)
	profileHandler := NewProfileHandler(profiles)
	plotHandler := NewPlotHandler(engine, PlotDefaults{
		ValueColumn: "Amount",
		TimeColumn:  "Time",
		ClassColumn: "Class",
	}, "/static")
	askHandler := NewAskHandler(dispatcher)

	app.Post("/upload/", datasetHandler.HandleUpload)
	app.Get("/dataset/:dataset", datasetHandler.HandleGet)
	app.Get("/profile/show/:dataset", profileHandler.HandleShow)
	app.Get("/profile/:dataset", profileHandler.HandleGenerate)
	app.Delete("/profile/:dataset", profileHandler.HandleInvalidate)
	app.Get("/plot/amount_hist/:dataset", plotHandler.HandleHistogram)
	app.Get("/plot/box_amount_by_class/:dataset", plotHandler.HandleBoxByClass)
	app.Post("/agent/ask", askHandler.HandleAsk)
	app.Get("/agent/history/:dataset", askHandler.HandleHistory)

	return &testApp{app: app, store: store}
}

func sampleCSV(rows int) string {
	var sb strings.Builder
	sb.WriteString("Time,Amount,Class\n")
	for i := 0; i < rows; i++ {
		class := 0
		if i%100 == 99 {
			class = 1
		}
		fmt.Fprintf(&sb, "%d,%.2f,%d\n", i, float64(i%500)+0.5, class)
	}
	return sb.String()
}

func uploadRequest(t *testing.T, filename, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestUploadRoundTrip(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(uploadRequest(t, "tx.csv", sampleCSV(50)), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, "tx.csv", body["filename"])
	assert.Greater(t, body["bytes"].(float64), 0.0)
}

func TestUploadRejectsNonCSV(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(uploadRequest(t, "notes.txt", "hello"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Contains(t, body["error"], ".csv")
}

func TestUploadRequiresFileField(t *testing.T) {
	ta := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/upload/", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProfileShowBeforeGenerate(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(uploadRequest(t, "tx.csv", sampleCSV(200)), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/profile/show/tx.csv", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/profile/tx.csv", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp)
	assert.Equal(t, float64(200), body["row_count"])

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/profile/show/tx.csv", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestProfileMissingDataset(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/profile/ghost.csv", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestPlotHistogramReturnsArtifactReference(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(uploadRequest(t, "tx.csv", sampleCSV(300)), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/plot/amount_hist/tx.csv?bins=10&log=false", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "miss", resp.Header.Get("X-Cache"))

	body := decodeJSON(t, resp)
	url, _ := body["plot_url"].(string)
	assert.True(t, strings.HasPrefix(url, "/static/"))
	path, _ := body["plot_path"].(string)
	assert.FileExists(t, path)
	assert.Equal(t, filepath.Base(path), strings.TrimPrefix(url, "/static/"))

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/plot/amount_hist/tx.csv?bins=10&log=false", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hit", resp.Header.Get("X-Cache"))
	resp.Body.Close()
}

func TestPlotUnknownColumn(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(uploadRequest(t, "tx.csv", sampleCSV(50)), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/plot/amount_hist/tx.csv?column=Nope", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestPlotRenderFailureStatus(t *testing.T) {
	ta := newTestApp(t)

	// Log scale drops non-positive values, so an all-negative column cannot
	// produce a histogram.
	var sb strings.Builder
	sb.WriteString("Time,Amount,Class\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&sb, "%d,-5,0\n", i)
	}
	resp, err := ta.app.Test(uploadRequest(t, "neg.csv", sb.String()), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/plot/amount_hist/neg.csv?log=true", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, "render_error", body["kind"])
}

func TestAskRequiresFields(t *testing.T) {
	ta := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/agent/ask", strings.NewReader(`{"dataset":"tx.csv"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAskMetricEndToEnd(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(uploadRequest(t, "tx.csv", sampleCSV(400)), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/profile/tx.csv", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	req := httptest.NewRequest(http.MethodPost, "/agent/ask",
		strings.NewReader(`{"dataset":"tx.csv","question":"what is the mean of Amount?"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, "metric", body["intent"])
	assert.Contains(t, body["answer"], "mean")
}

func TestAskBeforeProfile(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(uploadRequest(t, "tx.csv", sampleCSV(50)), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	req := httptest.NewRequest(http.MethodPost, "/agent/ask",
		strings.NewReader(`{"dataset":"tx.csv","question":"mean of Amount"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAskHistoryWithoutRegistry(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/agent/history/tx.csv", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, "tx.csv", body["dataset"])
	history, ok := body["history"].([]interface{})
	require.True(t, ok)
	assert.Empty(t, history)
}

func TestInvalidateProfile(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(uploadRequest(t, "tx.csv", sampleCSV(100)), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/profile/tx.csv", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodDelete, "/profile/tx.csv", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	_, err = os.Stat(ta.store.ProfilePath("tx.csv"))
	assert.True(t, os.IsNotExist(err))

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/profile/show/tx.csv", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
