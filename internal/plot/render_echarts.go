package plot

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

func renderHeatmapHTML(title string, columns []string, matrix [][]float64) ([]byte, error) {
	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:     "900px",
			Height:    "800px",
			PageTitle: title,
		}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			Data:      columns,
			SplitArea: &opts.SplitArea{Show: opts.Bool(true)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type:      "category",
			Data:      columns,
			SplitArea: &opts.SplitArea{Show: opts.Bool(true)},
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Min: -1,
			Max: 1,
			InRange: &opts.VisualMapInRange{
				Color: []string{"#313695", "#ffffff", "#a50026"},
			},
		}),
	)

	data := make([]opts.HeatMapData, 0, len(columns)*len(columns))
	for i := range columns {
		for j := range columns {
			v := matrix[i][j]
			data = append(data, opts.HeatMapData{
				Value: [3]interface{}{i, j, fmt.Sprintf("%.3f", v)},
			})
		}
	}
	hm.SetXAxis(columns).AddSeries("correlation", data)

	buffer := bytes.NewBuffer([]byte{})
	if err := hm.Render(buffer); err != nil {
		return nil, fmt.Errorf("error rendering heatmap: %v", err)
	}
	return buffer.Bytes(), nil
}

// fiveNumber is min, q1, median, q3, max for one class.
type fiveNumber struct {
	Class  string
	Values [5]float64
}

func renderBoxplotHTML(title, column string, groups []fiveNumber) ([]byte, error) {
	bp := charts.NewBoxPlot()
	bp.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:     "900px",
			Height:    "700px",
			PageTitle: title,
		}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithYAxisOpts(opts.YAxis{Name: column}),
	)

	classes := make([]string, len(groups))
	data := make([]opts.BoxPlotData, len(groups))
	for i, g := range groups {
		classes[i] = g.Class
		data[i] = opts.BoxPlotData{
			Name:  g.Class,
			Value: []interface{}{g.Values[0], g.Values[1], g.Values[2], g.Values[3], g.Values[4]},
		}
	}
	bp.SetXAxis(classes).AddSeries(column, data)

	buffer := bytes.NewBuffer([]byte{})
	if err := bp.Render(buffer); err != nil {
		return nil, fmt.Errorf("error rendering boxplot: %v", err)
	}
	return buffer.Bytes(), nil
}
