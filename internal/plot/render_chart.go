package plot

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

func renderHistogramPNG(title string, edges []float64, counts []int64) ([]byte, error) {
	bars := make([]chart.Value, len(counts))
	for i, c := range counts {
		bars[i] = chart.Value{
			Value: float64(c),
			Label: fmt.Sprintf("%.4g-%.4g", edges[i], edges[i+1]),
		}
	}

	graph := chart.BarChart{
		Title: title,
		Background: chart.Style{
			FillColor:   drawing.ColorWhite,
			StrokeColor: drawing.ColorFromHex("efefef"),
			StrokeWidth: 1,
			Padding: chart.Box{
				Top:    50,
				Bottom: 120,
			},
		},
		Height:   1024,
		Width:    2048,
		BarWidth: 30,
		Bars:     bars,
		XAxis: chart.Style{
			TextRotationDegrees: 88,
		},
		YAxis: chart.YAxis{
			Name: "Frequency",
		},
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("error rendering chart: %v", err)
	}
	return buffer.Bytes(), nil
}

func renderTimeSeriesPNG(title string, labels []string, counts []int64) ([]byte, error) {
	bars := make([]chart.Value, len(counts))
	for i, c := range counts {
		bars[i] = chart.Value{
			Value: float64(c),
			Label: labels[i],
		}
	}

	graph := chart.BarChart{
		Title: title,
		Background: chart.Style{
			FillColor:   drawing.ColorWhite,
			StrokeColor: drawing.ColorFromHex("efefef"),
			StrokeWidth: 1,
			Padding: chart.Box{
				Top:    50,
				Bottom: 140,
			},
		},
		Height:   1024,
		Width:    2048,
		BarWidth: 30,
		Bars:     bars,
		XAxis: chart.Style{
			TextRotationDegrees: 88,
		},
		YAxis: chart.YAxis{
			Name: "Count",
		},
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("error rendering time series chart: %v", err)
	}
	return buffer.Bytes(), nil
}

func renderScatterPNG(title string, points map[string][][2]float64) ([]byte, error) {
	classes := make([]string, 0, len(points))
	for class := range points {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	series := make([]chart.Series, 0, len(classes))
	for i, class := range classes {
		pts := points[class]
		xs := make([]float64, len(pts))
		ys := make([]float64, len(pts))
		for j, p := range pts {
			xs[j] = p[0]
			ys[j] = p[1]
		}
		series = append(series, chart.ContinuousSeries{
			Name:    class,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    3,
				DotColor:    chart.GetDefaultColor(i),
			},
		})
	}

	graph := chart.Chart{
		Title: title,
		Background: chart.Style{
			FillColor:   drawing.ColorWhite,
			StrokeColor: drawing.ColorFromHex("efefef"),
			StrokeWidth: 1,
			Padding: chart.Box{
				Top: 50,
			},
		},
		Height: 1024,
		Width:  2048,
		XAxis: chart.XAxis{
			Name: "PC1",
		},
		YAxis: chart.YAxis{
			Name: "PC2",
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("error rendering scatter chart: %v", err)
	}
	return buffer.Bytes(), nil
}
