package export

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	anomaly "coldstorage/internal/anomaly/domain"
)

// RenderChartHTML renders an interactive line chart of temperature, baseline
// and the bound envelope.
func RenderChartHTML(r Report) ([]byte, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sensor " + r.SensorID, Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{Title: "Sensor " + r.SensorID, Subtitle: fmt.Sprintf("state=%s samples=%d", r.Snapshot.State, r.Snapshot.SampleCount)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "time", Name: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "temperature"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)

	var upper, lower []opts.LineData
	for _, b := range r.Snapshot.Bounds {
		if b.Placeholder {
			continue
		}
		upper = append(upper, lineValue(b.TS, b.Upper))
		lower = append(lower, lineValue(b.TS, b.Lower))
	}
	line.AddSeries("temperature", lineData(r.Snapshot.Temperature)).
		AddSeries("baseline", lineData(r.Snapshot.Baseline)).
		AddSeries("upper", upper).
		AddSeries("lower", lower)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lineData(points []anomaly.Point) []opts.LineData {
	out := make([]opts.LineData, len(points))
	for i, p := range points {
		out[i] = lineValue(p.TS, p.Value)
	}
	return out
}

func lineValue(ts int64, v float64) opts.LineData {
	return opts.LineData{Value: []interface{}{ts * 1000, v}}
}
