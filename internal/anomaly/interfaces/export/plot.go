package export

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	anomaly "coldstorage/internal/anomaly/domain"
)

var (
	temperatureColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	baselineColor    = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	boundColor       = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	markerColor      = color.RGBA{R: 127, G: 127, B: 127, A: 255}
	limitColor       = color.RGBA{R: 255, G: 127, B: 14, A: 255}
)

// RenderPlotPNG draws temperature, baseline and the bound envelope. A dashed
// vertical marker shows the reporting delay and a horizontal line the storage
// maximum temperature.
func RenderPlotPNG(r Report, width, height vg.Length) ([]byte, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	if width <= 0 {
		width = 14 * vg.Inch
	}
	if height <= 0 {
		height = 6 * vg.Inch
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Sensor %s", r.SensorID)
	p.X.Label.Text = "time (UTC)"
	p.Y.Label.Text = "temperature"
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02 15:04"}
	p.Legend.Top = true

	temp := pointsXY(r.Snapshot.Temperature)
	baseline := pointsXY(r.Snapshot.Baseline)
	upper, lower := boundsXY(r.Snapshot.Bounds)

	series := []struct {
		name   string
		pts    plotter.XYs
		color  color.Color
		dashed bool
	}{
		{"temperature", temp, temperatureColor, false},
		{"baseline", baseline, baselineColor, false},
		{"upper", upper, boundColor, true},
		{"lower", lower, boundColor, true},
	}
	for _, s := range series {
		if len(s.pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return nil, fmt.Errorf("export: %s line: %w", s.name, err)
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		if s.dashed {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	ys := yValues(temp, baseline, upper, lower)
	ymin, ymax := floats.Min(ys), floats.Max(ys)
	if r.MaxTemp > ymax {
		ymax = r.MaxTemp
	}
	xmin, xmax := temp[0].X, temp[len(temp)-1].X

	limit, err := plotter.NewLine(plotter.XYs{{X: xmin, Y: r.MaxTemp}, {X: xmax, Y: r.MaxTemp}})
	if err != nil {
		return nil, fmt.Errorf("export: limit line: %w", err)
	}
	limit.Color = limitColor
	limit.Width = vg.Points(1)
	p.Add(limit)
	p.Legend.Add("storage max", limit)

	delayAt := xmax - r.Config.Delay.Seconds()
	if delayAt > xmin {
		marker, err := plotter.NewLine(plotter.XYs{{X: delayAt, Y: ymin}, {X: delayAt, Y: ymax}})
		if err != nil {
			return nil, fmt.Errorf("export: delay marker: %w", err)
		}
		marker.Color = markerColor
		marker.Width = vg.Points(1)
		marker.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
		p.Add(marker)
		p.Legend.Add("delay", marker)
	}

	writer, err := p.WriterTo(width, height, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := writer.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func pointsXY(points []anomaly.Point) plotter.XYs {
	out := make(plotter.XYs, len(points))
	for i, p := range points {
		out[i] = plotter.XY{X: float64(p.TS), Y: p.Value}
	}
	return out
}

func boundsXY(bounds []anomaly.Bound) (plotter.XYs, plotter.XYs) {
	upper := make(plotter.XYs, 0, len(bounds))
	lower := make(plotter.XYs, 0, len(bounds))
	for _, b := range bounds {
		if b.Placeholder {
			continue
		}
		upper = append(upper, plotter.XY{X: float64(b.TS), Y: b.Upper})
		lower = append(lower, plotter.XY{X: float64(b.TS), Y: b.Lower})
	}
	return upper, lower
}

func yValues(sets ...plotter.XYs) []float64 {
	var out []float64
	for _, set := range sets {
		for _, p := range set {
			out = append(out, p.Y)
		}
	}
	return out
}
