package report

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/golang/geo/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// viridis is the colour ramp used for the scatter visual map.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// WriteHistogramPNG renders a histogram of values with the given number of
// bins and writes it to w as PNG.
func WriteHistogramPNG(w io.Writer, title, xLabel string, values []float64, bins int) error {
	if len(values) == 0 {
		return ErrNoData
	}
	if bins <= 0 {
		return fmt.Errorf("report: bins must be positive, got %d", bins)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "Points"

	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	p.Add(h)

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// RenderScatterHTML writes an HTML page with a top-down (X/Y) scatter of
// points, coloured by the Z component of each normal. At most maxPoints
// points are drawn; larger clouds are decimated with a fixed stride. A
// non-positive maxPoints draws everything.
func RenderScatterHTML(w io.Writer, title string, points, normals []r3.Vector, maxPoints int) error {
	if len(points) == 0 {
		return ErrNoData
	}
	if normals != nil && len(normals) != len(points) {
		return fmt.Errorf("report: %d points but %d normals", len(points), len(normals))
	}

	stride := 1
	if maxPoints > 0 && len(points) > maxPoints {
		stride = (len(points) + maxPoints - 1) / maxPoints
	}

	pad := 0.0
	data := make([]opts.ScatterData, 0, len(points)/stride+1)
	for i := 0; i < len(points); i += stride {
		p := points[i]
		nz := 0.0
		if normals != nil {
			nz = normals[i].Z
		}
		pad = math.Max(pad, math.Max(math.Abs(p.X), math.Abs(p.Y)))
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, nz}})
	}
	if pad == 0 {
		pad = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("points=%d stride=%d colour=normal z", len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        -1,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("points", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
