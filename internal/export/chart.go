package export

import (
	"fmt"
	"image/color"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/rewired-gh/inclusioncast/internal/models"
)

// ChartOptions controls WriteChart output.
type ChartOptions struct {
	Title      string
	YLabel     string
	TargetLine float64 // drawn as a dashed horizontal line when > 0
	Width      vg.Length
	Height     vg.Length
}

func (o ChartOptions) withDefaults() ChartOptions {
	if o.Title == "" {
		o.Title = "Indicator forecasts"
	}
	if o.YLabel == "" {
		o.YLabel = "Value (%)"
	}
	if o.Width == 0 {
		o.Width = 10 * vg.Inch
	}
	if o.Height == 0 {
		o.Height = 6 * vg.Inch
	}
	return o
}

type seriesKey struct {
	indicator string
	scenario  string
}

// WriteChart renders one line per indicator and scenario to path. The image
// format follows the file extension.
func WriteChart(path string, rows []models.ForecastRow, opts ChartOptions) error {
	if len(rows) == 0 {
		return fmt.Errorf("nothing to plot")
	}
	opts = opts.withDefaults()
	if err := ensureDir(path); err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = "Year"
	p.Y.Label.Text = opts.YLabel
	p.Y.Min, p.Y.Max = 0, 100
	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(plotter.NewGrid())

	var keys []seriesKey
	points := make(map[seriesKey]plotter.XYs)
	minYear, maxYear := rows[0].Year, rows[0].Year
	for _, r := range rows {
		k := seriesKey{r.Indicator, r.Scenario}
		if _, ok := points[k]; !ok {
			keys = append(keys, k)
		}
		points[k] = append(points[k], plotter.XY{X: float64(r.Year), Y: r.Value})
		minYear, maxYear = min(minYear, r.Year), max(maxYear, r.Year)
	}

	for i, k := range keys {
		xys := points[k]
		sort.Slice(xys, func(a, b int) bool { return xys[a].X < xys[b].X })
		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("failed to build line %s/%s: %w", k.indicator, k.scenario, err)
		}
		line.Width = vg.Points(2)
		line.Color = plotutil.Color(i)
		line.Dashes = plotutil.Dashes(i)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s (%s)", k.indicator, k.scenario), line)
	}

	if opts.TargetLine > 0 {
		target := opts.TargetLine
		fn := plotter.NewFunction(func(float64) float64 { return target })
		fn.Color = color.RGBA{R: 200, A: 255}
		fn.Dashes = []vg.Length{vg.Points(5), vg.Points(5)}
		fn.XMin, fn.XMax = float64(minYear), float64(maxYear)
		p.Add(fn)
		p.Legend.Add(fmt.Sprintf("Target %.0f%%", target), fn)
	}

	p.X.Min, p.X.Max = float64(minYear), float64(maxYear)
	if minYear == maxYear {
		p.X.Min, p.X.Max = float64(minYear)-1, float64(maxYear)+1
	}
	p.X.Tick.Marker = yearTicks{}

	if err := p.Save(opts.Width, opts.Height, path); err != nil {
		return fmt.Errorf("failed to save chart %s: %w", path, err)
	}
	return nil
}

// yearTicks labels every whole year in range.
type yearTicks struct{}

func (yearTicks) Ticks(lo, hi float64) []plot.Tick {
	var ticks []plot.Tick
	for y := int(lo); float64(y) <= hi; y++ {
		if float64(y) < lo {
			continue
		}
		ticks = append(ticks, plot.Tick{Value: float64(y), Label: fmt.Sprint(y)})
	}
	return ticks
}
