package render

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"go.uber.org/zap"

	"loud-plotter/internal/model"
	"loud-plotter/internal/service"
)

// 按窗口顺序的曲线颜色：b, r, y, g，之后的窗口用 c, m
var palette = []drawing.Color{
	{R: 0, G: 0, B: 255, A: 255},
	{R: 255, G: 0, B: 0, A: 255},
	{R: 191, G: 191, B: 0, A: 255},
	{R: 0, G: 128, B: 0, A: 255},
	{R: 0, G: 191, B: 191, A: 255},
	{R: 191, G: 0, B: 191, A: 255},
}

func colorFor(i int) drawing.Color {
	return palette[i%len(palette)]
}

// seriesStyle 点线 + 圆点标记
func seriesStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeColor:     col,
		StrokeWidth:     1,
		StrokeDashArray: []float64{1, 3},
		DotColor:        col,
		DotWidth:        4,
	}
}

// thresholdStyle 固件阈值参考线
func thresholdStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeColor:     col.WithAlpha(110),
		StrokeWidth:     1,
		StrokeDashArray: []float64{6, 4},
	}
}

// Options 图表输出参数
type Options struct {
	OutputPath     string
	Width          int
	Height         int
	Title          string
	ShowThresholds bool
	Thresholds     map[model.Window]int64 // 原始累加值，画在 raw/window 处
}

// OptionsFromConfig 从 PlotConfig 构造 Options
func OptionsFromConfig(cfg service.PlotConfig) Options {
	thresholds := make(map[model.Window]int64, len(cfg.Thresholds))
	for _, t := range cfg.Thresholds {
		thresholds[model.Window(t.Window)] = t.Raw
	}
	return Options{
		OutputPath:     cfg.OutputPath,
		Width:          cfg.Width,
		Height:         cfg.Height,
		Title:          cfg.Title,
		ShowThresholds: cfg.ShowThresholds,
		Thresholds:     thresholds,
	}
}

// ChartRenderer 把每个窗口最新的点序列画成对数纵轴的 PNG
type ChartRenderer struct {
	opts          Options
	windows       []model.Window
	series        map[model.Window][]model.Point
	legendPlotted bool
	logger        *zap.Logger
}

// NewChartRenderer windows 决定曲线顺序和颜色
func NewChartRenderer(opts Options, windows []model.Window, logger *zap.Logger) *ChartRenderer {
	return &ChartRenderer{
		opts:    opts,
		windows: windows,
		series:  make(map[model.Window][]model.Point, len(windows)),
		logger:  logger,
	}
}

// Redraw 实现 Renderer
// 还没有可画的正值点时不输出文件
func (r *ChartRenderer) Redraw(updates ...model.Update) error {
	for _, u := range updates {
		r.series[u.Window] = u.Points
	}

	c, ok := r.Chart()
	if !ok {
		r.logger.Debug("Nothing plottable yet, skipping redraw")
		return nil
	}

	var buf bytes.Buffer
	if err := c.Render(chart.PNG, &buf); err != nil {
		return errors.Wrap(err, "render chart")
	}
	if err := writeFileAtomic(r.opts.OutputPath, buf.Bytes()); err != nil {
		return err
	}

	if !r.legendPlotted {
		r.legendPlotted = true
		r.logger.Info("Chart legend attached", zap.String("Output", r.opts.OutputPath))
	}
	return nil
}

// LegendPlotted 第一次成功重绘之后为 true
func (r *ChartRenderer) LegendPlotted() bool {
	return r.legendPlotted
}

// Chart 根据当前序列构建图表，纵轴值是 log10(scaled)
// 对数轴画不了非正值，这些点只在图上省略
func (r *ChartRenderer) Chart() (*chart.Chart, bool) {
	var (
		series     []chart.Series
		plotted    []int
		xMin, xMax = math.Inf(1), math.Inf(-1)
		yMin, yMax = math.Inf(1), math.Inf(-1)
	)

	for i, w := range r.windows {
		xs, ys := logPoints(r.series[w])
		if len(xs) == 0 {
			continue
		}
		for j := range xs {
			xMin, xMax = math.Min(xMin, xs[j]), math.Max(xMax, xs[j])
			yMin, yMax = math.Min(yMin, ys[j]), math.Max(yMax, ys[j])
		}
		plotted = append(plotted, i)
		series = append(series, chart.ContinuousSeries{
			Name:    w.Label(),
			XValues: xs,
			YValues: ys,
			Style:   seriesStyle(colorFor(i)),
		})
	}
	if len(series) == 0 {
		return nil, false
	}
	if xMin == xMax {
		xMin, xMax = xMin-1, xMax+1
	}

	if r.opts.ShowThresholds {
		for _, i := range plotted {
			w := r.windows[i]
			raw, ok := r.opts.Thresholds[w]
			if !ok || raw <= 0 {
				continue
			}
			y := math.Log10(float64(raw) / float64(w))
			yMin, yMax = math.Min(yMin, y), math.Max(yMax, y)
			series = append(series, chart.ContinuousSeries{
				Name:    fmt.Sprintf("%d threshold", w),
				XValues: []float64{xMin, xMax},
				YValues: []float64{y, y},
				Style:   thresholdStyle(colorFor(i)),
			})
		}
	}

	lo, hi := math.Floor(yMin), math.Ceil(yMax)
	if lo == hi {
		hi = lo + 1
	}

	c := &chart.Chart{
		Title:      r.opts.Title,
		Width:      r.opts.Width,
		Height:     r.opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           "Time (s)",
			Range:          &chart.ContinuousRange{Min: xMin, Max: xMax},
			ValueFormatter: secondsFormatter,
		},
		YAxis: chart.YAxis{
			Name:  "Scaled ADC value",
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
			Ticks: decadeTicks(lo, hi),
		},
		Series: series,
	}
	c.Elements = []chart.Renderable{chart.Legend(c)}
	return c, true
}

// logPoints 过滤掉非正值并取 log10
func logPoints(points []model.Point) ([]float64, []float64) {
	xs := make([]float64, 0, len(points))
	ys := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Value <= 0 || math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		xs = append(xs, p.Time)
		ys = append(ys, math.Log10(p.Value))
	}
	return xs, ys
}

// decadeTicks 在 [lo, hi] 的每个整数指数处放一个刻度，标签是原始值
func decadeTicks(lo, hi float64) []chart.Tick {
	var ticks []chart.Tick
	for k := lo; k <= hi; k++ {
		ticks = append(ticks, chart.Tick{Value: k, Label: strconv.FormatFloat(math.Pow(10, k), 'g', -1, 64)})
	}
	return ticks
}

func secondsFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return fmt.Sprint(v)
}

// writeFileAtomic 先写临时文件再 rename，查看器不会读到半张图
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create output dir %s", dir)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "write temp file")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "rename to %s", path)
	}
	return nil
}
