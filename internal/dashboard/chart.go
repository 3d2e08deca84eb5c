package dashboard

import (
	"fmt"
	"math"
	"strings"

	"email-monitor-go/internal/models"
)

const (
	DefaultChartWidth  = 960
	DefaultChartHeight = 256

	padLeft   = 40.0
	padRight  = 12.0
	padTop    = 10.0
	padBottom = 24.0

	maxXLabels = 6
)

// Point is a data point in chart coordinates
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Value int64   `json:"value"`
	Label string  `json:"label"`
}

// Tick is an axis label
type Tick struct {
	Pos   float64 `json:"pos"`
	Label string  `json:"label"`
}

// Chart is the SVG geometry of the hourly volume area chart
type Chart struct {
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Baseline float64 `json:"baseline"`
	Line     string  `json:"line"`
	Area     string  `json:"area"`
	YMax     int64   `json:"y_max"`
	YTicks   []Tick  `json:"y_ticks"`
	XTicks   []Tick  `json:"x_ticks"`
	Points   []Point `json:"points"`
	Empty    bool    `json:"empty"`
}

// BuildChart lays out the series totals inside a width x height box
func BuildChart(series []models.SeriesPoint, width, height float64) Chart {
	c := Chart{Width: width, Height: height, Baseline: height - padBottom}
	if len(series) == 0 {
		c.Empty = true
		c.YMax = 1
		c.YTicks = yTicks(1, height)
		return c
	}

	var peak int64
	for _, p := range series {
		if p.Total > peak {
			peak = p.Total
		}
	}
	c.YMax = niceCeil(peak)
	c.YTicks = yTicks(c.YMax, height)

	plotW := width - padLeft - padRight
	plotH := height - padTop - padBottom
	step := 0.0
	if len(series) > 1 {
		step = plotW / float64(len(series)-1)
	}

	var line strings.Builder
	c.Points = make([]Point, 0, len(series))
	for i, p := range series {
		x := padLeft + float64(i)*step
		if len(series) == 1 {
			x = padLeft + plotW/2
		}
		y := padTop + plotH*(1-float64(p.Total)/float64(c.YMax))
		pt := Point{X: round2(x), Y: round2(y), Value: p.Total, Label: p.Bucket.UTC().Format("15:04")}
		c.Points = append(c.Points, pt)

		cmd := "L"
		if i == 0 {
			cmd = "M"
		}
		fmt.Fprintf(&line, "%s%s,%s ", cmd, num(pt.X), num(pt.Y))
	}
	c.Line = strings.TrimSpace(line.String())

	first, last := c.Points[0], c.Points[len(c.Points)-1]
	c.Area = fmt.Sprintf("%s L%s,%s L%s,%s Z", c.Line, num(last.X), num(c.Baseline), num(first.X), num(c.Baseline))

	every := int(math.Ceil(float64(len(c.Points)) / maxXLabels))
	for i := 0; i < len(c.Points); i += every {
		c.XTicks = append(c.XTicks, Tick{Pos: c.Points[i].X, Label: c.Points[i].Label})
	}
	return c
}

// niceCeil rounds v up to 1, 2 or 5 times a power of ten
func niceCeil(v int64) int64 {
	if v <= 1 {
		return 1
	}
	magnitude := int64(1)
	for magnitude*10 <= v {
		magnitude *= 10
	}
	for _, f := range []int64{1, 2, 5, 10} {
		if f*magnitude >= v {
			return f * magnitude
		}
	}
	return 10 * magnitude
}

func yTicks(yMax int64, height float64) []Tick {
	plotH := height - padTop - padBottom
	n := yMax
	switch {
	case yMax%5 == 0:
		n = 5
	case yMax%4 == 0:
		n = 4
	}
	ticks := make([]Tick, 0, n+1)
	for i := int64(0); i <= n; i++ {
		v := yMax * i / n
		ticks = append(ticks, Tick{
			Pos:   round2(padTop + plotH*(1-float64(v)/float64(yMax))),
			Label: fmt.Sprintf("%d", v),
		})
	}
	return ticks
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func num(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}
