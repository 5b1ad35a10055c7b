package views

import (
	"strconv"
	"strings"
)

// Chart geometry in SVG user units.
const (
	chartWidth   = 480
	chartHeight  = 200
	chartPadding = 24
)

// Reference lines drawn across the progress chart.
const (
	GoodLine = 70
	PoorLine = 40
)

// Dot is one plotted score.
type Dot struct {
	X, Y  int
	Score int
	Turn  int
}

// Chart is the score history laid out for an inline SVG polyline.
type Chart struct {
	Width, Height int
	Points        string
	Dots          []Dot
	GoodY, PoorY  int
	Left, Right   int
}

// NewChart lays out scores left to right, 0 at the bottom and 100 at the top.
func NewChart(scores []int) Chart {
	c := Chart{
		Width:  chartWidth,
		Height: chartHeight,
		GoodY:  scoreY(GoodLine),
		PoorY:  scoreY(PoorLine),
		Left:   chartPadding,
		Right:  chartWidth - chartPadding,
	}
	if len(scores) == 0 {
		return c
	}

	step := 0
	if len(scores) > 1 {
		step = (chartWidth - 2*chartPadding) / (len(scores) - 1)
	}
	pts := make([]string, 0, len(scores))
	for i, s := range scores {
		d := Dot{X: chartPadding + i*step, Y: scoreY(s), Score: s, Turn: i + 1}
		c.Dots = append(c.Dots, d)
		pts = append(pts, strconv.Itoa(d.X)+","+strconv.Itoa(d.Y))
	}
	c.Points = strings.Join(pts, " ")
	return c
}

func scoreY(score int) int {
	return chartPadding + (100-score)*(chartHeight-2*chartPadding)/100
}
