package rnaqc

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// chartColors is the fixed palette cycled over experimental categories,
// assigned in order of first appearance in the sample sheet
var chartColors = []color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 214, G: 39, B: 40, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
	{R: 140, G: 86, B: 75, A: 255},
	{R: 227, G: 119, B: 194, A: 255},
	{R: 127, G: 127, B: 127, A: 255},
}

// categoryColors assigns each category a palette color by first appearance
func categoryColors(cats []string) ([]string, map[string]color.RGBA) {
	var order []string
	colorOf := make(map[string]color.RGBA)
	for _, cat := range cats {
		if _, ok := colorOf[cat]; !ok {
			colorOf[cat] = chartColors[len(order)%len(chartColors)]
			order = append(order, cat)
		}
	}
	return order, colorOf
}

// recCategories projects the metrics table to its category labels
func recCategories(recs []MetricsRecord) []string {
	cats := make([]string, len(recs))
	for i, r := range recs {
		cats[i] = r.Category
	}
	return cats
}

// rankDescending orders samples by decreasing metric value. The sort is
// stable so samples with equal values keep their sample sheet order.
func rankDescending(recs []MetricsRecord, value func(MetricsRecord) float64) []MetricsRecord {
	ranked := make([]MetricsRecord, len(recs))
	copy(ranked, recs)
	sort.SliceStable(ranked, func(i, j int) bool {
		return value(ranked[i]) > value(ranked[j])
	})
	return ranked
}

// barChart describes one ranked diagnostic dimension. value extracts the
// plotted quantity, label formats the annotation placed just beyond the bar
// end, and axisMax (given the full plotted series) bounds the value axis;
// a nil axisMax leaves headroom above the largest bar.
type barChart struct {
	title   string
	axis    string
	value   func(MetricsRecord) float64
	label   func(MetricsRecord) string
	axisMax func(values []float64) float64
}

// render draws the ranked horizontal bar chart as an SVG string. Bars are
// colored by category and the top-ranked sample sits at the top.
func (c barChart) render(recs []MetricsRecord) (string, error) {
	if len(recs) == 0 {
		return "", fmt.Errorf("%s: no samples to plot", c.title)
	}

	ranked := rankDescending(recs, c.value)
	// NominalY places index 0 at the bottom; flip so rank 1 draws on top
	display := make([]MetricsRecord, len(ranked))
	for i, r := range ranked {
		display[len(ranked)-1-i] = r
	}

	values := make([]float64, len(display))
	names := make([]string, len(display))
	for i, r := range display {
		values[i] = c.value(r)
		names[i] = r.Sample
	}
	axisMax := defaultAxisMax(values)
	if c.axisMax != nil {
		axisMax = c.axisMax(values)
	}

	p := plot.New()
	p.Title.Text = c.title
	p.X.Label.Text = c.axis
	p.X.Min = 0
	p.X.Max = axisMax

	cats, colorOf := categoryColors(recCategories(recs))
	for _, cat := range cats {
		vals := make(plotter.Values, len(display))
		for i, r := range display {
			if r.Category == cat {
				vals[i] = values[i]
			}
		}
		bars, err := plotter.NewBarChart(vals, vg.Points(12))
		if err != nil {
			return "", err
		}
		bars.Horizontal = true
		bars.Color = colorOf[cat]
		bars.LineStyle.Width = 0
		p.Add(bars)
		p.Legend.Add(cat, bars)
	}
	p.NominalY(names...)
	p.Legend.Top = true

	labels, err := barLabels(display, values, axisMax, c.label)
	if err != nil {
		return "", err
	}
	p.Add(labels)

	return writeSVG(p, 8*vg.Inch, barChartHeight(len(display)))
}

// barLabels builds the per-bar annotations, positioned just beyond the bar
// end at one percent of the axis range
func barLabels(display []MetricsRecord, values []float64, axisMax float64,
	label func(MetricsRecord) string) (*plotter.Labels, error) {
	pad := axisMax * 0.01
	xyl := plotter.XYLabels{
		XYs:    make(plotter.XYs, len(display)),
		Labels: make([]string, len(display)),
	}
	for i, r := range display {
		xyl.XYs[i] = plotter.XY{X: values[i] + pad, Y: float64(i)}
		xyl.Labels[i] = label(r)
	}
	return plotter.NewLabels(xyl)
}

// defaultAxisMax leaves room above the largest bar for its label
func defaultAxisMax(values []float64) float64 {
	m := maxf(values)
	if m <= 0 {
		return 1
	}
	return m * 1.15
}

// barChartHeight scales the canvas with the number of samples
func barChartHeight(n int) vg.Length {
	h := vg.Length(1.2+0.35*float64(n)) * vg.Inch
	if h < 3*vg.Inch {
		h = 3 * vg.Inch
	}
	return h
}

// writeSVG renders a plot into an inline SVG string
func writeSVG(p *plot.Plot, w, h vg.Length) (string, error) {
	var buf bytes.Buffer
	writer, err := p.WriterTo(w, h, "svg")
	if err != nil {
		return "", err
	}
	if _, err := writer.WriteTo(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// floorLabel truncates a value to its integer part
func floorLabel(v float64) string {
	return strconv.Itoa(int(math.Floor(v)))
}

// exactLabel prints a value without rounding
func exactLabel(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// twoDecimalLabel rounds a value to two decimals
func twoDecimalLabel(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// rRNAAxisMax bounds the rRNA axis above the worst contamination outlier
func rRNAAxisMax(values []float64) float64 {
	return maxf(values) + RRNAHeadroom
}

// TotalReadsChart ranks samples by sequencing depth, in millions of reads
func TotalReadsChart(recs []MetricsRecord) (string, error) {
	return barChart{
		title: "Total reads",
		axis:  "Total reads (millions)",
		value: func(r MetricsRecord) float64 { return r.TotalReads / 1e6 },
		label: func(r MetricsRecord) string { return floorLabel(r.TotalReads / 1e6) },
	}.render(recs)
}

// MappedReadsChart ranks samples by the absolute number of mapped reads
func MappedReadsChart(recs []MetricsRecord) (string, error) {
	return barChart{
		title: "Mapped reads",
		axis:  "Mapped reads (millions)",
		value: func(r MetricsRecord) float64 { return r.MappedReads / 1e6 },
		label: func(r MetricsRecord) string { return floorLabel(r.MappedReads / 1e6) },
	}.render(recs)
}

// MappingRateChart ranks samples by the fraction of reads mapped
func MappingRateChart(recs []MetricsRecord) (string, error) {
	return barChart{
		title: "Mapping rate",
		axis:  "Mapped / total reads",
		value: func(r MetricsRecord) float64 { return r.MappedPct },
		label: func(r MetricsRecord) string {
			return fmt.Sprintf("%.2f%%", r.MappedPct*100)
		},
		axisMax: func([]float64) float64 { return 1.05 },
	}.render(recs)
}

// GenesDetectedChart ranks samples by the number of genes with nonzero counts
func GenesDetectedChart(recs []MetricsRecord) (string, error) {
	return barChart{
		title:   "Genes detected",
		axis:    "Genes with nonzero counts",
		value:   func(r MetricsRecord) float64 { return float64(r.NGenes) },
		label:   func(r MetricsRecord) string { return strconv.Itoa(r.NGenes) },
		axisMax: func([]float64) float64 { return GenesDetectedCap },
	}.render(recs)
}

// ExonicRateChart ranks samples by the percentage of exonic reads
func ExonicRateChart(recs []MetricsRecord) (string, error) {
	return barChart{
		title: "Exonic rate",
		axis:  "Exonic reads (%)",
		value: func(r MetricsRecord) float64 { return r.ExonicRate * 100 },
		label: func(r MetricsRecord) string { return floorLabel(r.ExonicRate * 100) },
	}.render(recs)
}

// IntronicRateChart ranks samples by the percentage of intronic reads
func IntronicRateChart(recs []MetricsRecord) (string, error) {
	return barChart{
		title: "Intronic rate",
		axis:  "Intronic reads (%)",
		value: func(r MetricsRecord) float64 { return r.IntronicRate * 100 },
		label: func(r MetricsRecord) string { return floorLabel(r.IntronicRate * 100) },
	}.render(recs)
}

// RRNARateChart ranks samples by ribosomal RNA contamination
func RRNARateChart(recs []MetricsRecord) (string, error) {
	return barChart{
		title:   "rRNA rate",
		axis:    "rRNA reads (%)",
		value:   func(r MetricsRecord) float64 { return r.RRNARate * 100 },
		label:   func(r MetricsRecord) string { return twoDecimalLabel(r.RRNARate * 100) },
		axisMax: rRNAAxisMax,
	}.render(recs)
}

// Bias53Chart ranks samples by positional coverage skew along transcripts
func Bias53Chart(recs []MetricsRecord) (string, error) {
	return barChart{
		title:   "5'-3' bias",
		axis:    "5'-3' bias",
		value:   func(r MetricsRecord) float64 { return r.Bias53 },
		label:   func(r MetricsRecord) string { return exactLabel(r.Bias53) },
		axisMax: func([]float64) float64 { return BiasAxisMax },
	}.render(recs)
}

// SaturationChart plots genes detected against log10 sequencing depth, one
// labeled point per sample. No ranking applies; it is a point cloud used to
// judge whether deeper sequencing would still discover new genes.
func SaturationChart(recs []MetricsRecord) (string, error) {
	if len(recs) == 0 {
		return "", fmt.Errorf("gene detection saturation: no samples to plot")
	}

	p := plot.New()
	p.Title.Text = "Gene detection saturation"
	p.X.Label.Text = "log10(total reads)"
	p.Y.Label.Text = "Genes detected"
	p.Add(plotter.NewGrid())

	cats, colorOf := categoryColors(recCategories(recs))
	byCat := make(map[string]plotter.XYs)
	for _, r := range recs {
		byCat[r.Category] = append(byCat[r.Category], plotter.XY{
			X: math.Log10(r.TotalReads),
			Y: float64(r.NGenes),
		})
	}
	for _, cat := range cats {
		sc, err := plotter.NewScatter(byCat[cat])
		if err != nil {
			return "", err
		}
		sc.GlyphStyle = draw.GlyphStyle{
			Color:  colorOf[cat],
			Radius: vg.Points(4),
			Shape:  draw.CircleGlyph{},
		}
		p.Add(sc)
		p.Legend.Add(cat, sc)
	}
	p.Legend.Top = true

	// Nudge each label off its point so adjacent samples stay readable
	xyl := plotter.XYLabels{
		XYs:    make(plotter.XYs, len(recs)),
		Labels: make([]string, len(recs)),
	}
	for i, r := range recs {
		xyl.XYs[i] = plotter.XY{
			X: math.Log10(r.TotalReads) + 0.01,
			Y: float64(r.NGenes),
		}
		xyl.Labels[i] = r.Sample
	}
	labels, err := plotter.NewLabels(xyl)
	if err != nil {
		return "", err
	}
	p.Add(labels)

	return writeSVG(p, 7*vg.Inch, 5*vg.Inch)
}

// CountDistributionChart draws one box per sample of log2(count + 1) across
// all genes surviving the zero-count filter, boxes colored by category
func CountDistributionChart(m *ExpressionMatrix, recs []MetricsRecord) (string, error) {
	filtered := m.FilterZeroGenes()
	if filtered.NGenes() == 0 {
		return "", fmt.Errorf("count distribution: no genes with nonzero counts")
	}

	catOf := make(map[string]string, len(recs))
	for _, r := range recs {
		catOf[r.Sample] = r.Category
	}
	_, colorOf := categoryColors(recCategories(recs))

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Counts per gene (%d genes)", filtered.NGenes())
	p.Y.Label.Text = "log2(count + 1)"

	for s, name := range filtered.Samples {
		box, err := plotter.NewBoxPlot(vg.Points(16), float64(s),
			plotter.Values(filtered.Log2Column(s)))
		if err != nil {
			return "", err
		}
		box.FillColor = colorOf[catOf[name]]
		p.Add(box)
	}
	p.NominalX(filtered.Samples...)

	return writeSVG(p, boxChartWidth(filtered.NSamples()), 4*vg.Inch)
}

// boxChartWidth scales the canvas with the number of samples
func boxChartWidth(n int) vg.Length {
	w := vg.Length(1.5+0.45*float64(n)) * vg.Inch
	if w < 5*vg.Inch {
		w = 5 * vg.Inch
	}
	return w
}
