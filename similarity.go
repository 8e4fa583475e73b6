package rnaqc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// PCA holds the sample projection onto the first two principal components
// of the variance-stabilized count matrix
type PCA struct {
	X, Y   []float64
	VarPct [PCAComponents]float64
	NGenes int
}

// SimilarityPCA filters zero-count genes, variance-stabilizes the counts
// and projects samples onto the first two principal components. It fails
// with ErrDegenerateInput when fewer genes survive filtering than
// components requested, or when there are fewer than two samples.
func SimilarityPCA(m *ExpressionMatrix) (*PCA, error) {
	filtered := m.FilterZeroGenes()
	if filtered.NSamples() < 2 {
		return nil, fmt.Errorf("%w: need at least 2 samples, have %d",
			ErrDegenerateInput, filtered.NSamples())
	}
	if filtered.NGenes() < PCAComponents {
		return nil, fmt.Errorf("%w: %d gene(s) left after filtering, need at least %d",
			ErrDegenerateInput, filtered.NGenes(), PCAComponents)
	}

	t := vstMatrix(filtered)
	nSamples, nGenes := t.Dims()

	var pc stat.PC
	if ok := pc.PrincipalComponents(t, nil); !ok {
		return nil, fmt.Errorf("principal component decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	// Scores are the centered data projected onto the component vectors
	centered := centerColumns(t)
	var proj mat.Dense
	proj.Mul(centered, vecs.Slice(0, nGenes, 0, PCAComponents))

	vars := pc.VarsTo(nil)
	total := floats.Sum(vars)

	result := &PCA{
		X:      make([]float64, nSamples),
		Y:      make([]float64, nSamples),
		NGenes: filtered.NGenes(),
	}
	for s := 0; s < nSamples; s++ {
		result.X[s] = proj.At(s, 0)
		result.Y[s] = proj.At(s, 1)
	}
	for c := 0; c < PCAComponents; c++ {
		result.VarPct[c] = vars[c] / total * 100
	}

	log.Noticef("PCA over %d genes: PC1 %.1f%%, PC2 %.1f%% variance",
		result.NGenes, result.VarPct[0], result.VarPct[1])
	return result, nil
}

// vstMatrix applies the variance-stabilizing transform: counts are scaled
// by median-of-ratios size factors and taken to log2(x + 1), compressing
// the heteroscedastic variance of raw counts before the decomposition.
// Samples are rows of the returned matrix, genes are columns.
func vstMatrix(m *ExpressionMatrix) *mat.Dense {
	sf := sizeFactors(m)
	t := mat.NewDense(m.NSamples(), m.NGenes(), nil)
	for g := 0; g < m.NGenes(); g++ {
		for s := 0; s < m.NSamples(); s++ {
			t.Set(s, g, log2p1(m.At(g, s)/sf[s]))
		}
	}
	return t
}

// centerColumns subtracts each column's mean, so PCA scores spread around
// the origin
func centerColumns(t *mat.Dense) *mat.Dense {
	rows, cols := t.Dims()
	centered := mat.NewDense(rows, cols, nil)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, t)
		mean := floats.Sum(col) / float64(rows)
		for i := 0; i < rows; i++ {
			centered.Set(i, j, col[i]-mean)
		}
	}
	return centered
}

// sizeFactors estimates per-sample scaling with the median-of-ratios
// method: each sample's ratios to the per-gene geometric means, taken over
// genes expressed in every sample. When no such reference genes exist, it
// falls back to relative library size.
func sizeFactors(m *ExpressionMatrix) []float64 {
	nSamples := m.NSamples()
	ratios := make([][]float64, nSamples)
	for g := 0; g < m.NGenes(); g++ {
		logSum := 0.0
		allPositive := true
		for s := 0; s < nSamples; s++ {
			c := m.At(g, s)
			if c <= 0 {
				allPositive = false
				break
			}
			logSum += math.Log(c)
		}
		if !allPositive {
			continue
		}
		geoMean := math.Exp(logSum / float64(nSamples))
		for s := 0; s < nSamples; s++ {
			ratios[s] = append(ratios[s], m.At(g, s)/geoMean)
		}
	}

	sf := make([]float64, nSamples)
	if len(ratios[0]) == 0 {
		// No gene is expressed everywhere; scale by library size instead
		totals := make([]float64, nSamples)
		for g := 0; g < m.NGenes(); g++ {
			for s := 0; s < nSamples; s++ {
				totals[s] += m.At(g, s)
			}
		}
		meanTotal := floats.Sum(totals) / float64(nSamples)
		for s := range sf {
			sf[s] = totals[s] / meanTotal
			if sf[s] <= 0 {
				sf[s] = 1
			}
		}
		return sf
	}
	for s := range sf {
		sf[s] = median(ratios[s])
		if sf[s] <= 0 {
			sf[s] = 1
		}
	}
	return sf
}

// SimilarityChart renders the PC1 vs PC2 sample scatter, points colored by
// category and labeled with sample names, axes carrying the percent
// variance explained and the title reporting the gene count used
func SimilarityChart(m *ExpressionMatrix, samples []SampleMetadata) (string, error) {
	pca, err := SimilarityPCA(m)
	if err != nil {
		return "", err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Sample similarity (PCA, %d genes)", pca.NGenes)
	p.X.Label.Text = fmt.Sprintf("PC1 (%.1f%%)", pca.VarPct[0])
	p.Y.Label.Text = fmt.Sprintf("PC2 (%.1f%%)", pca.VarPct[1])
	p.Add(plotter.NewGrid())

	cats, colorOf := categoryColors(categoriesOf(samples))
	byCat := make(map[string]plotter.XYs)
	for i, s := range samples {
		byCat[s.Category] = append(byCat[s.Category], plotter.XY{X: pca.X[i], Y: pca.Y[i]})
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

	span := maxf(pca.X) - minf(pca.X)
	if span <= 0 {
		span = 1
	}
	xyl := plotter.XYLabels{
		XYs:    make(plotter.XYs, len(samples)),
		Labels: make([]string, len(samples)),
	}
	for i, s := range samples {
		xyl.XYs[i] = plotter.XY{X: pca.X[i] + span*0.01, Y: pca.Y[i]}
		xyl.Labels[i] = s.Sample
	}
	labels, err := plotter.NewLabels(xyl)
	if err != nil {
		return "", err
	}
	p.Add(labels)

	return writeSVG(p, 7*vg.Inch, 5*vg.Inch)
}

// categoriesOf projects the sample sheet to its category labels
func categoriesOf(samples []SampleMetadata) []string {
	cats := make([]string, len(samples))
	for i, s := range samples {
		cats[i] = s.Category
	}
	return cats
}
