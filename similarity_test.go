package rnaqc_test

import (
	"errors"
	"strings"
	"testing"

	"rnaqc"
)

func similarityMatrix() *rnaqc.ExpressionMatrix {
	m := rnaqc.NewExpressionMatrix([]string{"S1", "S2", "S3", "S4"})
	m.AddGene("G1", []float64{120, 110, 8, 10})
	m.AddGene("G2", []float64{80, 95, 5, 4})
	m.AddGene("G3", []float64{15, 12, 200, 180})
	m.AddGene("G4", []float64{3, 2, 40, 55})
	m.AddGene("G5", []float64{0, 0, 0, 0})
	m.AddGene("G6", []float64{60, 70, 65, 72})
	return m
}

func TestSimilarityPCA(t *testing.T) {
	pca, err := rnaqc.SimilarityPCA(similarityMatrix())
	if err != nil {
		t.Fatalf("SimilarityPCA failed: %v", err)
	}
	if pca.NGenes != 5 {
		t.Errorf("Expected 5 genes after filtering, got %d", pca.NGenes)
	}
	if len(pca.X) != 4 || len(pca.Y) != 4 {
		t.Fatalf("Expected 4 sample projections, got %d/%d", len(pca.X), len(pca.Y))
	}
	if pca.VarPct[0] < pca.VarPct[1] {
		t.Errorf("PC1 explains less variance than PC2: %v", pca.VarPct)
	}
	if pca.VarPct[0] <= 0 || pca.VarPct[0] > 100 {
		t.Errorf("PC1 variance out of range: %g", pca.VarPct[0])
	}
}

func TestSimilarityPCASeparatesGroups(t *testing.T) {
	// S1/S2 and S3/S4 have opposite expression profiles; PC1 must place
	// each pair on the same side
	pca, err := rnaqc.SimilarityPCA(similarityMatrix())
	if err != nil {
		t.Fatalf("SimilarityPCA failed: %v", err)
	}
	if (pca.X[0] > 0) != (pca.X[1] > 0) {
		t.Errorf("S1 and S2 fall on opposite sides of PC1: %v", pca.X)
	}
	if (pca.X[2] > 0) != (pca.X[3] > 0) {
		t.Errorf("S3 and S4 fall on opposite sides of PC1: %v", pca.X)
	}
	if (pca.X[0] > 0) == (pca.X[2] > 0) {
		t.Errorf("The two groups are not separated on PC1: %v", pca.X)
	}
}

func TestSimilarityDegenerateOneGene(t *testing.T) {
	m := rnaqc.NewExpressionMatrix([]string{"S1", "S2", "S3"})
	m.AddGene("G1", []float64{5, 3, 1})
	m.AddGene("G2", []float64{0, 0, 0})
	_, err := rnaqc.SimilarityPCA(m)
	if !errors.Is(err, rnaqc.ErrDegenerateInput) {
		t.Fatalf("Expected ErrDegenerateInput for a single surviving gene, got %v", err)
	}
}

func TestSimilarityDegenerateSamples(t *testing.T) {
	m := rnaqc.NewExpressionMatrix([]string{"S1"})
	m.AddGene("G1", []float64{5})
	m.AddGene("G2", []float64{3})
	_, err := rnaqc.SimilarityPCA(m)
	if !errors.Is(err, rnaqc.ErrDegenerateInput) {
		t.Fatalf("Expected ErrDegenerateInput for a single sample, got %v", err)
	}
}

func TestSimilarityChartRenders(t *testing.T) {
	samples := []rnaqc.SampleMetadata{
		{Sample: "S1", Category: "A"},
		{Sample: "S2", Category: "A"},
		{Sample: "S3", Category: "B"},
		{Sample: "S4", Category: "B"},
	}
	svg, err := rnaqc.SimilarityChart(similarityMatrix(), samples)
	if err != nil {
		t.Fatalf("SimilarityChart failed: %v", err)
	}
	if !strings.Contains(svg, "<svg") {
		t.Error("Similarity chart did not produce SVG")
	}
	if !strings.Contains(svg, "PC1") || !strings.Contains(svg, "PC2") {
		t.Error("Similarity chart axes are missing component labels")
	}
	if !strings.Contains(svg, "5 genes") {
		t.Error("Similarity chart title does not report the filtered gene count")
	}
}
