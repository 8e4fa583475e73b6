package rnaqc_test

import (
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"rnaqc"

	"github.com/kshedden/gonpy"
)

const (
	testSamples = "sample\tcategory\tbatch\n" +
		"S1\tA\tb1\n" +
		"S2\tA\tb1\n" +
		"S3\tB\tb2\n"
	testMetrics = "sample\ttotal_reads\tmapped_reads\texonic_rate\tintronic_rate\tr_rna_rate\tx5_3_bias\n" +
		"S1\t10000000\t9000000\t0.71\t0.20\t0.010\t0.85\n" +
		"S2\t5000000\t4000000\t0.68\t0.22\t0.015\t0.90\n" +
		"S3\t1000000\t500000\t0.55\t0.30\t0.120\t0.60\n"
	testCounts = "Geneid\tS1\tS2\tS3\n" +
		"G1\t5\t3\t1\n" +
		"G2\t0\t0\t0\n" +
		"G3\t2\t0\t4\n" +
		"G4\t1\t1\t0\n"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func makeBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "samples.tsv", testSamples)
	writeFile(t, dir, "metrics.tsv", testMetrics)
	writeFile(t, dir, "counts.tsv", testCounts)
	return dir
}

func TestLoadBundleJoin(t *testing.T) {
	b, err := rnaqc.LoadBundle(makeBundle(t))
	if err != nil {
		t.Fatalf("LoadBundle failed: %v", err)
	}
	if len(b.Metrics) != len(b.Samples) {
		t.Fatalf("Expected %d metrics records, got %d", len(b.Samples), len(b.Metrics))
	}
	wantOrder := []string{"S1", "S2", "S3"}
	wantCats := []string{"A", "A", "B"}
	for i, rec := range b.Metrics {
		if rec.Sample != wantOrder[i] {
			t.Errorf("Record %d: expected sample %s, got %s", i, wantOrder[i], rec.Sample)
		}
		if rec.Category != wantCats[i] {
			t.Errorf("Record %d: expected category %s, got %s", i, wantCats[i], rec.Category)
		}
	}
	if b.Metrics[0].TotalReads != 10000000 || b.Metrics[0].MappedReads != 9000000 {
		t.Errorf("Unexpected read counts for S1: %v", b.Metrics[0])
	}
	if b.Metrics[2].RRNARate != 0.120 {
		t.Errorf("Expected rRNA rate 0.120 for S3, got %g", b.Metrics[2].RRNARate)
	}
	if b.Counts.NGenes() != 4 || b.Counts.NSamples() != 3 {
		t.Errorf("Expected 4x3 count matrix, got %dx%d", b.Counts.NGenes(), b.Counts.NSamples())
	}
	if len(b.Notes) != 0 {
		t.Errorf("Expected no notes, got %v", b.Notes)
	}
}

func TestLoadBundleJoinMismatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "samples.tsv", testSamples)
	// Metrics table lacks a row for S3
	writeFile(t, dir, "metrics.tsv",
		"sample\ttotal_reads\tmapped_reads\texonic_rate\tintronic_rate\tr_rna_rate\tx5_3_bias\n"+
			"S1\t10000000\t9000000\t0.71\t0.20\t0.010\t0.85\n"+
			"S2\t5000000\t4000000\t0.68\t0.22\t0.015\t0.90\n")
	writeFile(t, dir, "counts.tsv", testCounts)

	_, err := rnaqc.LoadBundle(dir)
	if !errors.Is(err, rnaqc.ErrJoinMismatch) {
		t.Fatalf("Expected ErrJoinMismatch, got %v", err)
	}
}

func TestLoadBundleExtraMetricsRow(t *testing.T) {
	dir := makeBundle(t)
	writeFile(t, dir, "metrics.tsv", testMetrics+"S9\t2000000\t1000000\t0.5\t0.3\t0.02\t0.7\n")

	b, err := rnaqc.LoadBundle(dir)
	if err != nil {
		t.Fatalf("LoadBundle failed: %v", err)
	}
	if len(b.Metrics) != 3 {
		t.Errorf("Expected 3 metrics records, got %d", len(b.Metrics))
	}
	if len(b.Notes) != 1 {
		t.Fatalf("Expected 1 note about the orphan metrics row, got %v", b.Notes)
	}
}

func TestLoadBundleMissingColumn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "samples.tsv", testSamples)
	writeFile(t, dir, "metrics.tsv",
		"sample\ttotal_reads\tmapped_reads\texonic_rate\tintronic_rate\tr_rna_rate\n"+
			"S1\t10000000\t9000000\t0.71\t0.20\t0.010\n")
	writeFile(t, dir, "counts.tsv", testCounts)

	_, err := rnaqc.LoadBundle(dir)
	if !errors.Is(err, rnaqc.ErrMalformedBundle) {
		t.Fatalf("Expected ErrMalformedBundle, got %v", err)
	}
}

func TestLoadBundleMissingCounts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "samples.tsv", testSamples)
	writeFile(t, dir, "metrics.tsv", testMetrics)

	_, err := rnaqc.LoadBundle(dir)
	if !errors.Is(err, rnaqc.ErrMalformedBundle) {
		t.Fatalf("Expected ErrMalformedBundle, got %v", err)
	}
}

func TestLoadBundleMissingCountColumn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "samples.tsv", testSamples)
	writeFile(t, dir, "metrics.tsv", testMetrics)
	writeFile(t, dir, "counts.tsv", "Geneid\tS1\tS2\nG1\t5\t3\n")

	_, err := rnaqc.LoadBundle(dir)
	if !errors.Is(err, rnaqc.ErrMalformedBundle) {
		t.Fatalf("Expected ErrMalformedBundle, got %v", err)
	}
}

func TestLoadBundleDuplicateSample(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "samples.tsv", "sample\tcategory\nS1\tA\nS1\tB\n")
	writeFile(t, dir, "metrics.tsv", testMetrics)
	writeFile(t, dir, "counts.tsv", testCounts)

	_, err := rnaqc.LoadBundle(dir)
	if !errors.Is(err, rnaqc.ErrMalformedBundle) {
		t.Fatalf("Expected ErrMalformedBundle, got %v", err)
	}
}

func TestLoadBundleGzip(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "samples.tsv.gz"))
	if err != nil {
		t.Fatal(err)
	}
	gw := gzip.NewWriter(f)
	if _, err := gw.Write([]byte(testSamples)); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "metrics.tsv", testMetrics)
	writeFile(t, dir, "counts.tsv", testCounts)

	b, err := rnaqc.LoadBundle(dir)
	if err != nil {
		t.Fatalf("LoadBundle failed on gzipped sample sheet: %v", err)
	}
	if len(b.Samples) != 3 {
		t.Errorf("Expected 3 samples, got %d", len(b.Samples))
	}
}

func TestLoadBundleNpyLayer(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "samples.tsv", testSamples)
	writeFile(t, dir, "metrics.tsv", testMetrics)
	writeFile(t, dir, "genes.txt", "G1\nG2\nG3\nG4\n")

	w, err := gonpy.NewFileWriter(filepath.Join(dir, "counts.npy"))
	if err != nil {
		t.Fatal(err)
	}
	w.Shape = []int{4, 3}
	data := []float64{
		5, 3, 1,
		0, 0, 0,
		2, 0, 4,
		1, 1, 0,
	}
	if err := w.WriteFloat64(data); err != nil {
		t.Fatal(err)
	}

	b, err := rnaqc.LoadBundle(dir)
	if err != nil {
		t.Fatalf("LoadBundle failed on npy layer: %v", err)
	}
	if b.Counts.NGenes() != 4 || b.Counts.NSamples() != 3 {
		t.Fatalf("Expected 4x3 count matrix, got %dx%d", b.Counts.NGenes(), b.Counts.NSamples())
	}
	if b.Counts.At(2, 2) != 4 {
		t.Errorf("Expected count 4 for G3/S3, got %g", b.Counts.At(2, 2))
	}
}
