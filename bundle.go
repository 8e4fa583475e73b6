package rnaqc

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kshedden/gonpy"
	"github.com/shenwei356/xopen"
)

// Bundle file names, each optionally gzipped with a .gz suffix. The counts
// layer is either the TSV matrix or the npy matrix plus gene list.
const (
	SamplesFile   = "samples.tsv"
	MetricsFile   = "metrics.tsv"
	CountsTSVFile = "counts.tsv"
	CountsNpyFile = "counts.npy"
	GenesFile     = "genes.txt"
)

// SampleMetadata is one sample sheet row, projected to the two columns the
// report uses. Rows keep their sample sheet order throughout the run.
type SampleMetadata struct {
	Sample   string
	Category string
}

// MetricsRecord carries the per-sample metrics: the upstream alignment
// metrics joined from the metrics table, plus the fields derived here
// (MappedPct and NGenes, filled in by Derive).
type MetricsRecord struct {
	Sample       string
	Category     string
	TotalReads   float64
	MappedReads  float64
	ExonicRate   float64
	IntronicRate float64
	RRNARate     float64
	Bias53       float64
	MappedPct    float64
	NGenes       int
}

// Bundle is the immutable input of one report run: the projected sample
// sheet, the metrics table joined onto it, and the raw count matrix.
// Notes collects data-quality warnings surfaced in the rendered report.
type Bundle struct {
	Samples []SampleMetadata
	Metrics []MetricsRecord
	Counts  *ExpressionMatrix
	Notes   []string
}

// metricsColumns are the required columns of the upstream metrics table
var metricsColumns = []string{
	"sample", "total_reads", "mapped_reads",
	"exonic_rate", "intronic_rate", "r_rna_rate", "x5_3_bias",
}

// LoadBundle reads the bundle directory and joins the metrics table onto
// the sample sheet. Every sample sheet row must find exactly one metrics
// row; metrics rows without a sample sheet entry are recorded as notes.
func LoadBundle(dir string) (*Bundle, error) {
	log.Noticef("Load bundle `%s`", dir)

	samples, err := loadSampleSheet(dir)
	if err != nil {
		return nil, err
	}
	metrics, err := loadMetricsTable(dir)
	if err != nil {
		return nil, err
	}
	counts, err := loadCounts(dir, samples)
	if err != nil {
		return nil, err
	}

	b := &Bundle{Samples: samples, Counts: counts}
	if err := b.joinMetrics(metrics); err != nil {
		return nil, err
	}

	log.Noticef("Loaded %d samples, %d genes x %d columns",
		len(b.Samples), counts.NGenes(), counts.NSamples())
	return b, nil
}

// joinMetrics left-joins the metrics rows onto the sample sheet, anchoring
// on sample sheet order. A sample sheet entry without a metrics row aborts
// the load; the reverse direction only produces a note.
func (b *Bundle) joinMetrics(metrics map[string]MetricsRecord) error {
	var missing []string
	seen := make(map[string]bool, len(b.Samples))
	b.Metrics = make([]MetricsRecord, 0, len(b.Samples))
	for _, s := range b.Samples {
		rec, ok := metrics[s.Sample]
		if !ok {
			missing = append(missing, s.Sample)
			continue
		}
		rec.Sample = s.Sample
		rec.Category = s.Category
		b.Metrics = append(b.Metrics, rec)
		seen[s.Sample] = true
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: no metrics row for sample(s) %s",
			ErrJoinMismatch, strings.Join(missing, ", "))
	}
	for name := range metrics {
		if !seen[name] {
			note := fmt.Sprintf("metrics row `%s` has no sample sheet entry and was ignored", name)
			log.Warning(note)
			b.Notes = append(b.Notes, note)
		}
	}
	return nil
}

// loadSampleSheet reads samples.tsv, projecting to sample and category
func loadSampleSheet(dir string) ([]SampleMetadata, error) {
	header, rows, err := readTable(dir, SamplesFile)
	if err != nil {
		return nil, err
	}
	cols, err := columnIndex(SamplesFile, header, []string{"sample", "category"})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	samples := make([]SampleMetadata, 0, len(rows))
	for _, row := range rows {
		name := row[cols["sample"]]
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicated sample `%s` in %s",
				ErrMalformedBundle, name, SamplesFile)
		}
		seen[name] = true
		samples = append(samples, SampleMetadata{
			Sample:   name,
			Category: row[cols["category"]],
		})
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: %s has no rows", ErrMalformedBundle, SamplesFile)
	}
	return samples, nil
}

// loadMetricsTable reads metrics.tsv keyed by sample name
func loadMetricsTable(dir string) (map[string]MetricsRecord, error) {
	header, rows, err := readTable(dir, MetricsFile)
	if err != nil {
		return nil, err
	}
	cols, err := columnIndex(MetricsFile, header, metricsColumns)
	if err != nil {
		return nil, err
	}

	metrics := make(map[string]MetricsRecord, len(rows))
	for _, row := range rows {
		name := row[cols["sample"]]
		fields := make(map[string]float64, len(metricsColumns)-1)
		for _, col := range metricsColumns[1:] {
			v, err := strconv.ParseFloat(row[cols[col]], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad value %q in column %s for sample `%s`",
					ErrMalformedBundle, row[cols[col]], col, name)
			}
			fields[col] = v
		}
		metrics[name] = MetricsRecord{
			TotalReads:   fields["total_reads"],
			MappedReads:  fields["mapped_reads"],
			ExonicRate:   fields["exonic_rate"],
			IntronicRate: fields["intronic_rate"],
			RRNARate:     fields["r_rna_rate"],
			Bias53:       fields["x5_3_bias"],
		}
	}
	return metrics, nil
}

// loadCounts reads whichever raw counts layer the bundle carries
func loadCounts(dir string, samples []SampleMetadata) (*ExpressionMatrix, error) {
	if _, err := resolveBundleFile(dir, CountsNpyFile); err == nil {
		return loadCountsNpy(dir, samples)
	}
	return loadCountsTSV(dir, samples)
}

// loadCountsTSV reads a featureCounts-style matrix: a Geneid column
// followed by one column per sample. Extra sample columns are ignored;
// missing ones abort the load.
func loadCountsTSV(dir string, samples []SampleMetadata) (*ExpressionMatrix, error) {
	header, rows, err := readTable(dir, CountsTSVFile)
	if err != nil {
		return nil, err
	}
	if len(header) < 2 || header[0] != "Geneid" {
		return nil, fmt.Errorf(`%w: first column of %s must be "Geneid"`,
			ErrMalformedBundle, CountsTSVFile)
	}

	colOf := make(map[string]int, len(header)-1)
	for i, name := range header[1:] {
		colOf[name] = i + 1
	}
	order := make([]int, len(samples))
	for i, s := range samples {
		j, ok := colOf[s.Sample]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no column for sample `%s`",
				ErrMalformedBundle, CountsTSVFile, s.Sample)
		}
		order[i] = j
	}

	m := NewExpressionMatrix(sampleNames(samples))
	for _, row := range rows {
		counts := make([]float64, len(samples))
		for i, j := range order {
			v, err := strconv.ParseFloat(row[j], 64)
			if err != nil || v < 0 {
				return nil, fmt.Errorf("%w: bad count %q for gene `%s` in %s",
					ErrMalformedBundle, row[j], row[0], CountsTSVFile)
			}
			counts[i] = v
		}
		m.AddGene(row[0], counts)
	}
	if m.NGenes() == 0 {
		return nil, fmt.Errorf("%w: %s has no genes", ErrMalformedBundle, CountsTSVFile)
	}
	return m, nil
}

// loadCountsNpy reads the gene-major counts.npy layer together with its
// genes.txt row labels. Column order follows the sample sheet.
func loadCountsNpy(dir string, samples []SampleMetadata) (*ExpressionMatrix, error) {
	npyPath, err := resolveBundleFile(dir, CountsNpyFile)
	if err != nil {
		return nil, err
	}
	r, err := gonpy.NewFileReader(npyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedBundle, CountsNpyFile, err)
	}
	if len(r.Shape) != 2 {
		return nil, fmt.Errorf("%w: %s must be 2-dimensional, got shape %v",
			ErrMalformedBundle, CountsNpyFile, r.Shape)
	}
	nGenes, nSamples := r.Shape[0], r.Shape[1]
	if nSamples != len(samples) {
		return nil, fmt.Errorf("%w: %s has %d columns for %d samples",
			ErrMalformedBundle, CountsNpyFile, nSamples, len(samples))
	}

	var data []float64
	switch r.Dtype {
	case "f8":
		data, err = r.GetFloat64()
	case "i8":
		var ints []int64
		ints, err = r.GetInt64()
		if err == nil {
			data = make([]float64, len(ints))
			for i, v := range ints {
				data[i] = float64(v)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported %s dtype %q",
			ErrMalformedBundle, CountsNpyFile, r.Dtype)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedBundle, CountsNpyFile, err)
	}

	genes, err := readLines(dir, GenesFile)
	if err != nil {
		return nil, err
	}
	if len(genes) != nGenes {
		return nil, fmt.Errorf("%w: %s lists %d genes but %s has %d rows",
			ErrMalformedBundle, GenesFile, len(genes), CountsNpyFile, nGenes)
	}

	m := NewExpressionMatrix(sampleNames(samples))
	for g, gene := range genes {
		counts := make([]float64, nSamples)
		for s := 0; s < nSamples; s++ {
			if r.ColumnMajor {
				counts[s] = data[s*nGenes+g]
			} else {
				counts[s] = data[g*nSamples+s]
			}
		}
		m.AddGene(gene, counts)
	}
	return m, nil
}

// readTable parses a tab-separated bundle file into header and data rows
func readTable(dir, name string) ([]string, [][]string, error) {
	path, err := resolveBundleFile(dir, name)
	if err != nil {
		return nil, nil, err
	}
	fh, err := xopen.Ropen(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: cannot open %s: %v", ErrMalformedBundle, name, err)
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.Comma = '\t'
	r.FieldsPerRecord = -1

	var header []string
	var rows [][]string
	for i := 0; ; i++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformedBundle, name, i+1, err)
		}
		if i == 0 {
			header = rec
			continue
		}
		if len(rec) != len(header) {
			return nil, nil, fmt.Errorf("%w: %s line %d has %d fields, header has %d",
				ErrMalformedBundle, name, i+1, len(rec), len(header))
		}
		rows = append(rows, rec)
	}
	if header == nil {
		return nil, nil, fmt.Errorf("%w: %s is empty", ErrMalformedBundle, name)
	}
	return header, rows, nil
}

// readLines reads a bundle file as one trimmed string per line
func readLines(dir, name string) ([]string, error) {
	path, err := resolveBundleFile(dir, name)
	if err != nil {
		return nil, err
	}
	fh, err := xopen.Ropen(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open %s: %v", ErrMalformedBundle, name, err)
	}
	defer fh.Close()

	var lines []string
	for {
		line, err := fh.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedBundle, name, err)
		}
	}
	return lines, nil
}

// resolveBundleFile locates a bundle file, accepting a .gz sibling
func resolveBundleFile(dir, name string) (string, error) {
	for _, candidate := range []string{name, name + ".gz"} {
		p := filepath.Join(dir, candidate)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: missing %s in `%s`", ErrMalformedBundle, name, dir)
}

// columnIndex maps required column names to their positions in the header
func columnIndex(file string, header, required []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: %s is missing column %q", ErrMalformedBundle, file, col)
		}
	}
	return idx, nil
}

// sampleNames projects the sample sheet to its identifiers
func sampleNames(samples []SampleMetadata) []string {
	names := make([]string, len(samples))
	for i, s := range samples {
		names[i] = s.Sample
	}
	return names
}
