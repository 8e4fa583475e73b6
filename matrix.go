package rnaqc

// ExpressionMatrix holds the raw counts layer of a bundle: genes as rows,
// samples as columns, non-negative counts. Counts are stored as float64 so
// both the TSV and npy layers share one container, but values are whole
// numbers in well-formed input.
type ExpressionMatrix struct {
	Genes   []string
	Samples []string
	counts  [][]float64
}

// NewExpressionMatrix makes an empty matrix over the given sample columns
func NewExpressionMatrix(samples []string) *ExpressionMatrix {
	return &ExpressionMatrix{Samples: samples}
}

// AddGene appends one gene row. The counts slice length must equal the
// number of sample columns; the caller owns validation.
func (m *ExpressionMatrix) AddGene(gene string, counts []float64) {
	m.Genes = append(m.Genes, gene)
	m.counts = append(m.counts, counts)
}

// NGenes returns the number of gene rows
func (m *ExpressionMatrix) NGenes() int {
	return len(m.Genes)
}

// NSamples returns the number of sample columns
func (m *ExpressionMatrix) NSamples() int {
	return len(m.Samples)
}

// At returns the count for gene row g and sample column s
func (m *ExpressionMatrix) At(g, s int) float64 {
	return m.counts[g][s]
}

// FilterZeroGenes returns a view containing only genes whose counts sum to
// a nonzero value across all samples. Gene rows are shared, not copied.
func (m *ExpressionMatrix) FilterZeroGenes() *ExpressionMatrix {
	f := NewExpressionMatrix(m.Samples)
	for g, row := range m.counts {
		total := 0.0
		for _, c := range row {
			total += c
		}
		if total > 0 {
			f.Genes = append(f.Genes, m.Genes[g])
			f.counts = append(f.counts, row)
		}
	}
	log.Noticef("Filtered count matrix: %s retained",
		percentage(f.NGenes(), m.NGenes()))
	return f
}

// DetectedGenes counts, for each sample column, the genes with a nonzero count
func (m *ExpressionMatrix) DetectedGenes() []int {
	detected := make([]int, m.NSamples())
	for _, row := range m.counts {
		for s, c := range row {
			if c > 0 {
				detected[s]++
			}
		}
	}
	return detected
}

// Log2Column returns log2(count + 1) of one sample column across all genes,
// the per-sample series behind the count distribution box plot
func (m *ExpressionMatrix) Log2Column(s int) []float64 {
	values := make([]float64, m.NGenes())
	for g, row := range m.counts {
		values[g] = log2p1(row[s])
	}
	return values
}
