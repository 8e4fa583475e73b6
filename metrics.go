package rnaqc

import (
	"fmt"
)

// Derive fills in the computed per-sample statistics: the mapped-read
// fraction and the detected-gene count. The 1:1 relationship between the
// sample sheet and the metrics table established at load time is preserved;
// detected-gene counts are joined by sample identifier.
func (b *Bundle) Derive() error {
	detected := b.Counts.DetectedGenes()
	bySample := make(map[string]int, len(detected))
	for s, name := range b.Counts.Samples {
		bySample[name] = detected[s]
	}

	for i := range b.Metrics {
		rec := &b.Metrics[i]
		if rec.TotalReads == 0 {
			return fmt.Errorf("%w: sample `%s` has zero total reads",
				ErrMalformedBundle, rec.Sample)
		}
		rec.MappedPct = rec.MappedReads / rec.TotalReads

		n, ok := bySample[rec.Sample]
		if !ok {
			return fmt.Errorf("%w: count matrix has no column for sample `%s`",
				ErrMalformedBundle, rec.Sample)
		}
		rec.NGenes = n
	}

	log.Noticef("Derived metrics for %d samples", len(b.Metrics))
	return nil
}
