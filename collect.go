package rnaqc

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/shenwei356/xopen"
)

// Collecter counts total and mapped reads in BAM files, one sample per
// file, and writes the read-count columns of the metrics table. It covers
// pipelines whose aligner does not emit an aggregated metrics table; the
// remaining metric columns still come from the upstream quantifier.
type Collecter struct {
	Bamfiles []string
	Outfile  string
}

// ReadCounts holds the per-sample read totals counted from one BAM file
type ReadCounts struct {
	Sample string
	Total  uint64
	Mapped uint64
}

// Run counts reads in every BAM file and writes the partial metrics table
func (r *Collecter) Run() error {
	counts := make([]ReadCounts, 0, len(r.Bamfiles))
	for _, bamfile := range r.Bamfiles {
		c, err := CountBamReads(bamfile)
		if err != nil {
			return err
		}
		log.Noticef("`%s`: %s mapped", bamfile, percentage(int(c.Mapped), int(c.Total)))
		counts = append(counts, c)
	}

	w, err := xopen.Wopen(r.Outfile)
	if err != nil {
		return err
	}
	defer w.Close()

	fmt.Fprintln(w, "sample\ttotal_reads\tmapped_reads")
	for _, c := range counts {
		fmt.Fprintf(w, "%s\t%d\t%d\n", c.Sample, c.Total, c.Mapped)
	}
	w.Flush()

	log.Noticef("Read counts for %d sample(s) written to `%s`", len(counts), r.Outfile)
	return nil
}

// CountBamReads counts primary reads in a BAM file. Secondary and
// supplementary alignments are excluded so each sequenced read is counted
// once; a read is mapped when its unmapped flag is clear. The sample name
// is the file basename without extension.
func CountBamReads(path string) (ReadCounts, error) {
	c := ReadCounts{Sample: RemoveExt(filepath.Base(path))}

	fh, err := os.Open(path)
	if err != nil {
		return c, err
	}
	defer fh.Close()

	log.Noticef("Parse bamfile `%s`", path)
	br, err := bam.NewReader(fh, 0)
	if err != nil {
		return c, err
	}
	defer br.Close()
	br.Omit(bam.AllVariableLengthData)

	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return c, err
		}
		if rec.Flags&(sam.Secondary|sam.Supplementary) != 0 {
			continue
		}
		c.Total++
		if rec.Flags&sam.Unmapped == 0 {
			c.Mapped++
		}
	}
	return c, nil
}
