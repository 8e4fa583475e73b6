package main

import (
	"os"

	logging "github.com/op/go-logging"
	"github.com/spf13/cobra"

	"rnaqc"
)

var (
	reportOut  string
	collectOut string
)

var rootCmd = &cobra.Command{
	Use:          "rnaqc",
	Short:        "Quality-control reporting for RNA-seq experiments",
	Version:      rnaqc.Version,
	SilenceUsage: true,
}

var reportCmd = &cobra.Command{
	Use:   "report [bundle]",
	Short: "Render the QC report for a bundle",
	Long: `
	rnaqc report bundle_dir [options]

Report function:
Given a bundle directory containing the raw count matrix, the sample sheet
and the upstream per-sample metrics table, derive the remaining per-sample
statistics and render the diagnostic charts and the PCA similarity scatter
into one self-contained HTML document. The bundle path defaults to
"qc_bundle" in the working directory; the report path is derived from the
bundle name unless --out is given.
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle := "qc_bundle"
		if len(args) > 0 {
			bundle = args[0]
		}
		r := rnaqc.Reporter{Bundle: bundle, Outfile: reportOut}
		return r.Run()
	},
}

var collectCmd = &cobra.Command{
	Use:   "collect bamfile ...",
	Short: "Count total and mapped reads per BAM file",
	Long: `
	rnaqc collect sample1.bam sample2.bam ... [options]

Collect function:
Count the total and mapped primary reads of each BAM file, one sample per
file, and write the read-count columns of the metrics table. Use this when
the alignment pipeline does not already aggregate read counts; merge the
output into the bundle's metrics.tsv.
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := rnaqc.Collecter{Bamfiles: args, Outfile: collectOut}
		return c.Run()
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportOut, "out", "",
		"report output path (default: derived from the bundle name)")
	collectCmd.Flags().StringVar(&collectOut, "out", "metrics.tsv",
		"output metrics table")
	rootCmd.AddCommand(reportCmd, collectCmd)
}

func main() {
	logging.SetBackend(rnaqc.BackendFormatter)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
