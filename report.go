package rnaqc

import (
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/gobuffalo/packr"
)

// Reporter generates the QC report document for one bundle
type Reporter struct {
	// Bundle is the bundle directory
	Bundle string
	// Outfile is the report path; derived from the bundle name when empty
	Outfile string
}

// ReportSection is one diagnostic section of the rendered document. A
// section carries either an inline SVG chart or an explanatory note when
// its rendering failed.
type ReportSection struct {
	Title string
	SVG   template.HTML
	Note  string
}

// Environment is the process-wide diagnostic state embedded at the end of
// the report, collected once after all sections have rendered
type Environment struct {
	GoVersion string
	OS        string
	Arch      string
	Deps      []string
}

// reportData feeds the embedded HTML template
type reportData struct {
	Version   string
	Generated string
	Bundle    string
	Samples   []SampleMetadata
	Metrics   []MetricsRecord
	Notes     []string
	Sections  []ReportSection
	Env       Environment
}

// Run loads the bundle, derives the per-sample statistics, renders every
// report section best-effort and writes the self-contained HTML document.
// Load and derivation errors are fatal; a failed section only yields a
// placeholder note in the document.
func (r *Reporter) Run() error {
	b, err := LoadBundle(r.Bundle)
	if err != nil {
		return err
	}
	if err := b.Derive(); err != nil {
		return err
	}

	outfile := r.Outfile
	if outfile == "" {
		outfile = RemoveExt(filepath.Base(filepath.Clean(r.Bundle))) + ".html"
	}

	data := reportData{
		Version:   Version,
		Generated: time.Now().Format(time.RFC1123),
		Bundle:    r.Bundle,
		Samples:   b.Samples,
		Metrics:   b.Metrics,
		Notes:     b.Notes,
		Sections:  renderSections(b),
		Env:       collectEnvironment(),
	}
	if err := writeReport(outfile, data); err != nil {
		return err
	}
	log.Noticef("Report written to `%s`", outfile)
	return nil
}

// renderSections draws every diagnostic chart plus the similarity scatter.
// Rendering is isolated per section: one failure never suppresses the
// remaining sections.
func renderSections(b *Bundle) []ReportSection {
	charts := []struct {
		title  string
		render func() (string, error)
	}{
		{"Total reads", func() (string, error) { return TotalReadsChart(b.Metrics) }},
		{"Mapped reads", func() (string, error) { return MappedReadsChart(b.Metrics) }},
		{"Mapping rate", func() (string, error) { return MappingRateChart(b.Metrics) }},
		{"Genes detected", func() (string, error) { return GenesDetectedChart(b.Metrics) }},
		{"Gene detection saturation", func() (string, error) { return SaturationChart(b.Metrics) }},
		{"Exonic rate", func() (string, error) { return ExonicRateChart(b.Metrics) }},
		{"Intronic rate", func() (string, error) { return IntronicRateChart(b.Metrics) }},
		{"rRNA rate", func() (string, error) { return RRNARateChart(b.Metrics) }},
		{"5'-3' bias", func() (string, error) { return Bias53Chart(b.Metrics) }},
		{"Counts per gene", func() (string, error) { return CountDistributionChart(b.Counts, b.Metrics) }},
		{"Sample similarity", func() (string, error) { return SimilarityChart(b.Counts, b.Samples) }},
	}

	sections := make([]ReportSection, 0, len(charts))
	for _, c := range charts {
		section := ReportSection{Title: c.title}
		svg, err := c.render()
		switch {
		case err == nil:
			section.SVG = template.HTML(svg)
		case errors.Is(err, ErrDegenerateInput):
			log.Warningf("%s section skipped: %v", c.title, err)
			section.Note = fmt.Sprintf("Not enough data for this analysis: %v", err)
		default:
			log.Errorf("%s section failed: %v", c.title, err)
			section.Note = "Chart unavailable: " + err.Error()
		}
		sections = append(sections, section)
	}
	return sections
}

// writeReport renders the packed template into the output document
func writeReport(outfile string, data reportData) error {
	box := packr.NewBox("./templates")
	text, err := box.FindString("report.html")
	if err != nil {
		return fmt.Errorf("cannot load report template: %v", err)
	}
	tmpl, err := template.New("report").Parse(text)
	if err != nil {
		return fmt.Errorf("cannot parse report template: %v", err)
	}

	f, err := os.Create(outfile)
	if err != nil {
		return err
	}
	defer f.Close()
	return tmpl.Execute(f, data)
}

// collectEnvironment is a pure read of the runtime's current state used for
// the report's environment section
func collectEnvironment() Environment {
	env := Environment{
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			env.Deps = append(env.Deps, dep.Path+" "+dep.Version)
		}
	}
	return env
}
