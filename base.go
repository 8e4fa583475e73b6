package rnaqc

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path"
	"sort"
	"strings"

	logging "github.com/op/go-logging"
)

const (
	// Version is the current version of rnaqc
	Version = "0.3.1"
	// GenesDetectedCap is the fixed upper bound of the genes-detected chart axis
	GenesDetectedCap = 30000.0
	// RRNAHeadroom is added above the max observed rRNA percentage on its chart axis
	RRNAHeadroom = 10.0
	// BiasAxisMax is the fixed upper bound of the 5'-3' bias chart axis
	BiasAxisMax = 1.1
	// PCAComponents is the number of principal components retained for the similarity scatter
	PCAComponents = 2
)

// Error taxonomy of a report run. Bundle-level errors are fatal; a
// degenerate similarity input only suppresses its own report section.
var (
	// ErrMalformedBundle flags a bundle with missing files, missing columns
	// or unparseable values
	ErrMalformedBundle = errors.New("malformed bundle")
	// ErrJoinMismatch flags sample sheet entries without a metrics row
	ErrJoinMismatch = errors.New("metadata/metrics join mismatch")
	// ErrDegenerateInput flags a count matrix too small for the similarity analysis
	ErrDegenerateInput = errors.New("degenerate input")
)

var log = logging.MustGetLogger("rnaqc")
var format = logging.MustStringFormatter(
	`%{color}%{time:15:04:05} %{shortfunc} | %{level:.6s} %{color:reset} %{message}`,
)

// Backend is the default stderr output
var Backend = logging.NewLogBackend(os.Stderr, "", 0)

// BackendFormatter contains the fancy debug formatter
var BackendFormatter = logging.NewBackendFormatter(Backend, format)

// RemoveExt returns the substring minus the extension
func RemoveExt(filename string) string {
	return strings.TrimSuffix(filename, path.Ext(filename))
}

// median gets the median value of an array
func median(s []float64) float64 {
	numbers := make([]float64, len(s))
	copy(numbers, s)
	sort.Float64s(numbers)

	middle := len(numbers) / 2
	result := numbers[middle]
	if len(numbers)%2 == 0 {
		result = (result + numbers[middle-1]) / 2
	}
	return result
}

// maxf gets the maximum of a float64 slice
func maxf(a []float64) float64 {
	ans := math.Inf(-1)
	for _, x := range a {
		if x > ans {
			ans = x
		}
	}
	return ans
}

// minf gets the minimum of a float64 slice
func minf(a []float64) float64 {
	ans := math.Inf(1)
	for _, x := range a {
		if x < ans {
			ans = x
		}
	}
	return ans
}

// log2p1 is the log2(x + 1) transform applied to raw counts
func log2p1(x float64) float64 {
	return math.Log2(x + 1)
}

// percentage prints a human readable message of the percentage
func percentage(a, b int) string {
	return fmt.Sprintf("%d of %d (%.1f %%)", a, b, float64(a)*100./float64(b))
}
