package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strings"
)

type summary struct {
	min, max, avg, median, stddev float64
}

func summarize(values []float64) summary {
	n := len(values)
	if n == 0 {
		return summary{}
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var s summary
	s.min = sorted[0]
	s.max = sorted[n-1]

	var sum float64
	for _, v := range values {
		sum += v
	}
	s.avg = sum / float64(n)

	if n%2 == 1 {
		s.median = sorted[n/2]
	} else {
		s.median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	var variance float64
	for _, v := range values {
		d := v - s.avg
		variance += d * d
	}
	variance /= float64(n)
	s.stddev = math.Sqrt(variance)

	return s
}

func printSummary(w io.Writer, name string, values []float64) {
	if len(values) == 0 {
		fmt.Fprintln(w, "No samples to report")
		return
	}

	s := summarize(values)

	fmt.Fprintln(w)
	fmt.Fprintln(w, name)
	fmt.Fprintln(w, strings.Repeat("-", len(name)))
	fmt.Fprintf(w, "  samples : %d\n", len(values))
	fmt.Fprintf(w, "  min     : %.6f\n", s.min)
	fmt.Fprintf(w, "  max     : %.6f\n", s.max)
	fmt.Fprintf(w, "  average : %.6f\n", s.avg)
	fmt.Fprintf(w, "  median  : %.6f\n", s.median)
	fmt.Fprintf(w, "  stddev  : %.6f\n", s.stddev)
}
