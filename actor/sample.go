package actor

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Subaru-PFS/ics-testsActor/keys"
	"github.com/Subaru-PFS/ics-testsActor/util"
)

var _ Services = (*Actor)(nil)

// Frame is a table of samples, one column per label
type Frame struct {
	Labels []string
	Rows   [][]float64
}

// Column returns the values of column i
func (f Frame) Column(i int) []float64 {
	out := make([]float64, 0, len(f.Rows))
	for _, r := range f.Rows {
		if i < len(r) {
			out = append(out, r[i])
		}
	}
	return out
}

// dropUnlabelled removes the columns with an empty label
func (f Frame) dropUnlabelled() Frame {
	keep := []int{}
	for i, l := range f.Labels {
		if l != "" {
			keep = append(keep, i)
		}
	}
	if len(keep) == len(f.Labels) {
		return f
	}
	out := Frame{Labels: make([]string, len(keep)), Rows: make([][]float64, len(f.Rows))}
	for j, i := range keep {
		out.Labels[j] = f.Labels[i]
	}
	for r, row := range f.Rows {
		nr := make([]float64, len(keep))
		for j, i := range keep {
			nr[j] = row[i]
		}
		out.Rows[r] = nr
	}
	return out
}

// Stats are the statistics of one column, NaNs excluded
type Stats struct {
	Mean, Std, Min, Max float64
	N                   int
}

// ColumnStats computes the statistics of column i
func (f Frame) ColumnStats(i int) Stats {
	valid := []float64{}
	for _, v := range f.Column(i) {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		nan := math.NaN()
		return Stats{Mean: nan, Std: nan, Min: nan, Max: nan}
	}
	mean, std := stat.MeanStdDev(valid, nil)
	if len(valid) == 1 {
		std = 0
	}
	return Stats{Mean: mean, Std: std, Min: floats.Min(valid), Max: floats.Max(valid), N: len(valid)}
}

// SampleData calls cmdStr on actor sampling.count times, sampling.interval
// apart, and after each call collects the values of ks into one row.  Invalid
// values are NaN.  Columns with an empty label are dropped.
func (a *Actor) SampleData(cmd *Command, actor, cmdStr string, ks, labels []string) (Frame, error) {
	cfg := a.Config()
	n := cfg.Sampling.Count
	if n < 1 {
		n = 1
	}
	interval := int(math.Round(cfg.Sampling.Interval.Seconds()))
	f := Frame{Labels: labels}
	for i := 0; i < n; i++ {
		if _, err := a.SafeCall(cmd, actor, cmdStr, 0); err != nil {
			return Frame{}, err
		}
		lists := make([][]keys.Value, len(ks))
		for j, k := range ks {
			kw, err := a.Key(actor, k)
			if err != nil {
				return Frame{}, err
			}
			lists[j] = kw.Values
		}
		row := util.NewRow(lists...)
		if len(row) != len(labels) {
			return Frame{}, fmt.Errorf("%s %s: %d values for %d labels", actor, strings.Join(ks, ","), len(row), len(labels))
		}
		f.Rows = append(f.Rows, row)
		if i < n-1 && interval > 0 {
			if _, err := a.Delay.DelayDuration(interval); err != nil {
				return Frame{}, errors.Wrap(err, "sampling delay")
			}
		}
	}
	return f.dropUnlabelled(), nil
}

// GenSample informs <label>=<mean>,<std>,<min>,<max>,<n> for every column.
// Columns without valid data, or whose mean is outside its configured limits,
// are warned instead and make GenSample return an error.
func (a *Actor) GenSample(cmd *Command, f Frame) error {
	cfg := a.Config()
	bad := []string{}
	for i, label := range f.Labels {
		s := f.ColumnStats(i)
		line := fmt.Sprintf("%s=%s,%d", label, util.FloatSliceToCSV([]float64{s.Mean, s.Std, s.Min, s.Max}, -1), s.N)
		if s.N == 0 {
			cmd.Warn(line)
			bad = append(bad, label)
			continue
		}
		if lim, ok := cfg.Limit(label); ok && !lim.Check(s.Mean) {
			cmd.Warn(line)
			bad = append(bad, label)
			continue
		}
		cmd.Inform(line)
	}
	if len(bad) > 0 {
		return fmt.Errorf("%s invalid or out of limits", strings.Join(bad, ","))
	}
	return nil
}
