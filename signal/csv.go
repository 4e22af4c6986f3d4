package signal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ReadCSV decodes a trajectory from CSV. The first row is a header whose
// first column is the time column and whose remaining columns name the
// signals. Empty cells and "nan" decode as NaN.
func ReadCSV(r io.Reader) (*Trajectory, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing CSV header", ErrInvalidTrajectory)
		}
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if len(header) < 1 {
		return nil, fmt.Errorf("%w: empty CSV header", ErrInvalidTrajectory)
	}
	names := make([]string, 0, len(header)-1)
	for _, h := range header[1:] {
		names = append(names, strings.TrimSpace(h))
	}

	var times []float64
	series := make([][]float64, len(names))
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", line, err)
		}
		t, err := parseCell(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: time: %w", line, err)
		}
		times = append(times, t)
		for ch := range names {
			v, err := parseCell(rec[ch+1])
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, names[ch], err)
			}
			series[ch] = append(series[ch], v)
		}
	}
	return New(names, times, series)
}

// WriteCSV encodes tr in the format read by ReadCSV.
func WriteCSV(w io.Writer, tr *Trajectory) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"time"}, tr.names...)); err != nil {
		return err
	}
	rec := make([]string, len(tr.names)+1)
	for i, t := range tr.time {
		rec[0] = strconv.FormatFloat(t, 'g', -1, 64)
		for ch := range tr.series {
			rec[ch+1] = strconv.FormatFloat(tr.series[ch][i], 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
