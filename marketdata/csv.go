package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// LoadCSVDir reads <dir>/<symbol>.csv for each symbol and aligns them.
func LoadCSVDir(dir string, symbols []string) (HLCVs, []time.Time, error) {
	series := make([][]timedCandle, len(symbols))
	for i, symbol := range symbols {
		s, err := loadCSV(filepath.Join(dir, symbol+".csv"))
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", symbol, err)
		}
		if len(s) == 0 {
			return nil, nil, fmt.Errorf("%s: no candles", symbol)
		}
		series[i] = s
	}
	hlcvs, times := align(series)
	if err := hlcvs.Validate(); err != nil {
		return nil, nil, err
	}
	return hlcvs, times, nil
}

// loadCSV reads candles from a file with a header row naming at least
// timestamp, high, low and close columns.
func loadCSV(path string) ([]timedCandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCSV(f)
}

func readCSV(rd io.Reader) ([]timedCandle, error) {
	r := csv.NewReader(rd)
	r.FieldsPerRecord = -1

	var out []timedCandle
	var headers []string
	rowIdx := 0

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rowIdx == 0 {
			headers = rec
			rowIdx++
			continue
		}
		row := map[string]string{}
		for j, h := range headers {
			k := strings.ToLower(strings.TrimSpace(h))
			if j < len(rec) {
				row[k] = strings.TrimSpace(rec[j])
			}
		}
		ts := first(row, "timestamp", "time")
		hp := first(row, "high")
		lp := first(row, "low")
		cp := first(row, "close")
		vp := first(row, "volume", "vol")
		if ts == "" || cp == "" {
			continue
		}
		tt, err := parseTimeFlexible(ts)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowIdx, err)
		}
		c, err := strconv.ParseFloat(cp, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: close: %w", rowIdx, err)
		}
		h, l := c, c
		if hp != "" {
			if h, err = strconv.ParseFloat(hp, 64); err != nil {
				return nil, fmt.Errorf("row %d: high: %w", rowIdx, err)
			}
		}
		if lp != "" {
			if l, err = strconv.ParseFloat(lp, 64); err != nil {
				return nil, fmt.Errorf("row %d: low: %w", rowIdx, err)
			}
		}
		var v float64
		if vp != "" {
			if v, err = strconv.ParseFloat(vp, 64); err != nil {
				return nil, fmt.Errorf("row %d: volume: %w", rowIdx, err)
			}
		}
		out = append(out, timedCandle{Time: tt, Candle: Candle{High: h, Low: l, Close: c, Volume: v}})
		rowIdx++
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// parseTimeFlexible supports RFC3339, UNIX seconds or UNIX milliseconds.
func parseTimeFlexible(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time: %s", s)
}

// first returns the first non-empty value for keys in m.
func first(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
