package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"AdaptiveEnsemble/internal/domain/models"
	"AdaptiveEnsemble/pkg/util"
)

var columnAliases = map[string]string{
	"timestamp": models.ColTimestamp,
	"time":      models.ColTimestamp,
	"date":      models.ColTimestamp,
	"datetime":  models.ColTimestamp,
	"bucket":    models.ColTimestamp,
	"open":      models.ColOpen,
	"high":      models.ColHigh,
	"low":       models.ColLow,
	"close":     models.ColClose,
	"volume":    models.ColVolume,
	"vol":       models.ColVolume,
}

// ReadFrameCSV parses an OHLCV table with a header row. Frame.Columns records
// which columns were present so the quality gate can reject incomplete tables;
// blank or unparsable cells become NaN.
func ReadFrameCSV(r io.Reader, symbol string) (models.Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return models.Frame{}, fmt.Errorf("read csv header: %w", err)
	}

	idx := make(map[string]int, len(header))
	cols := make([]string, 0, len(header))
	for i, h := range header {
		name, ok := columnAliases[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			continue
		}
		if _, dup := idx[name]; dup {
			continue
		}
		idx[name] = i
		cols = append(cols, name)
	}
	tsCol, ok := idx[models.ColTimestamp]
	if !ok {
		return models.Frame{}, fmt.Errorf("csv: no timestamp column in %v", header)
	}

	var bars []models.Candle
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.Frame{}, fmt.Errorf("read csv line %d: %w", line, err)
		}
		ts, ok := util.ParseTime(rec[tsCol])
		if !ok {
			return models.Frame{}, fmt.Errorf("csv line %d: bad timestamp %q", line, rec[tsCol])
		}
		cell := func(name string) float64 {
			i, ok := idx[name]
			if !ok || i >= len(rec) {
				return math.NaN()
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return math.NaN()
			}
			return v
		}
		bars = append(bars, models.Candle{
			Timestamp: ts,
			Open:      cell(models.ColOpen),
			High:      cell(models.ColHigh),
			Low:       cell(models.ColLow),
			Close:     cell(models.ColClose),
			Volume:    cell(models.ColVolume),
		})
	}
	f := models.NewFrame(symbol, bars)
	f.Columns = cols
	return f, nil
}

// LoadFrameCSV reads a frame from a CSV file on disk.
func LoadFrameCSV(path, symbol string) (models.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return models.Frame{}, fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()
	return ReadFrameCSV(file, symbol)
}
