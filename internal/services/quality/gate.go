package quality

import (
	"fmt"
	"math"
	"sort"

	"AdaptiveEnsemble/internal/domain/models"
	applogger "AdaptiveEnsemble/pkg/logger"
)

// IssueKind names a data quality problem.
type IssueKind string

const (
	IssueEmpty               IssueKind = "empty"
	IssueMissingColumn       IssueKind = "missing-column"
	IssueNaNColumns          IssueKind = "nan-columns"
	IssueDuplicateTimestamps IssueKind = "duplicate-timestamps"
	IssueNonPositivePrice    IssueKind = "non-positive-price"
	IssueOHLCViolation       IssueKind = "ohlc-violation"
)

// Issue is one finding of Validate.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Columns []string  `json:"columns,omitempty"`
	Count   int       `json:"count,omitempty"`
}

func (i Issue) String() string {
	switch {
	case len(i.Columns) > 0 && i.Count > 0:
		return fmt.Sprintf("%s %v (%d rows)", i.Kind, i.Columns, i.Count)
	case len(i.Columns) > 0:
		return fmt.Sprintf("%s %v", i.Kind, i.Columns)
	case i.Count > 0:
		return fmt.Sprintf("%s (%d rows)", i.Kind, i.Count)
	default:
		return string(i.Kind)
	}
}

// Gate validates and cleans OHLCV frames before they reach the feature engine.
type Gate struct {
	logger *applogger.Logger
}

func NewGate() *Gate {
	return &Gate{logger: applogger.NewNop()}
}

// SetLogger sets the logger for the gate.
func (g *Gate) SetLogger(l *applogger.Logger) {
	if l != nil {
		g.logger = l
	}
}

type priceColumn struct {
	name string
	get  func(models.Candle) float64
}

var priceColumns = []priceColumn{
	{models.ColOpen, func(c models.Candle) float64 { return c.Open }},
	{models.ColHigh, func(c models.Candle) float64 { return c.High }},
	{models.ColLow, func(c models.Candle) float64 { return c.Low }},
	{models.ColClose, func(c models.Candle) float64 { return c.Close }},
}

var allColumns = append(append([]priceColumn{}, priceColumns...),
	priceColumn{models.ColVolume, func(c models.Candle) float64 { return c.Volume }})

// Validate reports every problem found in frame; an empty result means the frame is admissible.
func (g *Gate) Validate(frame models.Frame) []Issue {
	if frame.Len() == 0 {
		return []Issue{{Kind: IssueEmpty}}
	}
	var issues []Issue

	var missing []string
	for _, col := range models.RequiredColumns {
		if !frame.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		issues = append(issues, Issue{Kind: IssueMissingColumn, Columns: missing})
	}

	var nanCols []string
	for _, col := range allColumns {
		if !frame.HasColumn(col.name) {
			continue
		}
		for _, bar := range frame.Bars {
			if math.IsNaN(col.get(bar)) {
				nanCols = append(nanCols, col.name)
				break
			}
		}
	}
	if len(nanCols) > 0 {
		issues = append(issues, Issue{Kind: IssueNaNColumns, Columns: nanCols})
	}

	seen := make(map[int64]struct{}, frame.Len())
	dups := 0
	for _, bar := range frame.Bars {
		k := bar.Timestamp.UnixNano()
		if _, ok := seen[k]; ok {
			dups++
			continue
		}
		seen[k] = struct{}{}
	}
	if dups > 0 {
		issues = append(issues, Issue{Kind: IssueDuplicateTimestamps, Count: dups})
	}

	for _, col := range priceColumns {
		if !frame.HasColumn(col.name) {
			continue
		}
		n := 0
		for _, bar := range frame.Bars {
			if col.get(bar) <= 0 {
				n++
			}
		}
		if n > 0 {
			issues = append(issues, Issue{Kind: IssueNonPositivePrice, Columns: []string{col.name}, Count: n})
		}
	}

	violations := 0
	for _, b := range frame.Bars {
		if b.High < b.Low || b.High < b.Open || b.High < b.Close || b.Low > b.Open || b.Low > b.Close {
			violations++
		}
	}
	if violations > 0 {
		issues = append(issues, Issue{Kind: IssueOHLCViolation, Count: violations})
	}
	return issues
}

// Admit validates frame and returns its cleaned copy. Empty frames and frames
// without a required column are rejected; every other issue is logged and left
// to Clean.
func (g *Gate) Admit(frame models.Frame) (models.Frame, error) {
	issues := g.Validate(frame)
	for _, issue := range issues {
		switch issue.Kind {
		case IssueEmpty:
			return models.Frame{}, models.Errorf(models.KindInsufficientHistory, "frame %q has no bars", frame.Symbol)
		case IssueMissingColumn:
			return models.Frame{}, models.Errorf(models.KindFeatureComputationFailed, "frame %q lacks columns %v", frame.Symbol, issue.Columns)
		}
	}
	if len(issues) > 0 {
		msgs := make([]string, len(issues))
		for i, issue := range issues {
			msgs[i] = issue.String()
		}
		g.logger.Warn("frame admitted with data quality issues",
			applogger.String("symbol", frame.Symbol),
			applogger.Strings("issues", msgs),
		)
	}
	return g.Clean(frame), nil
}

// Clean returns a repaired copy of frame: bars sorted by timestamp with the first of
// each duplicate kept, NaNs forward-filled, fully undefined bars dropped and prices
// made positive. Sorting runs before the fill so that a second pass is a no-op.
func (g *Gate) Clean(frame models.Frame) models.Frame {
	out := frame.Clone()
	bars := out.Bars
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	dedup := bars[:0]
	for i, b := range bars {
		if i > 0 && b.Timestamp.Equal(dedup[len(dedup)-1].Timestamp) {
			continue
		}
		dedup = append(dedup, b)
	}

	last := models.Candle{Open: math.NaN(), High: math.NaN(), Low: math.NaN(), Close: math.NaN(), Volume: math.NaN()}
	kept := dedup[:0]
	for _, b := range dedup {
		b.Open = fill(b.Open, &last.Open)
		b.High = fill(b.High, &last.High)
		b.Low = fill(b.Low, &last.Low)
		b.Close = fill(b.Close, &last.Close)
		b.Volume = fill(b.Volume, &last.Volume)
		if math.IsNaN(b.Open) && math.IsNaN(b.High) && math.IsNaN(b.Low) && math.IsNaN(b.Close) && math.IsNaN(b.Volume) {
			continue
		}
		b.Open = math.Abs(b.Open)
		b.High = math.Abs(b.High)
		b.Low = math.Abs(b.Low)
		b.Close = math.Abs(b.Close)
		kept = append(kept, b)
	}
	out.Bars = kept

	if dropped := frame.Len() - len(kept); dropped > 0 {
		g.logger.Debug("frame cleaned",
			applogger.String("symbol", frame.Symbol),
			applogger.Int("dropped", dropped),
			applogger.Int("bars", len(kept)),
		)
	}
	return out
}

func fill(v float64, last *float64) float64 {
	if math.IsNaN(v) {
		return *last
	}
	*last = v
	return v
}
