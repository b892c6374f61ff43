package models

// ScalerParams holds per-feature standardization parameters.
type ScalerParams struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Dim is the number of features the params were fit on.
func (p ScalerParams) Dim() int { return len(p.Mean) }

// Fitted reports whether the params hold at least one column.
func (p ScalerParams) Fitted() bool { return len(p.Mean) > 0 && len(p.Mean) == len(p.Std) }
