package models

// PredictRequest asks for a prediction on the latest n bars of a symbol. A
// positive capital also publishes a trade intent sized against it when the
// prediction clears the confidence gate.
type PredictRequest struct {
	Symbol  string  `query:"symbol" json:"symbol" validate:"required"`
	N       int     `query:"n" json:"n" default:"300" validate:"gte=50,lte=50000"`
	TF      string  `query:"tf" json:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h"`
	Capital float64 `query:"capital" json:"capital" validate:"gte=0"`
}

// RegimeRequest asks for the regime of the latest n bars of a symbol.
type RegimeRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	N      int    `query:"n" json:"n" default:"100" validate:"gte=1,lte=50000"`
	TF     string `query:"tf" json:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h"`
}

// LoadBundleRequest selects a stored bundle; an empty id loads the latest.
type LoadBundleRequest struct {
	ID string `query:"id" json:"id"`
}
