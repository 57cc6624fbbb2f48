package models

// Requests for prediction HTTP endpoints.

type PredictRequest struct {
	Cryptocurrency string             `json:"cryptocurrency" validate:"required,alphanum,max=10"`
	Features       map[string]float64 `json:"features"`
}

type ValueRequest struct {
	Feature string   `json:"feature" validate:"required"`
	Value   *float64 `json:"value" validate:"required"`
}

type HistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"omitempty,alphanum,max=10"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}
