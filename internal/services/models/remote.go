package models

import (
	"context"
	"fmt"
	"strings"

	xhttp "CryptoCast/pkg/http"
)

type remoteRequest struct {
	Symbol   string    `json:"symbol"`
	Features []float64 `json:"features"`
}

type remoteResponse struct {
	Prediction *float64 `json:"prediction"`
}

// Remote delegates inference to an HTTP model server: POST {base}/predict.
type Remote struct {
	symbol  string
	baseURL string
	client  *xhttp.Client
}

func NewRemote(symbol, baseURL string, client *xhttp.Client) *Remote {
	return &Remote{symbol: symbol, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (m *Remote) Infer(ctx context.Context, features []float64) (float64, error) {
	var out remoteResponse
	err := m.client.PostJSONWithRetry(ctx, m.baseURL+"/predict", remoteRequest{Symbol: m.symbol, Features: features}, &out, 2)
	if err != nil {
		return 0, fmt.Errorf("remote model %s: %w", m.symbol, err)
	}
	if out.Prediction == nil {
		return 0, fmt.Errorf("remote model %s: response has no prediction", m.symbol)
	}
	return *out.Prediction, nil
}
