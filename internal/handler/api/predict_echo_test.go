package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"CryptoCast/internal/domain/models"
	"CryptoCast/internal/services/forecast"
	"CryptoCast/internal/usecase"
	xlogger "CryptoCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

type fakeService struct {
	predictErr  error
	gotSymbol   string
	gotFeatures map[string]float64
	loaded      []string
	history     []*models.PredictionEvent
	gotLimit    int
}

func (f *fakeService) Predict(_ context.Context, symbol string, raw map[string]float64) (*usecase.Prediction, error) {
	f.gotSymbol, f.gotFeatures = symbol, raw
	if f.predictErr != nil {
		return nil, f.predictErr
	}
	return &usecase.Prediction{ID: "p1", Cryptocurrency: "BTC", Prediction: 60000, PredictionDisplay: "60000.00", Features: raw}, nil
}

func (f *fakeService) NormalizeValue(_ string, v float64) float64 { return v / 10 }
func (f *fakeService) DenormalizeValue(_ string, v float64) float64 { return v * 10 }

func (f *fakeService) Models() usecase.ModelsInfo {
	return usecase.ModelsInfo{AvailableModels: []string{"BTC", "ETH"}, LoadedModels: f.loaded, Features: forecast.CanonicalFeatures()}
}

func (f *fakeService) Normalization() usecase.NormalizationInfo {
	return usecase.NormalizationInfo{NormMin: 1, NormMax: 10, Ranges: []forecast.FeatureRange{{Feature: "RSI", Min: 0, Max: 100}}}
}

func (f *fakeService) History(_ context.Context, _ string, limit int) ([]*models.PredictionEvent, error) {
	f.gotLimit = limit
	return f.history, nil
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func serve(t *testing.T, svc PredictionService, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	NewPredictEchoHandler(xlogger.Nop(), svc).RegisterRoutes(e)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return rec, env
}

func TestPredictEndpoint(t *testing.T) {
	svc := &fakeService{}
	rec, env := serve(t, svc, http.MethodPost, "/api/predict", `{"cryptocurrency":"BTC","features":{"Close":50000}}`)
	if rec.Code != http.StatusOK || env.Status != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if svc.gotSymbol != "BTC" || svc.gotFeatures["Close"] != 50000 {
		t.Fatalf("service got %q %v", svc.gotSymbol, svc.gotFeatures)
	}
	var p usecase.Prediction
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("decode prediction: %v", err)
	}
	if p.Prediction != 60000 || p.PredictionDisplay != "60000.00" {
		t.Fatalf("unexpected prediction %+v", p)
	}
}

func TestPredictEndpointErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"missing symbol", `{"features":{}}`, nil, http.StatusBadRequest},
		{"bad symbol", `{"cryptocurrency":"BT-C"}`, nil, http.StatusBadRequest},
		{"malformed json", `{"cryptocurrency":`, nil, http.StatusBadRequest},
		{"unknown symbol", `{"cryptocurrency":"DOGE"}`, &forecast.UnknownSymbolError{Symbol: "DOGE", Available: []string{"BTC"}}, http.StatusNotFound},
		{"unknown feature", `{"cryptocurrency":"BTC","features":{"close":1}}`, &forecast.UnknownFeatureError{Feature: "close"}, http.StatusBadRequest},
		{"model failure", `{"cryptocurrency":"BTC"}`, &forecast.PredictionFailedError{Symbol: "BTC", Cause: errors.New("boom")}, http.StatusBadGateway},
		{"unexpected", `{"cryptocurrency":"BTC"}`, errors.New("disk"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := serve(t, &fakeService{predictErr: tt.err}, http.MethodPost, "/api/predict", tt.body)
			if rec.Code != tt.want || env.Status != tt.want {
				t.Fatalf("got %d want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestUnknownSymbolListsAvailable(t *testing.T) {
	svc := &fakeService{predictErr: &forecast.UnknownSymbolError{Symbol: "DOGE", Available: []string{"BTC", "ETH"}}}
	_, env := serve(t, svc, http.MethodPost, "/api/predict", `{"cryptocurrency":"DOGE"}`)

	var errs []struct {
		Code   string                 `json:"code"`
		Field  string                 `json:"field"`
		Params map[string]interface{} `json:"params"`
	}
	if err := json.Unmarshal(env.Data, &errs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(errs) != 1 || errs[0].Code != "ERR_NOT_FOUND" || errs[0].Field != "cryptocurrency" {
		t.Fatalf("unexpected errors %+v", errs)
	}
	if av, ok := errs[0].Params["available"].([]interface{}); !ok || len(av) != 2 {
		t.Fatalf("available models missing: %+v", errs[0].Params)
	}
}

func TestValueEndpoints(t *testing.T) {
	svc := &fakeService{}

	_, env := serve(t, svc, http.MethodPost, "/api/normalize", `{"feature":"RSI","value":50}`)
	var v valueResponse
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Feature != "RSI" || v.Value != 50 || v.NormalizedValue != 5 {
		t.Fatalf("unexpected normalize response %+v", v)
	}

	_, env = serve(t, svc, http.MethodPost, "/api/denormalize", `{"feature":"RSI","value":5}`)
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Value != 50 || v.NormalizedValue != 5 {
		t.Fatalf("unexpected denormalize response %+v", v)
	}

	rec, _ := serve(t, svc, http.MethodPost, "/api/normalize", `{"feature":"RSI"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing value must be rejected, got %d", rec.Code)
	}
	rec, _ = serve(t, svc, http.MethodPost, "/api/normalize", `{"feature":"RSI","value":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("zero is a valid value, got %d", rec.Code)
	}
}

func TestInfoEndpoints(t *testing.T) {
	svc := &fakeService{loaded: []string{"BTC"}}

	_, env := serve(t, svc, http.MethodGet, "/api/models", "")
	var info usecase.ModelsInfo
	if err := json.Unmarshal(env.Data, &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(info.AvailableModels) != 2 || len(info.Features) != 14 {
		t.Fatalf("unexpected models info %+v", info)
	}

	rec, env := serve(t, svc, http.MethodGet, "/api/ranges", "")
	if rec.Header().Get(echo.HeaderCacheControl) == "" {
		t.Fatalf("ranges should be cacheable")
	}
	var norm usecase.NormalizationInfo
	if err := json.Unmarshal(env.Data, &norm); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if norm.NormMax != 10 || norm.Ranges[0].Feature != "RSI" {
		t.Fatalf("unexpected ranges %+v", norm)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	svc := &fakeService{history: []*models.PredictionEvent{{ID: "a"}}}

	rec, _ := serve(t, svc, http.MethodGet, "/api/predictions/history?symbol=BTC", "")
	if rec.Code != http.StatusOK || svc.gotLimit != 50 {
		t.Fatalf("default limit not applied: %d %d", rec.Code, svc.gotLimit)
	}
	rec, _ = serve(t, svc, http.MethodGet, "/api/predictions/history?limit=1000", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit above max must be rejected, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	rec, _ := serve(t, &fakeService{}, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("no models: got %d", rec.Code)
	}
	rec, _ = serve(t, &fakeService{loaded: []string{"BTC"}}, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("with models: got %d", rec.Code)
	}
}
