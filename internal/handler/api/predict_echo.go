package api

import (
	"context"
	"errors"
	"net/http"

	"CryptoCast/internal/domain/models"
	"CryptoCast/internal/services/forecast"
	"CryptoCast/internal/usecase"
	xhttp "CryptoCast/pkg/http"
	xlogger "CryptoCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PredictionService is what the prediction endpoints need from the use case layer.
type PredictionService interface {
	Predict(ctx context.Context, symbol string, raw map[string]float64) (*usecase.Prediction, error)
	NormalizeValue(feature string, value float64) float64
	DenormalizeValue(feature string, normalized float64) float64
	Models() usecase.ModelsInfo
	Normalization() usecase.NormalizationInfo
	History(ctx context.Context, symbol string, limit int) ([]*models.PredictionEvent, error)
}

type PredictEchoHandler struct {
	logger *xlogger.Logger
	svc    PredictionService
}

func NewPredictEchoHandler(logger *xlogger.Logger, svc PredictionService) *PredictEchoHandler {
	return &PredictEchoHandler{logger: logger, svc: svc}
}

func (h *PredictEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.POST("/predict", h.Predict)
	g.GET("/models", h.Models)
	g.POST("/normalize", h.Normalize)
	g.POST("/denormalize", h.Denormalize)
	g.GET("/ranges", h.Ranges)
	g.GET("/predictions/history", h.History)
}

type valueResponse struct {
	Feature         string  `json:"feature"`
	Value           float64 `json:"value"`
	NormalizedValue float64 `json:"normalized_value"`
}

type healthResponse struct {
	Status          string `json:"status"`
	LoadedModels    int    `json:"loaded_models"`
	ModelGeneration uint64 `json:"model_generation"`
}

func (h *PredictEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.svc.Predict(c.Request().Context(), req.Cryptocurrency, req.Features)
	if err != nil {
		appErr := predictionError(err)
		if appErr.Status >= http.StatusInternalServerError {
			h.logger.Error("predict usecase error",
				xlogger.String("cryptocurrency", req.Cryptocurrency),
				xlogger.Error(err),
			)
		}
		return xhttp.AppErrorResponse(c, appErr)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PredictEchoHandler) Models(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.svc.Models())
}

func (h *PredictEchoHandler) Ranges(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=300")
	return xhttp.SuccessResponse(c, h.svc.Normalization())
}

func (h *PredictEchoHandler) Normalize(c echo.Context) error {
	req := &models.ValueRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, valueResponse{
		Feature:         req.Feature,
		Value:           *req.Value,
		NormalizedValue: h.svc.NormalizeValue(req.Feature, *req.Value),
	})
}

func (h *PredictEchoHandler) Denormalize(c echo.Context) error {
	req := &models.ValueRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, valueResponse{
		Feature:         req.Feature,
		Value:           h.svc.DenormalizeValue(req.Feature, *req.Value),
		NormalizedValue: *req.Value,
	})
}

func (h *PredictEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	events, err := h.svc.History(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		h.logger.Error("history usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("prediction history unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, events, int64(len(events)))
}

// Health reports 503 until at least one model is loaded.
func (h *PredictEchoHandler) Health(c echo.Context) error {
	info := h.svc.Models()
	res := healthResponse{
		Status:          "ok",
		LoadedModels:    len(info.LoadedModels),
		ModelGeneration: info.ModelGeneration,
	}
	if res.LoadedModels == 0 {
		res.Status = "no models loaded"
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}

func predictionError(err error) *xhttp.AppError {
	var (
		unknownSym  *forecast.UnknownSymbolError
		unknownFeat *forecast.UnknownFeatureError
	)
	switch {
	case errors.As(err, &unknownSym):
		return xhttp.NotFoundErrorf("no model for cryptocurrency %q", unknownSym.Symbol).
			WithField("cryptocurrency").
			WithParam("available", unknownSym.Available).
			WithError(err)
	case errors.As(err, &unknownFeat):
		return xhttp.BadRequestErrorf("unknown feature %q", unknownFeat.Feature).
			WithField("features").
			WithParam("features", forecast.CanonicalFeatures()).
			WithError(err)
	case errors.Is(err, forecast.ErrPredictionFailed):
		return xhttp.BadGatewayError("model failed to produce a prediction").WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.NewAppError("ERR_TIMEOUT", "", "prediction timed out", http.StatusGatewayTimeout).WithError(err)
	default:
		return xhttp.InternalError("prediction failed").WithError(err)
	}
}
