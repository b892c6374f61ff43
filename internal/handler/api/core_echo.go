package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"AdaptiveEnsemble/internal/domain/models"
	domrepo "AdaptiveEnsemble/internal/domain/repository"
	"AdaptiveEnsemble/internal/services/training"
	"AdaptiveEnsemble/internal/usecase"
	xhttp "AdaptiveEnsemble/pkg/http"
	"AdaptiveEnsemble/pkg/http/middleware"
	xlogger "AdaptiveEnsemble/pkg/logger"
)

// CoreHandler exposes the learning core over HTTP.
type CoreHandler struct {
	logger *xlogger.Logger
	core   *usecase.Core
	frames *usecase.FrameLoader
	rl     *middleware.Limiter
	now    func() time.Time
}

var _ xhttp.Handler = (*CoreHandler)(nil)

func NewCoreHandler(logger *xlogger.Logger, core *usecase.Core, frames *usecase.FrameLoader) *CoreHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &CoreHandler{logger: logger, core: core, frames: frames, rl: middleware.NewLimiter(), now: time.Now}
}

func (h *CoreHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/bundle", h.Bundle)
	g.POST("/bundle/save", h.SaveBundle)
	g.POST("/bundle/load", h.LoadBundle)
	g.GET("/retrain", h.Retrain)
	g.GET("/regime", h.Regime, middleware.RateLimit(h.rl, "regime", 5, 2, h.logger))
	g.GET("/predict", h.Predict, middleware.RateLimit(h.rl, "predict", 10, 5, h.logger))
}

// BundleSummary is the public view of a trained bundle.
type BundleSummary struct {
	ID             string             `json:"id"`
	Symbol         string             `json:"symbol"`
	TrainedAt      time.Time          `json:"trained_at"`
	HorizonMinutes int                `json:"horizon_minutes"`
	Selected       []string           `json:"selected"`
	Features       int                `json:"features"`
	CVScores       map[string]float64 `json:"cv_scores"`
	Regime         models.Regime      `json:"regime"`
	Samples        int                `json:"samples"`
}

// Summarize projects b onto its public view.
func Summarize(b *training.Bundle) BundleSummary {
	return BundleSummary{
		ID:             b.ID,
		Symbol:         b.Symbol,
		TrainedAt:      b.TrainedAt,
		HorizonMinutes: b.HorizonMinutes,
		Selected:       b.Selected,
		Features:       len(b.Features),
		CVScores:       b.CVScores,
		Regime:         b.Regime,
		Samples:        b.Samples,
	}
}

func (h *CoreHandler) Health(c echo.Context) error {
	res := map[string]interface{}{"status": "ok"}
	if b := h.core.Active(); b != nil {
		res["bundle_id"] = b.ID
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CoreHandler) Bundle(c echo.Context) error {
	b := h.core.Active()
	if b == nil {
		return xhttp.ErrorResponse(c, xhttp.NotFoundError("no active bundle"))
	}
	return xhttp.SuccessResponse(c, Summarize(b))
}

func (h *CoreHandler) SaveBundle(c echo.Context) error {
	id, err := h.core.SaveBundle(c.Request().Context())
	if err != nil {
		h.logger.Error("save bundle error", xlogger.Error(err))
		return xhttp.ErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"id": id})
}

func (h *CoreHandler) LoadBundle(c echo.Context) error {
	req := &models.LoadBundleRequest{}
	if verrs := xhttp.Bind(c, req); verrs != nil {
		return xhttp.ValidationResponse(c, verrs)
	}
	b, err := h.core.LoadBundle(c.Request().Context(), req.ID)
	if err != nil {
		h.logger.Error("load bundle error", xlogger.Error(err))
		return xhttp.ErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, Summarize(b))
}

func (h *CoreHandler) Retrain(c echo.Context) error {
	should, reason := h.core.ShouldRetrain(h.now())
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"should_retrain":       should,
		"reason":               reason,
		"trades_since_retrain": h.core.TradesSinceRetrain(),
	})
}

func (h *CoreHandler) Regime(c echo.Context) error {
	req := &models.RegimeRequest{}
	if verrs := xhttp.Bind(c, req); verrs != nil {
		return xhttp.ValidationResponse(c, verrs)
	}
	frame, err := h.load(c.Request().Context(), req.Symbol, req.N, req.TF)
	if err != nil {
		return xhttp.ErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"symbol": req.Symbol,
		"bars":   frame.Len(),
		"regime": h.core.RegimeOf(frame),
	})
}

func (h *CoreHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verrs := xhttp.Bind(c, req); verrs != nil {
		return xhttp.ValidationResponse(c, verrs)
	}
	frame, err := h.load(c.Request().Context(), req.Symbol, req.N, req.TF)
	if err != nil {
		return xhttp.ErrorResponse(c, toAppError(err))
	}
	pred, err := h.core.PredictActive(frame)
	if err != nil {
		h.logger.Warn("predict error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.ErrorResponse(c, toAppError(err))
	}
	res := PredictResponse{Prediction: pred}
	if req.Capital > 0 {
		res.IntentPublished, err = h.core.Emit(c.Request().Context(), pred, req.Capital)
		if err != nil {
			h.logger.Warn("intent not published", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		}
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, res)
}

// PredictResponse is a prediction plus whether an intent was published for it.
type PredictResponse struct {
	models.Prediction
	IntentPublished bool `json:"intent_published"`
}

func (h *CoreHandler) load(ctx context.Context, symbol string, n int, tf string) (models.Frame, error) {
	return h.frames.LoadFrame(ctx, usecase.LoadFrameParams{
		Symbol:    symbol,
		Timeframe: domrepo.Timeframe(tf),
		Limit:     n,
	})
}

// toAppError maps core error kinds onto HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	kind := models.KindOf(err)
	switch kind {
	case models.KindNoActiveBundle:
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case models.KindStoreUnavailable:
		return xhttp.UnavailableError(err.Error()).WithError(err)
	case models.KindInsufficientHistory, models.KindNotEnoughData, models.KindFeatureSchemaMismatch,
		models.KindFeatureComputationFailed, models.KindBundleVersionMismatch:
		return xhttp.UnprocessableError("ERR_"+string(kind), err.Error()).WithError(err)
	default:
		return xhttp.InternalErrorf("%v", err).WithError(err)
	}
}
