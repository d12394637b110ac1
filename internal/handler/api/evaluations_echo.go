package api

import (
	"errors"
	"net/http"

	"FinReplay/internal/domain/models"
	"FinReplay/internal/usecase"
	xhttp "FinReplay/pkg/http"
	xlogger "FinReplay/pkg/logger"

	"github.com/labstack/echo/v4"
)

// EvaluationsEchoHandler serves evaluation submission, reports and live progress.
type EvaluationsEchoHandler struct {
	logger   *xlogger.Logger
	svc      *usecase.EvaluationService
	progress http.Handler
}

// NewEvaluationsEchoHandler builds the handler. progress may be nil, in which case
// /ws/evaluations is not registered.
func NewEvaluationsEchoHandler(logger *xlogger.Logger, svc *usecase.EvaluationService, progress http.Handler) *EvaluationsEchoHandler {
	return &EvaluationsEchoHandler{logger: logger, svc: svc, progress: progress}
}

func (h *EvaluationsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/evaluations")
	g.POST("", h.Submit)
	g.GET("/:id", h.Get)
	g.GET("/:id/splits/:split", h.Split)
	if h.progress != nil {
		e.GET("/ws/evaluations", echo.WrapHandler(h.progress))
	}
}

func (h *EvaluationsEchoHandler) Submit(c echo.Context) error {
	req := &models.EvaluationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	report, err := h.svc.Submit(c.Request().Context(), c.RealIP(), *req)
	if err != nil {
		return h.fail(c, "submit evaluation", err)
	}
	return xhttp.AcceptedResponse(c, report)
}

func (h *EvaluationsEchoHandler) Get(c echo.Context) error {
	path := &models.EvaluationPath{}
	if verr := xhttp.ReadAndValidateRequest(c, path); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	report, err := h.svc.Get(c.Request().Context(), path.ID)
	if err != nil {
		return h.fail(c, "get evaluation", err)
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *EvaluationsEchoHandler) Split(c echo.Context) error {
	path := &models.EvaluationPath{}
	if verr := xhttp.ReadAndValidateRequest(c, path); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	split, err := h.svc.Split(c.Request().Context(), path.ID, path.Split)
	if err != nil {
		return h.fail(c, "get split", err)
	}
	return xhttp.SuccessResponse(c, split)
}

func (h *EvaluationsEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := FromDomainError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// FromDomainError maps the domain taxonomy onto HTTP errors.
func FromDomainError(err error) *xhttp.AppError {
	var cfgErr *models.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		return xhttp.NewAppError("ERR_CONFIGURATION", cfgErr.Field, cfgErr.Reason, http.StatusBadRequest).WithError(err)
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError("evaluation not found").WithError(err)
	case errors.Is(err, models.ErrInvalidAction):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrInvalidState):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrRateLimited):
		return xhttp.TooManyRequestsError("too many evaluation requests").WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
