// Package api exposes the board over HTTP: merged tables, controller
// operations, agent comparison, policy recommendation and the fault
// journal, plus a websocket that pushes snapshots on every change.
package api

import (
	"errors"

	"github.com/labstack/echo/v4"

	"PolEn/internal/domain/models"
	"PolEn/internal/service/ratelimit"
	"PolEn/internal/usecase"
	phttp "PolEn/pkg/http"
	"PolEn/pkg/logger"
)

type BoardHandler struct {
	controller *usecase.BoardController
	journal    *logger.Journal
	limiter    *ratelimit.Limiter
	log        *logger.Logger
}

func NewBoardHandler(
	controller *usecase.BoardController,
	journal *logger.Journal,
	limiter *ratelimit.Limiter,
	log *logger.Logger,
) *BoardHandler {
	return &BoardHandler{
		controller: controller,
		journal:    journal,
		limiter:    limiter,
		log:        log,
	}
}

func (h *BoardHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/board", h.getBoard)
	e.GET("/api/board/status", h.getStatus)
	e.POST("/api/board/refresh", h.postRefresh)
	e.POST("/api/board/run", h.postRun)
	e.POST("/api/board/pause", h.postPause)
	e.POST("/api/board/reset", h.postReset)
	e.POST("/api/board/anchor", h.postAnchor)
	e.POST("/api/board/deviation", h.postDeviation)
	e.POST("/api/agents/compare", h.postCompare)
	e.POST("/api/policy/recommend", h.postRecommend)
	e.GET("/api/faults", h.getFaults)
	e.GET("/ws/board", h.wsBoard)
}

func (h *BoardHandler) getBoard(c echo.Context) error {
	return phttp.SuccessResponse(c, h.controller.Board())
}

func (h *BoardHandler) getStatus(c echo.Context) error {
	return phttp.SuccessResponse(c, h.controller.Status())
}

func (h *BoardHandler) postRefresh(c echo.Context) error {
	if !h.limiter.Allow() {
		return phttp.AppErrorResponse(c, phttp.RateLimitedError("too many engine requests"))
	}
	summary, err := h.controller.Refresh(c.Request().Context())
	if err != nil {
		return h.mapError(c, err)
	}
	h.journal.Clear()
	return phttp.SuccessResponse(c, summary)
}

func (h *BoardHandler) postRun(c echo.Context) error {
	req := new(models.RunRequest)
	if details := phttp.ReadAndValidateRequest(c, req); details != nil {
		return phttp.BadRequestResponse(c, details)
	}
	if !h.limiter.Allow() {
		return phttp.AppErrorResponse(c, phttp.RateLimitedError("too many engine requests"))
	}
	if err := h.controller.Run(c.Request().Context(), req); err != nil {
		return h.mapError(c, err)
	}
	return phttp.AcceptedResponse(c, h.controller.Status())
}

func (h *BoardHandler) postPause(c echo.Context) error {
	h.controller.Pause()
	return phttp.SuccessResponse(c, h.controller.Status())
}

func (h *BoardHandler) postReset(c echo.Context) error {
	h.controller.Reset()
	h.journal.Clear()
	return phttp.SuccessResponse(c, h.controller.Status())
}

func (h *BoardHandler) postAnchor(c echo.Context) error {
	req := new(models.AnchorRequest)
	if details := phttp.ReadAndValidateRequest(c, req); details != nil {
		return phttp.BadRequestResponse(c, details)
	}
	if err := h.controller.SetAnchor(c.Request().Context(), req.Date); err != nil {
		return h.mapError(c, err)
	}
	return phttp.SuccessResponse(c, h.controller.Status())
}

func (h *BoardHandler) postDeviation(c echo.Context) error {
	on := h.controller.ToggleDeviation()
	return phttp.SuccessResponse(c, map[string]bool{"deviation_mode": on})
}

func (h *BoardHandler) postCompare(c echo.Context) error {
	req := new(models.CompareRequest)
	if details := phttp.ReadAndValidateRequest(c, req); details != nil {
		return phttp.BadRequestResponse(c, details)
	}
	if !h.limiter.Allow() {
		return phttp.AppErrorResponse(c, phttp.RateLimitedError("too many engine requests"))
	}
	cmp, err := h.controller.Compare(c.Request().Context(), req)
	if err != nil {
		return h.mapError(c, err)
	}
	return phttp.SuccessResponse(c, cmp)
}

func (h *BoardHandler) postRecommend(c echo.Context) error {
	req := new(models.RecommendRequest)
	if details := phttp.ReadAndValidateRequest(c, req); details != nil {
		return phttp.BadRequestResponse(c, details)
	}
	if !h.limiter.Allow() {
		return phttp.AppErrorResponse(c, phttp.RateLimitedError("too many engine requests"))
	}
	rec, err := h.controller.Recommend(c.Request().Context(), req)
	if err != nil {
		return h.mapError(c, err)
	}
	return phttp.SuccessResponse(c, rec)
}

func (h *BoardHandler) getFaults(c echo.Context) error {
	limit := phttp.ParseIntDefault(c.QueryParam("limit"), 20)
	return phttp.SuccessResponse(c, h.journal.Recent(limit))
}

func (h *BoardHandler) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrNoData):
		return phttp.AppErrorResponse(c, phttp.ConflictError("no history loaded, refresh first"))
	case errors.Is(err, usecase.ErrUnknownAnchor):
		return phttp.AppErrorResponse(c, phttp.BadRequestError(err.Error()))
	default:
		h.log.Error("engine operation failed", logger.Error(err))
		return phttp.AppErrorResponse(c, phttp.UpstreamError(err.Error()))
	}
}
