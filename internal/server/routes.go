package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/core/domain"
	"github.com/berfenger/oigshield2mqtt/internal/core/service"
	"github.com/berfenger/oigshield2mqtt/internal/core/shield"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const requestTimeout = 30 * time.Second

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
	e.GET("/shield", s.ShieldStatusHandler)
	e.POST("/commands/:name", s.SubmitCommandHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) ShieldStatusHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetShieldStatusRequest{}, requestTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.GetShieldStatusResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: response.GetResponseError().Error()})
	}
	return c.JSON(http.StatusOK, response.Status)
}

func (s *Server) SubmitCommandHandler(c echo.Context) error {
	name := c.Param("name")
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	params, err := s.catalog.Decode(name, body)
	if err != nil {
		return c.JSON(statusFor(err), errorResponse{Error: err.Error()})
	}

	res, err := s.rootContext.RequestFuture(s.masterActor, domain.SubmitCommandRequest{Name: name, Params: params}, requestTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.SubmitCommandResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		err := response.GetResponseError()
		return c.JSON(statusFor(err), errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, response.Result)
}

func statusFor(err error) int {
	var dispatchErr *shield.DispatchError
	switch {
	case errors.Is(err, service.ErrUnknownCommand), errors.Is(err, service.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.As(err, &dispatchErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
