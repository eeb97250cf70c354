// internal/api/server.go
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tamzrod/uarm-bridge/internal/command"
	"github.com/tamzrod/uarm-bridge/internal/status"
)

// Injector accepts one inbound text command, the same text the bus
// string_write topic carries. A *command.DecodeError means bad input.
type Injector interface {
	Inject(text string) error
}

// StatusSource provides the current runtime snapshot.
type StatusSource interface {
	Snapshot() status.Snapshot
}

// CommandRequest is the POST /commands body.
type CommandRequest struct {
	Command string `json:"command"`
}

// Server is the HTTP side door: health, status and command injection.
type Server struct {
	e      *echo.Echo
	listen string
	log    *slog.Logger
}

// New builds the server and its routes. Nothing listens until Start.
func New(listen string, inj Injector, src StatusSource, log *slog.Logger) (*Server, error) {
	if inj == nil || src == nil {
		return nil, errors.New("api: injector and status source required")
	}
	if log == nil {
		log = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug("http request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	h := &handlers{inj: inj, src: src, log: log}
	e.GET("/healthz", h.health)
	e.GET("/status", h.status)
	e.POST("/commands", h.command)

	return &Server{e: e, listen: listen, log: log}, nil
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.log.Info("http listening", "addr", s.listen)
	if err := s.e.Start(s.listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// ---- handlers ----

type handlers struct {
	inj Injector
	src StatusSource
	log *slog.Logger
}

func (h *handlers) health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (h *handlers) status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.src.Snapshot())
}

func (h *handlers) command(c echo.Context) error {
	var req CommandRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.inj.Inject(req.Command); err != nil {
		var derr *command.DecodeError
		if errors.As(err, &derr) {
			h.log.Warn("rejected http command", "text", req.Command, "err", err)
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}
