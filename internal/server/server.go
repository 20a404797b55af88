// Package server exposes job intake over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xaenox/agent-worker/internal/agent"
	"github.com/xaenox/agent-worker/internal/models"
)

// Processor runs one job synchronously.
type Processor interface {
	Process(ctx context.Context, job models.Job) (agent.Status, error)
}

// RequestObserver counts served requests.
type RequestObserver interface {
	ObserveHTTP(method, path string, statusCode int)
}

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	echo      *echo.Echo
	http      *http.Server
	processor Processor
	observer  RequestObserver
	logger    *zap.Logger
}

type processResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// New wires the routes. gatherer may be nil to leave /metrics out.
func New(cfg Config, processor Processor, gatherer prometheus.Gatherer, observer RequestObserver, logger *zap.Logger) *Server {
	s := &Server{
		echo:      echo.New(),
		processor: processor,
		observer:  observer,
		logger:    logger,
	}

	s.echo.POST("/process", s.handleProcess)
	s.echo.GET("/health", s.handleHealth)
	if gatherer != nil {
		metrics := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
		s.echo.GET("/metrics", func(c *echo.Context) error {
			metrics.ServeHTTP(c.Response(), c.Request())
			return nil
		})
	}

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.echo,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("error serving HTTP: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleProcess(c *echo.Context) error {
	var job models.Job
	if err := json.NewDecoder(c.Request().Body).Decode(&job); err != nil {
		return s.reply(c, http.StatusBadRequest, errorResponse{Detail: fmt.Sprintf("invalid job payload: %v", err)})
	}

	status, err := s.processor.Process(c.Request().Context(), job)
	if err != nil {
		if status == agent.StatusInvalid || errors.Is(err, models.ErrInvalidJob) {
			return s.reply(c, http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
		}
		s.logger.Error("Error processing job",
			zap.String("job_id", job.JobID),
			zap.String("status", string(status)),
			zap.Error(err))
		return s.reply(c, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
	}

	return s.reply(c, http.StatusOK, processResponse{Status: "ok", JobID: job.JobID})
}

func (s *Server) handleHealth(c *echo.Context) error {
	return s.reply(c, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) reply(c *echo.Context, code int, body any) error {
	if s.observer != nil {
		s.observer.ObserveHTTP(c.Request().Method, c.Request().URL.Path, code)
	}
	return c.JSON(code, body)
}
