package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"grid-optimizer/internal/analysis"
	"grid-optimizer/internal/backtest"
	"grid-optimizer/internal/models"
	"grid-optimizer/internal/observability"
	"grid-optimizer/internal/runner"
	"grid-optimizer/internal/tradelog"
)

// Server 通过 HTTP 提供回测和参数优化
type Server struct {
	runner  *runner.Runner
	metrics *observability.Metrics
	logger  *zap.Logger
	engine  *gin.Engine
	origins []string
}

// NewServer 创建 API 服务并注册路由。metrics 为 nil 时不提供 /metrics。
func NewServer(r *runner.Runner, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:  r,
		metrics: metrics,
		logger:  logger,
		engine:  gin.New(),
		origins: r.Config().Server.AllowedOrigins,
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.engine.Group("/api/v1")
	{
		api.POST("/backtest", s.runBacktest)
		api.POST("/optimize", s.runOptimize)
		api.GET("/runs", s.listRuns)
		api.GET("/runs/:id", s.getRun)
	}
}

// Handler 返回带 CORS 处理的 http.Handler
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.engine)
}

// ListenAndServe 启动服务，ctx 取消后优雅退出
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API 服务已启动", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("正在关闭 API 服务")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func abort(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: err.Error()}})
}

func (s *Server) runBacktest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	if req.Params.GridCount <= 0 || req.Params.MinOrderQuantity <= 0 {
		abort(c, http.StatusBadRequest, "INVALID_PARAMS", errors.New("params.grid_count and params.min_order_quantity must be positive"))
		return
	}

	res, err := s.runner.Backtest(c.Request.Context(), tradelog.Normalize(req.Trades), req.Params)
	if err != nil {
		s.backtestError(c, err)
		return
	}

	c.JSON(http.StatusOK, BacktestResponse{
		Metrics: res.Metrics,
		Trades:  len(res.State.Trades),
		Ladder:  res.Ladder.Prices(),
		State: BacktestStateSummary{
			Cash:         res.State.Cash,
			OpenQuantity: res.State.OpenQuantity(),
			Positions:    res.State.Positions,
		},
	})
}

func (s *Server) backtestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, backtest.ErrDegenerateInput), errors.Is(err, backtest.ErrDegenerateLevel),
		errors.Is(err, backtest.ErrInvalidGridCount), errors.Is(err, analysis.ErrNotEnoughEvents):
		abort(c, http.StatusUnprocessableEntity, "DEGENERATE_INPUT", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		abort(c, http.StatusServiceUnavailable, "CANCELLED", err)
	default:
		s.logger.Error("backtest failed", zap.Error(err))
		abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", err)
	}
}

func (s *Server) runOptimize(c *gin.Context) {
	var req OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}

	var tf models.TimeFrame
	if req.TimeFrame != "" {
		parsed, err := models.ParseTimeFrame(req.TimeFrame)
		if err != nil {
			abort(c, http.StatusBadRequest, "INVALID_TIME_FRAME", err)
			return
		}
		tf = parsed
	}

	run, err := s.runner.Optimize(c.Request.Context(), req.Symbol, tf, tradelog.Normalize(req.Trades))
	if err != nil {
		s.backtestError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.runner.Runs()
	if err != nil {
		s.backtestError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) getRun(c *gin.Context) {
	run, err := s.runner.Run(c.Param("id"))
	if err != nil {
		s.backtestError(c, err)
		return
	}
	if run == nil {
		abort(c, http.StatusNotFound, "NOT_FOUND", errors.New("run not found"))
		return
	}
	c.JSON(http.StatusOK, run)
}
