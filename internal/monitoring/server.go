package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
)

// ServerConfig for the status HTTP surface
type ServerConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Addr       string        `mapstructure:"addr"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// Server exposes health, metrics and per-symbol status
type Server struct {
	cfg    ServerConfig
	router *gin.Engine
	board  *StatusBoard
	log    *logger.Logger
	srv    *http.Server
}

// NewServer builds the router
func NewServer(cfg ServerConfig, board *StatusBoard, metrics *Metrics, log *logger.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{cfg: cfg, router: router, board: board, log: log.Named("http")}
	router.GET("/health", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.GET("/status/:symbol", s.handleSymbol)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return s
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{Addr: s.cfg.Addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("status server listening", zap.String("addr", s.cfg.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	h := Health(s.board, s.cfg.StaleAfter, time.Now())
	code := http.StatusOK
	if h.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, h)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbols": s.board.All()})
}

func (s *Server) handleSymbol(c *gin.Context) {
	st, ok := s.board.Get(c.Param("symbol"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
		return
	}
	c.JSON(http.StatusOK, st)
}
