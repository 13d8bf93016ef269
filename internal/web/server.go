package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/turtle_trader/internal/domain"
	"github.com/vitos/turtle_trader/internal/infrastructure/metrics"
	"github.com/vitos/turtle_trader/internal/usecase"
)

// TradingService is the part of the turtle service exposed over HTTP.
type TradingService interface {
	Status() []usecase.SymbolStatus
	StatusFor(symbol string) (usecase.SymbolStatus, error)
	StartTrading(ctx context.Context, symbol string) error
	StopTrading(ctx context.Context, symbol string) error
	Symbols() []string
	RecentOrders(ctx context.Context, symbol string, limit int) ([]*domain.Order, error)
	RecentFills(ctx context.Context, symbol string, limit int) ([]*domain.Fill, error)
	ClosedTrades(ctx context.Context, limit int) ([]*domain.PositionHistory, error)
}

type Server struct {
	router  *http.ServeMux
	server  *http.Server
	service TradingService
	logger  *zap.Logger
}

func NewServer(port int, service TradingService, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:  http.NewServeMux(),
		service: service,
		logger:  logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)
	s.router.HandleFunc("GET /status/{symbol}", s.handleSymbolStatus)

	// Trading switch
	s.router.HandleFunc("POST /trading/start", s.handleStartAll)
	s.router.HandleFunc("POST /trading/stop", s.handleStopAll)
	s.router.HandleFunc("POST /trading/{symbol}/start", s.handleStart)
	s.router.HandleFunc("POST /trading/{symbol}/stop", s.handleStop)

	// History
	s.router.HandleFunc("GET /orders", s.handleOrders)
	s.router.HandleFunc("GET /fills", s.handleFills)
	s.router.HandleFunc("GET /trades", s.handleTrades)

	s.router.Handle("GET /metrics", metrics.Handler())
}

// Handler returns the router wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.router)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
