package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dkovalev/papertrade/internal/usecase"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Server struct {
	router  *http.ServeMux
	server  *http.Server
	account *usecase.AccountService
	logger  *zap.Logger
}

func NewServer(port int, account *usecase.AccountService, logger *zap.Logger) *Server {
	s := &Server{
		router:  http.NewServeMux(),
		account: account,
		logger:  logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.withRequestID(s.router),
	}
	return s
}

func (s *Server) routes() {
	// Dashboard
	s.router.HandleFunc("GET /", s.handleDashboard)

	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)

	// Account
	s.router.HandleFunc("GET /api/account", s.handleAccount)

	// Orders
	s.router.HandleFunc("GET /api/orders", s.handleListOrders)
	s.router.HandleFunc("POST /api/orders", s.handleCreateOrder)
	s.router.HandleFunc("DELETE /api/orders/{id}", s.handleCancelOrder)

	// Positions
	s.router.HandleFunc("GET /api/positions", s.handleListPositions)

	// Price
	s.router.HandleFunc("GET /api/price", s.handlePrice)

	// Reset
	s.router.HandleFunc("POST /api/reset", s.handleReset)
}

// withRequestID tags every request with an id so log lines from one request
// can be correlated. Client-supplied ids are kept.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		s.logger.Debug("http request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		next.ServeHTTP(w, r)
	})
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

// Handler exposes the routed mux for tests.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.router)
}
