package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/EarningEdge/forex-trade-processor/internal/auth"
	"github.com/EarningEdge/forex-trade-processor/internal/config"
	"github.com/EarningEdge/forex-trade-processor/internal/fanout"
	"github.com/EarningEdge/forex-trade-processor/internal/gateway"
	"github.com/EarningEdge/forex-trade-processor/internal/ledger"
	"github.com/EarningEdge/forex-trade-processor/internal/metaapi"
)

// Server is the HTTP/WebSocket boundary of the gateway.
type Server struct {
	cfg      config.ServerConfig
	manager  *gateway.Manager
	engine   *fanout.Engine
	ledger   *ledger.Ledger
	api      metaapi.API
	auth     *auth.Service
	logger   *slog.Logger
	upgrader websocket.Upgrader

	http *http.Server
}

// New creates a server wired to the gateway components.
func New(
	cfg config.ServerConfig,
	manager *gateway.Manager,
	engine *fanout.Engine,
	l *ledger.Ledger,
	api metaapi.API,
	authService *auth.Service,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		manager: manager,
		engine:  engine,
		ledger:  l,
		api:     api,
		auth:    authService,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || cfg.CORSOrigin == "" || origin == cfg.CORSOrigin
			},
		},
	}

	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.routes(),
	}

	return s
}

// ListenAndServe blocks serving HTTP until the listener fails or the
// server is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	protected := r.NewRoute().Subrouter()
	protected.Use(s.authMiddleware)
	protected.HandleFunc("/accounts", s.handleListAccounts).Methods(http.MethodGet)
	protected.HandleFunc("/accounts", s.handleCreateAccount).Methods(http.MethodPost)
	protected.HandleFunc("/accounts/{accountId}", s.handleGetAccount).Methods(http.MethodGet)
	protected.HandleFunc("/accounts/{accountId}", s.handleDisconnectAccount).Methods(http.MethodDelete)
	protected.HandleFunc("/accounts/{accountId}/positions", s.handleGetPositions).Methods(http.MethodGet)
	protected.HandleFunc("/accounts/{accountId}/orders", s.handleGetOrders).Methods(http.MethodGet)
	protected.HandleFunc("/accounts/{accountId}/order-history", s.handleOrderHistory).Methods(http.MethodGet)
	protected.HandleFunc("/accounts/{accountId}/deal-history", s.handleDealHistory).Methods(http.MethodGet)
	protected.HandleFunc("/refresh-accounts", s.handleRefreshAccounts).Methods(http.MethodPost)

	return s.corsMiddleware(r)
}

// corsMiddleware allows the configured frontend origin, with credentials.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.CORSOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware requires a valid admin token, from the Authorization
// header or the token cookie.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if cookie, err := r.Cookie("token"); err == nil {
				token = cookie.Value
			}
		}

		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		if _, err := s.auth.Verify(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
