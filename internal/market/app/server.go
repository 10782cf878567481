// Package server wires the marketplace runtime and HTTP lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	httpapi "github.com/mintbay/mintbay/internal/market/api/http"
	"github.com/mintbay/mintbay/internal/market/ledger"
	marketsqlite "github.com/mintbay/mintbay/internal/market/storage/sqlite"
	entrypoint "github.com/mintbay/mintbay/internal/platform/cmd"
	"github.com/mintbay/mintbay/internal/platform/config"
)

type serverEnv struct {
	DBPath        string `env:"MINTBAY_MARKETD_DB_PATH"`
	FeePercent    uint64 `env:"MINTBAY_MARKETD_FEE_PERCENT" envDefault:"1"`
	FeeAccount    string `env:"MINTBAY_MARKETD_FEE_ACCOUNT" envDefault:"market-fees"`
	Escrow        string `env:"MINTBAY_MARKETD_ESCROW_ACCOUNT" envDefault:"market-escrow"`
	JWTSecret     string `env:"MINTBAY_MARKETD_JWT_SECRET"`
	TokenTTLHours int    `env:"MINTBAY_MARKETD_TOKEN_TTL_HOURS" envDefault:"24"`
}

func loadServerEnv() (serverEnv, error) {
	var cfg serverEnv
	if err := config.ParseEnv(&cfg); err != nil {
		return serverEnv{}, err
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "market.db")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return serverEnv{}, errors.New("MINTBAY_MARKETD_JWT_SECRET is required")
	}
	return cfg, nil
}

// Server hosts the marketplace HTTP API and storage lifecycle.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *marketsqlite.Store
}

// New creates a configured marketplace server listening on the provided port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured marketplace server for the provided address.
func NewWithAddr(addr string) (*Server, error) {
	env, err := loadServerEnv()
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	store, err := openMarketStore(env.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	offerLedger, err := ledger.New(store, ledger.Config{
		FeePercent:   env.FeePercent,
		FeeRecipient: env.FeeAccount,
		Escrow:       env.Escrow,
	})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("configure ledger: %w", err)
	}

	auth := httpapi.NewAuth([]byte(env.JWTSecret), time.Duration(env.TokenTTLHours)*time.Hour)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), httpapi.Trace(entrypoint.ServiceMarket))
	httpapi.Register(engine, httpapi.NewHandler(offerLedger, store), auth)

	return &Server{
		listener: listener,
		httpServer: &http.Server{
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		store: store,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a marketplace server until context cancellation.
func Run(ctx context.Context, port int) error {
	server, err := New(port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the HTTP server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("market server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// Close releases marketplace server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close market store: %v", err)
		}
	}
}

func openMarketStore(path string) (*marketsqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := marketsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open market sqlite store: %w", err)
	}
	return store, nil
}
