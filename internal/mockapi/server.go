// Package mockapi is a development backend that speaks the wallet API contract.
// State lives in memory and is lost on restart.
package mockapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"miniapp-wallet-client/internal/config"
	"miniapp-wallet-client/internal/models"
)

const (
	mutationRPS   = 10
	mutationBurst = 20
)

type Server struct {
	ledger *Ledger
	tokens *TokenService
	hub    *Hub
	router *gin.Engine

	mu         sync.Mutex
	httpServer *http.Server
}

func New(cfg *config.Config) (*Server, error) {
	depMin, depMax, err := cfg.DepositRange()
	if err != nil {
		return nil, err
	}
	wdMin, wdMax, err := cfg.WithdrawRange()
	if err != nil {
		return nil, err
	}
	limits := models.CurrencyLimits{
		Currency:    models.NormalizeCurrency(cfg.DefaultCurrency),
		DepositMin:  depMin,
		DepositMax:  depMax,
		WithdrawMin: wdMin,
		WithdrawMax: wdMax,
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		ledger: NewLedger(limits.Currency, cfg.StartBalance()),
		tokens: NewTokenService(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL),
		hub:    NewHub(),
	}
	s.ledger.SetBroadcaster(s.hub)
	go s.hub.Run()

	authHandler := NewAuthHandler(s.ledger, s.tokens, cfg.BotToken, cfg.MockEmail, cfg.MockPassword)
	walletHandler := NewWalletHandler(s.ledger, limits)
	wsHandler := NewWebSocketHandler(s.hub, s.ledger)
	limiter := NewRateLimiter(mutationRPS, mutationBurst)

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := router.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	protected := router.Group("/api")
	protected.Use(AuthMiddleware(s.tokens, s.ledger, cfg.BotToken), limiter.Middleware())
	{
		protected.GET("/auth/me", authHandler.Me)
		protected.GET("/ws", wsHandler.HandleWebSocket)

		wallet := protected.Group("/wallet")
		{
			wallet.GET("/balance", walletHandler.GetBalance)
			wallet.POST("/deposit", walletHandler.CreateDeposit)
			wallet.POST("/withdraw", walletHandler.CreateWithdrawal)
			wallet.GET("/transactions", walletHandler.ListTransactions)
			wallet.GET("/transaction/:id", walletHandler.GetTransaction)
		}

		if cfg.Env != "production" {
			protected.POST("/dev/deposits/:id/settle", walletHandler.SettleDeposit)
		}
	}

	s.router = router
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Ledger() *Ledger {
	return s.ledger
}

func (s *Server) Tokens() *TokenService {
	return s.tokens
}

// Start blocks serving on addr until Shutdown.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the websocket hub and drains HTTP connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Close releases the hub for servers that were never started.
func (s *Server) Close() {
	s.hub.Stop()
}
