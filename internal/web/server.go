package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vitos/tick_trader/internal/domain"
	"github.com/vitos/tick_trader/internal/usecase"
	"go.uber.org/zap"
)

// BotController is the slice of the bot service the HTTP API drives.
type BotController interface {
	Connect(ctx context.Context, token string) (*domain.AccountInfo, error)
	Disconnect()
	Start(ctx context.Context, req usecase.StartRequest) error
	Stop() error
	ResetHistory(ctx context.Context) error
	Status() usecase.BotStatus
	Stats() usecase.TradeStats
	Ticks() []domain.Tick
	History() []*domain.TradeRecord
}

type Server struct {
	router       *http.ServeMux
	server       *http.Server
	bot          BotController
	settings     domain.SettingsRepository
	hub          *Hub
	defaultToken string
	logger       *zap.Logger
}

// NewServer wires the JSON API. defaultToken is used by POST /api/connect
// when the request body carries none.
func NewServer(
	port int,
	bot BotController,
	settings domain.SettingsRepository,
	hub *Hub,
	defaultToken string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:       http.NewServeMux(),
		bot:          bot,
		settings:     settings,
		hub:          hub,
		defaultToken: defaultToken,
		logger:       logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)

	// Session
	s.router.HandleFunc("POST /api/connect", s.handleConnect)
	s.router.HandleFunc("POST /api/disconnect", s.handleDisconnect)

	// Bot
	s.router.HandleFunc("POST /api/bot/start", s.handleStartBot)
	s.router.HandleFunc("POST /api/bot/stop", s.handleStopBot)

	// Market data and history
	s.router.HandleFunc("GET /api/ticks", s.handleTicks)
	s.router.HandleFunc("GET /api/trades", s.handleTrades)
	s.router.HandleFunc("GET /api/stats", s.handleStats)
	s.router.HandleFunc("POST /api/history/reset", s.handleResetHistory)

	// Strategy settings
	s.router.HandleFunc("GET /api/strategies/{kind}", s.handleGetStrategy)
	s.router.HandleFunc("PUT /api/strategies/{kind}", s.handlePutStrategy)

	// Live feed
	if s.hub != nil {
		s.router.HandleFunc("GET /ws", s.hub.ServeWS)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
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
