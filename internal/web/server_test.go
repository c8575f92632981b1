package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/tick_trader/internal/domain"
	"github.com/vitos/tick_trader/internal/usecase"
	"go.uber.org/zap"
)

type fakeBot struct {
	mu         sync.Mutex
	token      string
	startErr   error
	startReq   usecase.StartRequest
	stopped    bool
	reset      bool
	disconnect bool
}

func (f *fakeBot) Connect(_ context.Context, token string) (*domain.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token == "bad" {
		return nil, fmt.Errorf("%w: InvalidToken", domain.ErrAuthentication)
	}
	f.token = token
	return &domain.AccountInfo{LoginID: "VRTC1", Balance: 100, Currency: "USD", IsVirtual: true}, nil
}

func (f *fakeBot) Disconnect() { f.disconnect = true }

func (f *fakeBot) Start(_ context.Context, req usecase.StartRequest) error {
	f.startReq = req
	return f.startErr
}

func (f *fakeBot) Stop() error {
	f.stopped = true
	return nil
}

func (f *fakeBot) ResetHistory(context.Context) error {
	f.reset = true
	return nil
}

func (f *fakeBot) Status() usecase.BotStatus {
	return usecase.BotStatus{Connection: domain.StatusConnected, Symbol: "R_100"}
}

func (f *fakeBot) Stats() usecase.TradeStats {
	return usecase.TradeStats{TotalTrades: 2, Wins: 1, Losses: 1, WinRate: 50}
}

func (f *fakeBot) Ticks() []domain.Tick {
	return []domain.Tick{{Symbol: "R_100", Epoch: 1, Quote: 100}}
}

func (f *fakeBot) History() []*domain.TradeRecord {
	return []*domain.TradeRecord{{ID: "t1", Result: domain.ResultWin}}
}

type memorySettings struct {
	saved map[domain.StrategyKind]domain.StrategyConfig
}

func (m *memorySettings) GetStrategyConfig(_ context.Context, kind domain.StrategyKind) (domain.StrategyConfig, error) {
	if cfg, ok := m.saved[kind]; ok {
		return cfg, nil
	}
	return domain.DefaultStrategyConfig(kind), nil
}

func (m *memorySettings) SaveStrategyConfig(_ context.Context, cfg domain.StrategyConfig) error {
	m.saved[cfg.Kind] = cfg
	return nil
}

func newTestServer(defaultToken string) (*Server, *fakeBot, *memorySettings) {
	bot := &fakeBot{}
	settings := &memorySettings{saved: map[domain.StrategyKind]domain.StrategyConfig{}}
	s := NewServer(0, bot, settings, NewHub(zap.NewNop()), defaultToken, zap.NewNop())
	return s, bot, settings
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Status(t *testing.T) {
	s, _, _ := newTestServer("")

	rec := do(t, s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status usecase.BotStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, domain.StatusConnected, status.Connection)
	assert.Equal(t, "R_100", status.Symbol)
}

func TestServer_ConnectFallsBackToConfiguredToken(t *testing.T) {
	s, bot, _ := newTestServer("configured")

	rec := do(t, s, http.MethodPost, "/api/connect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "configured", bot.token)

	rec = do(t, s, http.MethodPost, "/api/connect", `{"token":"explicit"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "explicit", bot.token)
}

func TestServer_ConnectErrors(t *testing.T) {
	s, _, _ := newTestServer("")

	rec := do(t, s, http.MethodPost, "/api/connect", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/connect", `{"token":"bad"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/connect", `{"token":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_StartMapsErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"started", nil, http.StatusOK},
		{"already running", domain.ErrBotRunning, http.StatusConflict},
		{"not connected", domain.ErrNotConnected, http.StatusConflict},
		{"insufficient balance", domain.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{"unknown strategy", fmt.Errorf("%w: nope", domain.ErrUnknownStrategy), http.StatusBadRequest},
		{"storage", fmt.Errorf("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, bot, _ := newTestServer("")
			bot.startErr = tt.err

			rec := do(t, s, http.MethodPost, "/api/bot/start", `{"strategy":"kyros_trend","symbol":"R_50","stake":2}`)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, usecase.StartRequest{Strategy: domain.StrategyKyrosTrend, Symbol: "R_50", Stake: 2}, bot.startReq)
		})
	}
}

func TestServer_StopDisconnectAndReset(t *testing.T) {
	s, bot, _ := newTestServer("")

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/bot/stop", "").Code)
	assert.True(t, bot.stopped)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/disconnect", "").Code)
	assert.True(t, bot.disconnect)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/api/history/reset", "").Code)
	assert.True(t, bot.reset)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/api/bot/stop", "").Code)
}

func TestServer_ReadEndpoints(t *testing.T) {
	s, _, _ := newTestServer("")

	var ticks []domain.Tick
	rec := do(t, s, http.MethodGet, "/api/ticks", "")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ticks))
	assert.Len(t, ticks, 1)

	var trades []*domain.TradeRecord
	rec = do(t, s, http.MethodGet, "/api/trades", "")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "t1", trades[0].ID)

	var stats usecase.TradeStats
	rec = do(t, s, http.MethodGet, "/api/stats", "")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 50.0, stats.WinRate)
}

func TestServer_StrategySettings(t *testing.T) {
	s, _, settings := newTestServer("")

	rec := do(t, s, http.MethodGet, "/api/strategies/kyros_scalper", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg domain.StrategyConfig
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cfg))
	require.NotNil(t, cfg.Scalper)
	assert.Equal(t, 3, cfg.Scalper.ConsecutiveTicksRequired)

	rec = do(t, s, http.MethodPut, "/api/strategies/kyros_scalper", `{"kind":"rise_fall","scalper":{"consecutive_ticks_required":5}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	saved := settings.saved[domain.StrategyKyrosScalper]
	assert.Equal(t, domain.StrategyKyrosScalper, saved.Kind)
	require.NotNil(t, saved.Scalper)
	assert.Equal(t, 5, saved.Scalper.ConsecutiveTicksRequired)
	assert.Equal(t, 0.0002, saved.Scalper.MomentumThreshold)
	require.NotNil(t, saved.Risk)
	assert.Equal(t, 3, saved.Risk.MaxConsecutiveLosses)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/strategies/martingale", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/api/strategies/kyros_trend", "{").Code)
}
