package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vitos/tick_trader/internal/domain"
	"github.com/vitos/tick_trader/internal/usecase"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

type connectRequest struct {
	Token string `json:"token"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrBotRunning),
		errors.Is(err, domain.ErrBotNotRunning),
		errors.Is(err, domain.ErrNotConnected),
		errors.Is(err, domain.ErrOrderInFlight):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnknownStrategy):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthentication):
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeBody tolerates an empty body so callers can rely on defaults.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.bot.Status())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	token := req.Token
	if token == "" {
		token = s.defaultToken
	}
	if token == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "token is required"})
		return
	}

	info, err := s.bot.Connect(r.Context(), token)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.bot.Disconnect()
	s.writeJSON(w, http.StatusOK, s.bot.Status())
}

func (s *Server) handleStartBot(w http.ResponseWriter, r *http.Request) {
	var req usecase.StartRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.bot.Start(r.Context(), req); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.bot.Status())
}

func (s *Server) handleStopBot(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.Stop(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.bot.Status())
}

func (s *Server) handleTicks(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.bot.Ticks())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.bot.History())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.bot.Stats())
}

func (s *Server) handleResetHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.ResetHistory(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) strategyKind(w http.ResponseWriter, r *http.Request) (domain.StrategyKind, bool) {
	kind := domain.StrategyKind(r.PathValue("kind"))
	if !kind.Valid() {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown strategy " + string(kind)})
		return "", false
	}
	return kind, true
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.strategyKind(w, r)
	if !ok {
		return
	}
	cfg, err := s.settings.GetStrategyConfig(r.Context(), kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

// handlePutStrategy merges the body over the current settings, so partial
// documents only change the fields they name.
func (s *Server) handlePutStrategy(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.strategyKind(w, r)
	if !ok {
		return
	}
	cfg, err := s.settings.GetStrategyConfig(r.Context(), kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cfg.Kind = kind

	if err := s.settings.SaveStrategyConfig(r.Context(), cfg); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("Strategy settings updated", zap.String("kind", string(kind)))
	s.writeJSON(w, http.StatusOK, cfg)
}
