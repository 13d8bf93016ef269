package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vitos/turtle_trader/internal/domain"
)

const defaultListLimit = 50

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Status())
}

func (s *Server) handleSymbolStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.StatusFor(r.PathValue("symbol"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if err := s.service.StartTrading(r.Context(), symbol); err != nil {
		s.logger.Error("Failed to start trading", zap.String("symbol", symbol), zap.Error(err))
		s.writeError(w, err)
		return
	}
	s.logger.Info("Trading started via API", zap.String("symbol", symbol))
	s.handleSymbolStatus(w, r)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if err := s.service.StopTrading(r.Context(), symbol); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("Trading stopped via API", zap.String("symbol", symbol))
	s.handleSymbolStatus(w, r)
}

func (s *Server) handleStartAll(w http.ResponseWriter, r *http.Request) {
	var errs error
	for _, symbol := range s.service.Symbols() {
		errs = multierr.Append(errs, s.service.StartTrading(r.Context(), symbol))
	}
	if errs != nil {
		s.logger.Error("Failed to start trading", zap.Error(errs))
		s.writeError(w, errs)
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	var errs error
	for _, symbol := range s.service.Symbols() {
		errs = multierr.Append(errs, s.service.StopTrading(r.Context(), symbol))
	}
	if errs != nil {
		s.writeError(w, errs)
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.service.RecentOrders(r.Context(), r.URL.Query().Get("symbol"), listLimit(r))
	if err != nil {
		s.logger.Error("Failed to list orders", zap.Error(err))
		s.writeError(w, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	s.writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleFills(w http.ResponseWriter, r *http.Request) {
	fills, err := s.service.RecentFills(r.Context(), r.URL.Query().Get("symbol"), listLimit(r))
	if err != nil {
		s.logger.Error("Failed to list fills", zap.Error(err))
		s.writeError(w, err)
		return
	}
	if fills == nil {
		fills = []*domain.Fill{}
	}
	s.writeJSON(w, http.StatusOK, fills)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.service.ClosedTrades(r.Context(), listLimit(r))
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		s.writeError(w, err)
		return
	}
	if trades == nil {
		trades = []*domain.PositionHistory{}
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func listLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > 1000 {
		return defaultListLimit
	}
	return n
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnknownSymbol):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidConfig):
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
