package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"chanlun/internal/chart"
	"chanlun/internal/engine"
	"chanlun/internal/errors"
	"chanlun/internal/logging"
	"chanlun/internal/models"
)

// Stock is one entry of the stock list.
type Stock struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Period is one entry of the interval list.
type Period struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.loader.Symbols(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	names := make(map[string]string, len(s.cfg.Symbols))
	for _, sym := range s.cfg.Symbols {
		names[sym.Symbol] = sym.Name
	}

	stocks := make([]Stock, 0, len(symbols))
	for _, symbol := range symbols {
		stocks = append(stocks, Stock{Symbol: symbol, Name: names[symbol]})
	}
	writeJSON(w, http.StatusOK, stocks)
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	periods := make([]Period, 0, len(s.cfg.Analysis.Intervals))
	for _, id := range s.cfg.Analysis.Intervals {
		periods = append(periods, Period{ID: id, Name: s.cfg.Intervals[id].Name})
	}
	writeJSON(w, http.StatusOK, periods)
}

// view loads the requested symbol and interval, refreshing the symbol once
// when nothing is stored for it yet.
func (s *Server) view(r *http.Request) (*engine.View, string, error) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	interval := models.Interval(r.PathValue("interval"))

	ic, err := s.cfg.Interval(interval)
	if err != nil {
		return nil, "", err
	}

	view, err := s.loader.Load(r.Context(), symbol, interval)
	if errors.Is(err, errors.ErrDataNotFound) {
		logger := logging.FromContext(r.Context())
		logger.Info().Str("symbol", symbol).Msg("No stored data, refreshing on demand")
		if _, rerr := s.loader.Refresh(r.Context(), symbol); rerr != nil {
			return nil, "", rerr
		}
		view, err = s.loader.Load(r.Context(), symbol, interval)
	}
	if err != nil {
		return nil, "", err
	}
	return view, ic.DateFormat, nil
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	view, layout, err := s.view(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buildPayload(view, layout))
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	view, layout, err := s.view(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	err = chart.Render(&buf, chart.Input{
		Symbol:     view.Symbol,
		Interval:   view.Interval,
		DateFormat: layout,
		Bars:       view.Bars,
		Tables:     view.Tables,
		AssetsHost: s.cfg.Server.AssetsHost,
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errors.ErrIntervalNotConfigured), errors.Is(err, errors.ErrUnknownLayer):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errors.ErrDataNotFound), errors.Is(err, errors.ErrSymbolNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errors.ErrFetchFailed):
		writeJSONError(w, http.StatusBadGateway, err.Error())
	default:
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("Request failed")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}
