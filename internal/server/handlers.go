package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"kalshiEdgeBot/internal/domain"
	"kalshiEdgeBot/internal/ports"
)

type handlers struct {
	repo   ports.TradeRepository
	status StatusSource
	logger ports.Logger
}

// tradeView is the wire shape of a trade. Money stays in cents; clients
// do their own formatting.
type tradeView struct {
	ID         string     `json:"id"`
	Ticker     string     `json:"ticker"`
	Side       string     `json:"side"`
	PriceCents int64      `json:"price_cents"`
	Contracts  int        `json:"contracts"`
	CostCents  int64      `json:"cost_cents"`
	Edge       float64    `json:"edge"`
	OurProb    float64    `json:"our_prob"`
	Regime     string     `json:"regime"`
	PlacedAt   time.Time  `json:"placed_at"`
	Result     string     `json:"result"`
	PnLCents   int64      `json:"pnl_cents"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
}

func toTradeView(t *domain.Trade) tradeView {
	return tradeView{
		ID:         t.ID,
		Ticker:     t.Ticker,
		Side:       string(t.Side),
		PriceCents: t.PriceCents,
		Contracts:  t.Contracts,
		CostCents:  t.CostCents,
		Edge:       t.Edge,
		OurProb:    t.OurProb,
		Regime:     string(t.Regime),
		PlacedAt:   t.PlacedAt,
		Result:     string(t.Result),
		PnLCents:   t.PnLCents,
		SettledAt:  t.SettledAt,
	}
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listTrades serves GET /api/trades with filtering, sorting and
// pagination from the query string.
func (h *handlers) listTrades(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTradeFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trades, total, err := h.repo.ListTrades(r.Context(), filter)
	if err != nil {
		if errors.Is(err, ports.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error(r.Context(), err, "listing trades failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]tradeView, len(trades))
	for i, t := range trades {
		views[i] = toTradeView(t)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trades": views,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (h *handlers) getTrade(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	trade, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			writeError(w, http.StatusNotFound, "trade not found")
			return
		}
		h.logger.Error(r.Context(), err, "fetching trade failed", map[string]interface{}{"id": id})
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toTradeView(trade))
}

type dailyStatView struct {
	Day         string  `json:"day"`
	Trades      int     `json:"trades"`
	Settled     int     `json:"settled"`
	Wins        int     `json:"wins"`
	WinRate     float64 `json:"win_rate"`
	PnLCents    int64   `json:"pnl_cents"`
	VolumeCents int64   `json:"volume_cents"`
}

func (h *handlers) dailySummary(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.DailySummary(r.Context())
	if err != nil {
		h.logger.Error(r.Context(), err, "daily summary failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	views := make([]dailyStatView, len(stats))
	for i, s := range stats {
		views[i] = dailyStatView{
			Day:         s.Day,
			Trades:      s.Trades,
			Settled:     s.Settled,
			Wins:        s.Wins,
			WinRate:     s.WinRate,
			PnLCents:    s.PnLCents,
			VolumeCents: s.VolumeCents,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"days": views})
}

// engineStatus reports the live risk state: balance, breaker, exposure
// and daily PnL.
func (h *handlers) engineStatus(w http.ResponseWriter, r *http.Request) {
	breaker := h.status.Breaker()
	exposureCents, openPositions := h.status.Exposure()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"balance_cents":   h.status.LastBalance(),
		"exposure_cents":  exposureCents,
		"open_positions":  openPositions,
		"daily_pnl_cents": h.status.DailyPnL(),
		"circuit_breaker": map[string]interface{}{
			"tripped":            breaker.Tripped,
			"consecutive_losses": breaker.ConsecutiveLosses,
			"cooldown_until":     breaker.CooldownUntil,
		},
	})
}

// parseTradeFilter extracts filter, sort and pagination parameters.
// Defaults: limit=50 (max 500), offset=0, newest first.
func parseTradeFilter(r *http.Request) (ports.TradeFilter, error) {
	q := r.URL.Query()

	filter := ports.TradeFilter{
		Ticker:   q.Get("ticker"),
		SortBy:   q.Get("sort"),
		SortDesc: q.Get("order") != "asc",
		Limit:    50,
	}

	if v := q.Get("side"); v != "" {
		side := domain.Side(v)
		if !side.IsValid() {
			return filter, errors.New("side must be yes or no")
		}
		filter.Side = side
	}

	if v := q.Get("result"); v != "" {
		switch domain.ResultStatus(v) {
		case domain.ResultPending, domain.ResultWon, domain.ResultLost:
			filter.Result = domain.ResultStatus(v)
		default:
			return filter, errors.New("result must be pending, won or lost")
		}
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("from must be RFC3339")
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("to must be RFC3339")
		}
		filter.To = t
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return filter, errors.New("limit must be a positive integer")
		}
		filter.Limit = n
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = n
	}

	return filter, nil
}

// writeJSON marshals v and writes it with the given status. A marshal
// failure falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
