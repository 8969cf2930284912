// Package handlers contains the HTTP handlers for the read-only result API.
package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opencta/quant/internal/backtest"
	"github.com/opencta/quant/pkg/logger"
)

// ReportHandler serves persisted run results for a spread.
type ReportHandler struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(pool *pgxpool.Pool, log *logger.Logger) *ReportHandler {
	return &ReportHandler{pool: pool, logger: log}
}

type statsResponse struct {
	Spread string  `json:"spread"`
	AsOf   string  `json:"as_of"`
	Days   int     `json:"days"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Sharpe float64 `json:"sharpe"`
	Kelly  float64 `json:"kelly"`
}

// GetStats computes annualized statistics over every stored daily log-return
// of the spread.
func (h *ReportHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	spread := mux.Vars(r)["spread"]

	rows, err := h.pool.Query(r.Context(), `
		SELECT day, log_return
		FROM report_returns
		WHERE spread = $1
		ORDER BY day
	`, spread)
	if err != nil {
		h.serverError(w, err, "query returns")
		return
	}
	defer rows.Close()

	var returns []float64
	var asOf time.Time
	for rows.Next() {
		var day time.Time
		var ret float64
		if err := rows.Scan(&day, &ret); err != nil {
			h.serverError(w, err, "scan return")
			return
		}
		returns = append(returns, ret)
		asOf = day
	}
	if len(returns) == 0 {
		respondError(w, http.StatusNotFound, "no returns recorded for spread")
		return
	}

	stats := backtest.StatsFromReturns(returns)
	respondJSON(w, statsResponse{
		Spread: spread,
		AsOf:   asOf.Format("2006-01-02"),
		Days:   len(returns),
		Mean:   jsonSafe(stats.Mean),
		Std:    jsonSafe(stats.Std),
		Sharpe: jsonSafe(stats.Sharpe),
		Kelly:  jsonSafe(stats.Kelly),
	})
}

type positionRow struct {
	Ticker   string  `json:"ticker"`
	Quantity float64 `json:"quantity"`
}

// GetPositions returns the most recent position snapshot of the spread.
func (h *ReportHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	spread := mux.Vars(r)["spread"]

	rows, err := h.pool.Query(r.Context(), `
		SELECT ticker, quantity
		FROM report_positions
		WHERE spread = $1
		  AND day = (SELECT max(day) FROM report_positions WHERE spread = $1)
		ORDER BY ticker
	`, spread)
	if err != nil {
		h.serverError(w, err, "query positions")
		return
	}
	defer rows.Close()

	positions := make([]positionRow, 0)
	for rows.Next() {
		var p positionRow
		if err := rows.Scan(&p.Ticker, &p.Quantity); err != nil {
			h.serverError(w, err, "scan position")
			return
		}
		positions = append(positions, p)
	}
	respondJSON(w, map[string]interface{}{
		"spread":    spread,
		"positions": positions,
	})
}

type executionRow struct {
	Day      string  `json:"day"`
	Ticker   string  `json:"ticker"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// GetExecutions returns the 50 most recent fills of the spread.
func (h *ReportHandler) GetExecutions(w http.ResponseWriter, r *http.Request) {
	spread := mux.Vars(r)["spread"]

	rows, err := h.pool.Query(r.Context(), `
		SELECT day, ticker, quantity, price
		FROM report_executions
		WHERE spread = $1
		ORDER BY day DESC, ticker
		LIMIT 50
	`, spread)
	if err != nil {
		h.serverError(w, err, "query executions")
		return
	}
	defer rows.Close()

	executions := make([]executionRow, 0)
	for rows.Next() {
		var e executionRow
		var day time.Time
		if err := rows.Scan(&day, &e.Ticker, &e.Quantity, &e.Price); err != nil {
			h.serverError(w, err, "scan execution")
			return
		}
		e.Day = day.Format("2006-01-02")
		executions = append(executions, e)
	}
	respondJSON(w, map[string]interface{}{
		"spread":     spread,
		"executions": executions,
	})
}

func (h *ReportHandler) serverError(w http.ResponseWriter, err error, msg string) {
	h.logger.WithError(err).Error("Report handler failed: " + msg)
	respondError(w, http.StatusInternalServerError, "internal error")
}

func respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// jsonSafe maps NaN and infinities to zero so encoding/json does not reject
// the payload. Zero-variance spreads produce NaN ratios.
func jsonSafe(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
