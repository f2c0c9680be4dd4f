package handler

import (
	"net/http"

	"github.com/alanyoungcy/inthegrid/internal/arbitrage"
	"github.com/alanyoungcy/inthegrid/internal/domain"
	"github.com/alanyoungcy/inthegrid/internal/pipeline"
	"github.com/alanyoungcy/inthegrid/internal/service"
)

// IngestionStatus is satisfied by *pipeline.Ingestion.
type IngestionStatus interface {
	LastTick() pipeline.TickStats
	Totals() (int64, pipeline.TickStats)
}

// CalculatorStatus is satisfied by *arbitrage.Calculator.
type CalculatorStatus interface {
	LastCycle() arbitrage.CycleStats
}

// AlertStatus is satisfied by *service.AlertEvaluator.
type AlertStatus interface {
	LastCycle() service.EvalStats
}

// StatusHandler reports the mode and the latest loop statistics. Loops that
// are not running in this mode are left nil and omitted.
type StatusHandler struct {
	Mode       string
	Markets    []domain.MarketCode
	Ingestion  IngestionStatus
	Calculator CalculatorStatus
	Alerts     AlertStatus
}

type ingestionView struct {
	Ticks    int64              `json:"ticks"`
	LastTick pipeline.TickStats `json:"last_tick"`
	Totals   pipeline.TickStats `json:"totals"`
}

type statusResponse struct {
	Mode       string                `json:"mode"`
	Markets    []domain.MarketCode   `json:"markets"`
	Ingestion  *ingestionView        `json:"ingestion,omitempty"`
	Calculator *arbitrage.CycleStats `json:"calculator,omitempty"`
	Alerts     *service.EvalStats    `json:"alerts,omitempty"`
}

// GetStatus responds with the mode, markets and per-loop stats.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Mode: h.Mode, Markets: h.Markets}
	if h.Ingestion != nil {
		ticks, totals := h.Ingestion.Totals()
		resp.Ingestion = &ingestionView{Ticks: ticks, LastTick: h.Ingestion.LastTick(), Totals: totals}
	}
	if h.Calculator != nil {
		last := h.Calculator.LastCycle()
		resp.Calculator = &last
	}
	if h.Alerts != nil {
		last := h.Alerts.LastCycle()
		resp.Alerts = &last
	}
	writeJSON(w, http.StatusOK, resp)
}
