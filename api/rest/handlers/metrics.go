package handlers

import (
	"net/http"

	"train-callbacks/core/monitoring"
)

// MetricsHandler serves cost and Prometheus metrics
type MetricsHandler struct {
	costTracker *monitoring.CostTracker
	exporter    *monitoring.MetricsExporter
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(costTracker *monitoring.CostTracker, exporter *monitoring.MetricsExporter) *MetricsHandler {
	return &MetricsHandler{
		costTracker: costTracker,
		exporter:    exporter,
	}
}

// GetCost handles GET /v1/run/cost
func (h *MetricsHandler) GetCost(w http.ResponseWriter, r *http.Request) {
	if h.costTracker == nil {
		http.Error(w, "Cost tracking is not enabled for this run", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, costResponse(h.costTracker))
}

// GetPrometheusMetrics handles GET /metrics
func (h *MetricsHandler) GetPrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.exporter.GetPrometheusMetrics()))
}

func costResponse(ct *monitoring.CostTracker) map[string]interface{} {
	running := ct.GetRunningCost()
	response := map[string]interface{}{
		"running_usd":    running,
		"price_per_hour": ct.PricePerHour(),
	}
	if budget := ct.Budget(); budget > 0 {
		response["budget_usd"] = budget
		response["budget_used"] = running / budget
	}
	return response
}
