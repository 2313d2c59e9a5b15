package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"train-callbacks/core/callbacks"
	"train-callbacks/core/models"
	"train-callbacks/core/monitoring"
	"train-callbacks/storage"
)

const (
	defaultSummaryLimit = 100
	defaultEventLimit   = 100
)

// RunSource returns the current state of the run being served
type RunSource interface {
	CurrentRun() models.Run
}

// CheckpointLister lists the run's saved checkpoints
type CheckpointLister interface {
	ListCheckpoints(ctx context.Context) ([]storage.Checkpoint, error)
}

// SummaryLister lists a run's summary records, oldest first
type SummaryLister interface {
	ListSummaries(ctx context.Context, runID string, limit int) ([]models.SummaryRecord, error)
}

// EventLister lists a run's status transitions
type EventLister interface {
	GetRunEvents(ctx context.Context, runID string, limit int) ([]models.RunEvent, error)
}

// RunHandler handles run-related HTTP requests
type RunHandler struct {
	run         RunSource
	checkpoints CheckpointLister
	summaries   SummaryLister
	events      EventLister // Optional
	progress    *monitoring.ProgressMonitor
	costTracker *monitoring.CostTracker
	epochs      monitoring.EpochReporter
}

// RunHandlerDeps are the sources a RunHandler reads from. Only Run is
// required.
type RunHandlerDeps struct {
	Run         RunSource
	Checkpoints CheckpointLister
	Summaries   SummaryLister
	Events      EventLister
	Progress    *monitoring.ProgressMonitor
	CostTracker *monitoring.CostTracker
	Epochs      monitoring.EpochReporter
}

// NewRunHandler creates a new run handler
func NewRunHandler(deps RunHandlerDeps) *RunHandler {
	return &RunHandler{
		run:         deps.Run,
		checkpoints: deps.Checkpoints,
		summaries:   deps.Summaries,
		events:      deps.Events,
		progress:    deps.Progress,
		costTracker: deps.CostTracker,
		epochs:      deps.Epochs,
	}
}

// GetRun handles GET /v1/run
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run := h.run.CurrentRun()

	response := map[string]interface{}{
		"id":     run.ID,
		"name":   run.Name,
		"status": run.Status,
		"epochs": run.Epochs,
		"timestamps": map[string]interface{}{
			"created_at":  run.CreatedAt,
			"started_at":  run.StartedAt,
			"finished_at": run.CompletedAt,
		},
	}

	if h.progress != nil {
		response["progress"] = h.progress.Snapshot()
	}
	if h.costTracker != nil {
		response["cost"] = costResponse(h.costTracker)
	}
	if h.epochs != nil {
		if report, ok := h.epochs.LastEpochReport(); ok {
			response["last_epoch"] = epochResponse(report)
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// GetCheckpoints handles GET /v1/run/checkpoints
func (h *RunHandler) GetCheckpoints(w http.ResponseWriter, r *http.Request) {
	if h.checkpoints == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": []interface{}{}})
		return
	}

	checkpoints, err := h.checkpoints.ListCheckpoints(r.Context())
	if err != nil {
		http.Error(w, "Failed to list checkpoints: "+err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, len(checkpoints))
	for i, ckpt := range checkpoints {
		items[i] = map[string]interface{}{
			"epoch":      ckpt.Epoch,
			"path":       ckpt.Path,
			"size_bytes": ckpt.Size,
			"created_at": ckpt.ModTime,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// GetSummaries handles GET /v1/run/summaries
func (h *RunHandler) GetSummaries(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultSummaryLimit)
	if !ok {
		return
	}
	if h.summaries == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": []models.SummaryRecord{}})
		return
	}

	run := h.run.CurrentRun()
	records, err := h.summaries.ListSummaries(r.Context(), run.ID, limit)
	if err != nil {
		http.Error(w, "Failed to fetch summaries: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []models.SummaryRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": records,
	})
}

// GetEvents handles GET /v1/run/events
func (h *RunHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultEventLimit)
	if !ok {
		return
	}
	if h.events == nil {
		http.Error(w, "Run events require a database", http.StatusNotFound)
		return
	}

	run := h.run.CurrentRun()
	events, err := h.events.GetRunEvents(r.Context(), run.ID, limit)
	if err != nil {
		http.Error(w, "Failed to fetch events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, len(events))
	for i, event := range events {
		item := map[string]interface{}{
			"at":        event.At,
			"to_status": event.ToStatus,
			"reason":    event.Reason,
		}
		if event.FromStatus != nil {
			item["from_status"] = *event.FromStatus
		}
		items[i] = item
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

func epochResponse(report callbacks.EpochReport) map[string]interface{} {
	hooks := make([]map[string]interface{}, len(report.Samples))
	for i, s := range report.Samples {
		hooks[i] = map[string]interface{}{
			"name":    s.Hook,
			"seconds": s.Elapsed.Seconds(),
		}
	}
	slow := make([]string, len(report.Slow))
	for i, s := range report.Slow {
		slow[i] = s.Hook
	}
	return map[string]interface{}{
		"epoch":         report.Epoch,
		"total_seconds": report.Total.Seconds(),
		"hooks":         hooks,
		"slow":          slow,
	}
}

var errInvalidLimit = errors.New("limit must be a positive integer")

func parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	limitParam := r.URL.Query().Get("limit")
	if limitParam == "" {
		return def, true
	}
	limit, err := strconv.Atoi(limitParam)
	if err != nil || limit <= 0 {
		http.Error(w, errInvalidLimit.Error(), http.StatusBadRequest)
		return 0, false
	}
	return limit, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
