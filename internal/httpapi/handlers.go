package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/fatih/color"

	"github.com/deltasched/scheduler/internal/backend"
	"github.com/deltasched/scheduler/internal/scheduler"
	"github.com/deltasched/scheduler/pkg/strategy"
)

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(value); err != nil {
		slog.Default().Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, wireErrorResponse{Error: err.Error()})
}

// handleSubmit implements POST /submit: validate, decode, hand each task to
// the scheduler, and report the client task id and chosen endpoint for
// each, in request order.
func (d Deps) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, d.maxRequestBody()))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))

		return
	}

	if err := validateSubmitBody(body); err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	var req wireSubmitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode submit body: %w", err))

		return
	}

	reqs := make([]scheduler.SubmitRequest, len(req.Tasks))

	for i, tuple := range req.Tasks {
		var functionID string
		if err := json.Unmarshal(tuple[0], &functionID); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("task[%d]: function_id must be a string: %w", i, err))

			return
		}

		reqs[i] = scheduler.SubmitRequest{FunctionID: functionID, Payload: tuple[2]}
	}

	clientIDs, endpointIDs, err := d.Scheduler.BatchSubmit(r.Context(), reqs)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, strategy.ErrNoEndpointsAvailable) {
			status = http.StatusBadRequest
		}

		d.logger().ErrorContext(r.Context(), "submit failed", "error", err)
		writeError(w, status, err)

		return
	}

	writeJSON(w, http.StatusOK, wireSubmitResponse{
		Status:    backend.SubmitStatusSuccess,
		TaskUUIDs: clientIDs,
		Endpoints: endpointIDs,
	})
}

// handleBatchStatus implements POST /batch_status: the cached client-visible
// status for every requested id, dropping PENDING entries the same way the
// backend's own batch_status does.
func (d Deps) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	var req wireBatchStatusRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, d.maxRequestBody())).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode batch_status body: %w", err))

		return
	}

	statuses := d.Scheduler.BatchStatus(req.TaskIDs, false)

	results := make(map[string]string, len(statuses))
	for id, st := range statuses {
		results[id] = string(st)
	}

	writeJSON(w, http.StatusOK, wireBatchStatusResponse{Results: results})
}

// handleTaskStatus implements GET /{task_id}/status: proxy to the backend
// for every backend task id behind task_id, fold the results back through
// LogStatus, and return the (now current) cached view.
func (d Deps) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	clientTaskID := r.PathValue("task_id")

	backendIDs, err := d.Scheduler.TranslateTaskID(clientTaskID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)

		return
	}

	if len(backendIDs) > 0 {
		records, err := d.Backend.BatchStatus(r.Context(), backendIDs)
		if err != nil {
			// Transient backend failure: log and fall through to whatever
			// is already cached, per the retry-at-next-poll policy.
			d.logger().WarnContext(r.Context(), "status proxy to backend failed", "client_task_id", clientTaskID, "error", err)
		} else {
			for _, backendID := range backendIDs {
				if rec, ok := records[backendID]; ok {
					d.Scheduler.LogStatus(r.Context(), backendID, rec)
				}
			}
		}
	}

	status, task, err := d.Scheduler.GetStatus(clientTaskID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)

		return
	}

	writeJSON(w, http.StatusOK, wireTaskStatusResponse{
		Status:    string(status),
		Result:    task.Result,
		Exception: task.Exception,
	})
}

// handleRegisterFunction implements POST /register_function: an opaque
// passthrough to the backend, body and response untouched.
func (d Deps) handleRegisterFunction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, d.maxRequestBody()))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))

		return
	}

	resp, err := d.Backend.RegisterFunction(r.Context(), body)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

// handleBlock implements GET /block/{function_id}/{endpoint_id}: every
// future ChooseEndpoint call for function_id excludes endpoint_id.
func (d Deps) handleBlock(w http.ResponseWriter, r *http.Request) {
	functionID := r.PathValue("function_id")
	endpointID := r.PathValue("endpoint_id")

	if _, err := d.Scheduler.Endpoint(endpointID); err != nil {
		writeError(w, http.StatusNotFound, err)

		return
	}

	d.Scheduler.Blacklist(functionID, endpointID)

	color.New(color.FgYellow).Fprintf(w, "blocked %s on %s\n", functionID, endpointID)
}

// handleExecutionLog implements GET /execution_log: drains and returns the
// in-memory decision log.
func (d Deps) handleExecutionLog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, wireExecutionLogResponse{Entries: d.Scheduler.ExecutionLog()})
}

// handleAddEndpoint implements PUT /admin/endpoints/{id}: registers a new
// endpoint with both the scheduler and its strategy, live, with no restart.
func (d Deps) handleAddEndpoint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req wireAddEndpointRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, d.maxRequestBody())).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode add-endpoint body: %w", err))

		return
	}

	d.Scheduler.AddEndpoint(scheduler.EndpointConfig{
		ID:            id,
		Name:          req.Name,
		Group:         req.Group,
		TransferGroup: req.TransferGroup,
		Globus:        req.Globus,
		LaunchTime:    req.LaunchTime,
	})

	d.logger().InfoContext(r.Context(), "endpoint added", "endpoint", id, "group", req.Group)
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveEndpoint implements DELETE /admin/endpoints/{id}: drops an
// endpoint from both the scheduler and its strategy. No-op if unknown.
func (d Deps) handleRemoveEndpoint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	d.Scheduler.RemoveEndpoint(id)

	d.logger().InfoContext(r.Context(), "endpoint removed", "endpoint", id)
	w.WriteHeader(http.StatusNoContent)
}
