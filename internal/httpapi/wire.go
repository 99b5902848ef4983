package httpapi

import "encoding/json"

// wireSubmitRequest is the client-facing /submit body: each task is a
// 3-tuple of [function_id, endpoint_hint, payload]. endpoint_hint is
// accepted but ignored; endpoint choice is always the scheduler's.
type wireSubmitRequest struct {
	Tasks [][3]json.RawMessage `json:"tasks"`
}

// wireSubmitResponse is the /submit reply: client task ids and the
// endpoint each was (initially) routed to, zipped 1-to-1 with the request.
type wireSubmitResponse struct {
	Status    string   `json:"status"`
	TaskUUIDs []string `json:"task_uuids"`
	Endpoints []string `json:"endpoints"`
}

// wireBatchStatusRequest is the /batch_status body.
type wireBatchStatusRequest struct {
	TaskIDs []string `json:"task_ids"`
}

// wireBatchStatusResponse mirrors the backend's own batch_status shape so
// clients that already speak the backend protocol need no translation.
type wireBatchStatusResponse struct {
	Results map[string]string `json:"results"`
}

// wireTaskStatusResponse is the /<task_id>/status reply.
type wireTaskStatusResponse struct {
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Exception string          `json:"exception,omitempty"`
}

// wireErrorResponse is the in-band error shape every handler falls back to
// on failure, mirroring the teacher's own error-field-on-response pattern.
type wireErrorResponse struct {
	Error string `json:"error"`
}

// wireExecutionLogResponse is the /execution_log reply.
type wireExecutionLogResponse struct {
	Entries []string `json:"entries"`
}

// wireAddEndpointRequest is the PUT /admin/endpoints/{id} body: the fleet
// metadata a newly-joined endpoint registers with.
type wireAddEndpointRequest struct {
	Name          string  `json:"name"`
	Group         string  `json:"group"`
	TransferGroup string  `json:"transfer_group"`
	Globus        string  `json:"globus"`
	LaunchTime    float64 `json:"launch_time"`
}
