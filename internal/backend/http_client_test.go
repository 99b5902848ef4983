package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Submit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submit", r.URL.Path)

		var req wireSubmitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tasks, 1)
		assert.Equal(t, "sum", req.Tasks[0].FunctionID)
		assert.Equal(t, "ep-a", req.Tasks[0].EndpointID)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wireSubmitResponse{Status: SubmitStatusSuccess, TaskUUIDs: []string{"bt-1"}})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, nil, 0)
	resp, err := client.Submit(context.Background(), []SubmitTask{{FunctionID: "sum", EndpointID: "ep-a", Payload: []byte(`{}`)}})

	require.NoError(t, err)
	assert.Equal(t, SubmitStatusSuccess, resp.Status)
	assert.Equal(t, []string{"bt-1"}, resp.TaskUUIDs)
}

func TestHTTPClient_Submit_NonSuccessStatusIsNotAnError(t *testing.T) {
	t.Parallel()

	// A non-Success body with HTTP 200 is a valid (if unhappy) response;
	// the caller decides what to do with resp.Status, not the transport.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wireSubmitResponse{Status: "Failed"})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, nil, 0)
	resp, err := client.Submit(context.Background(), []SubmitTask{{FunctionID: "f", EndpointID: "e"}})

	require.NoError(t, err)
	assert.Equal(t, "Failed", resp.Status)
}

func TestHTTPClient_Submit_HTTPErrorStatusIsError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, nil, 0)
	_, err := client.Submit(context.Background(), []SubmitTask{{FunctionID: "f", EndpointID: "e"}})
	assert.Error(t, err)
}

func TestHTTPClient_BatchStatus_DerivesStatusFromPayloadShape(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wireBatchStatusResponse{Results: map[string]wireStatusRecord{
			"bt-1": {Result: json.RawMessage(`{"runtime":1.5}`)},
			"bt-2": {Exception: "boom"},
			"bt-3": {Status: "PENDING"},
		}})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, nil, 0)
	statuses, err := client.BatchStatus(context.Background(), []string{"bt-1", "bt-2", "bt-3"})
	require.NoError(t, err)

	assert.Equal(t, TaskResult, statuses["bt-1"].Status)
	assert.Equal(t, TaskException, statuses["bt-2"].Status)
	assert.Equal(t, "boom", statuses["bt-2"].Exception)
	assert.Equal(t, TaskPending, statuses["bt-3"].Status)
}

func TestHTTPClient_EndpointStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/endpoints/ep-a/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]wireEndpointStatusRecord{{Timestamp: 1000, ActiveManagers: 2}})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, nil, 0)
	records, err := client.EndpointStatus(context.Background(), "ep-a")

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].ActiveManagers)
}

func TestHTTPClient_RegisterFunction(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/register_function", r.URL.Path)
		w.Write([]byte(`{"function_id":"f-1"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, nil, 0)
	resp, err := client.RegisterFunction(context.Background(), []byte(`{"name":"sum"}`))

	require.NoError(t, err)
	assert.JSONEq(t, `{"function_id":"f-1"}`, string(resp))
}
