package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultTimeout is the per-call timeout applied to every transfer-service
// HTTP request.
const DefaultTimeout = 15 * time.Second

// HTTPClient implements Client over a Globus-shaped transfer service's
// plain HTTP/JSON protocol.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewHTTPClient creates an HTTPClient against baseURL. A nil httpClient
// uses a fresh *http.Client; timeout <= 0 uses DefaultTimeout.
func NewHTTPClient(baseURL string, httpClient *http.Client, timeout time.Duration) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &HTTPClient{baseURL: baseURL, httpClient: httpClient, timeout: timeout}
}

type wireTransferItem struct {
	SourcePath string `json:"source_path"`
	DestPath   string `json:"destination_path"`
	Bytes      int64  `json:"bytes"`
}

type wireSubmitTransferRequest struct {
	SourceEndpoint      string             `json:"source_endpoint"`
	DestinationEndpoint string             `json:"destination_endpoint"`
	Items               []wireTransferItem `json:"DATA"`
	SyncLevel           string             `json:"sync_level"`
	Label               string             `json:"label"`
}

type wireSubmitTransferResponse struct {
	Code   string `json:"code"`
	TaskID string `json:"task_id"`
}

// SubmitTransfer implements Client.
func (c *HTTPClient) SubmitTransfer(
	ctx context.Context, srcGroup, dstGroup string, items []Item, sync SyncLevel, label string,
) (SubmitResult, error) {
	wireItems := make([]wireTransferItem, len(items))
	for i, it := range items {
		wireItems[i] = wireTransferItem{SourcePath: it.SourcePath, DestPath: it.DestPath, Bytes: it.Bytes}
	}

	var resp wireSubmitTransferResponse
	req := wireSubmitTransferRequest{
		SourceEndpoint:      srcGroup,
		DestinationEndpoint: dstGroup,
		Items:               wireItems,
		SyncLevel:           string(sync),
		Label:               label,
	}

	if err := c.postJSON(ctx, "/transfer", req, &resp); err != nil {
		return SubmitResult{}, err
	}

	return SubmitResult{Code: resp.Code, TaskID: resp.TaskID}, nil
}

type wireTaskStatus struct {
	Status string `json:"status"`
}

// GetTask implements Client.
func (c *HTTPClient) GetTask(ctx context.Context, taskID string) (StatusReport, error) {
	var resp wireTaskStatus
	if err := c.getJSON(ctx, fmt.Sprintf("/task/%s", taskID), &resp); err != nil {
		return StatusReport{}, err
	}

	return StatusReport{Status: Status(resp.Status)}, nil
}

// CancelTask implements Client.
func (c *HTTPClient) CancelTask(ctx context.Context, taskID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+fmt.Sprintf("/task/%s/cancel", taskID), nil)
	if err != nil {
		return fmt.Errorf("transfer: build cancel request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("transfer: cancel %s: %w", taskID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("transfer: cancel %s returned %s", taskID, resp.Status)
	}

	return nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("transfer: marshal %s request: %w", path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("transfer: build %s request: %w", path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("transfer: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("transfer: %s returned %s", path, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("transfer: decode %s response: %w", path, err)
	}

	return nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("transfer: build %s request: %w", path, err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("transfer: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("transfer: %s returned %s", path, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("transfer: decode %s response: %w", path, err)
	}

	return nil
}
