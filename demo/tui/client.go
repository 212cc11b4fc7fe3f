package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"marketbrief/types"
)

// Client is a thin HTTP client for the marketbrief server.
type Client struct {
	baseURL string
	http    *http.Client
	// generate requests block until the pipeline finishes, so they get a
	// much longer timeout than status polls.
	generateHTTP *http.Client
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:      baseURL,
		http:         &http.Client{Timeout: 5 * time.Second},
		generateHTTP: &http.Client{Timeout: 15 * time.Minute},
	}
}

// LatestRun fetches the checkpoint state of the most recent run. Returns
// (nil, nil) when no runs exist yet.
func (c *Client) LatestRun() (*types.RunState, error) {
	resp, err := c.http.Get(c.baseURL + "/api/insight/runs/latest")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from latest run endpoint", resp.StatusCode)
	}

	var run types.RunState
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Generate runs the pipeline synchronously and returns the result.
func (c *Client) Generate(forceNew bool) (*types.RunResult, error) {
	body, _ := json.Marshal(map[string]any{"force_new_run": forceNew})
	resp, err := c.generateHTTP.Post(c.baseURL+"/api/insight/generate", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("generate failed: %s", apiErr.Error)
		}
		return nil, fmt.Errorf("generate failed with status %d", resp.StatusCode)
	}

	var result types.RunResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
