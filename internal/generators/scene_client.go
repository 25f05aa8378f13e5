package generators

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"emberquest/server/internal/config"
)

const (
	defaultRenderTimeout = 300 * time.Second
	pollInterval         = 1 * time.Second
	maxPollAttempts      = 300
)

// SceneClient talks to an HTTP image-generation service. Rendering is best
// effort: callers treat a missing image as a valid terminal state, never an
// error that blocks a turn.
type SceneClient struct {
	httpClient *http.Client
	baseURL    string
}

// renderRequest is the submit payload.
type renderRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Steps  int    `json:"steps"`
}

type renderSubmitResponse struct {
	JobID string `json:"job_id"`
}

type renderJobResponse struct {
	Status      string `json:"status"` // "pending", "running", "done", "failed"
	ImageBase64 string `json:"image_base64,omitempty"`
	Error       string `json:"error,omitempty"`
}

func NewSceneClient(cfg config.RendererConfig) *SceneClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultRenderTimeout
	}
	return &SceneClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
	}
}

// RenderScene submits a prompt and polls until the image is ready.
func (c *SceneClient) RenderScene(ctx context.Context, prompt string) ([]byte, error) {
	jobID, err := c.submit(ctx, &renderRequest{
		Prompt: prompt,
		Width:  1024,
		Height: 768,
		Steps:  25,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit render job: %w", err)
	}
	return c.pollForResult(ctx, jobID)
}

func (c *SceneClient) submit(ctx context.Context, req *renderRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/generate", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var submitResp renderSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		return "", err
	}
	if submitResp.JobID == "" {
		return "", fmt.Errorf("renderer returned no job id")
	}
	return submitResp.JobID, nil
}

func (c *SceneClient) pollForResult(ctx context.Context, jobID string) ([]byte, error) {
	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}

		job, err := c.getJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch job.Status {
		case "done":
			if job.ImageBase64 == "" {
				return nil, nil // renderer declined, tolerated
			}
			data, err := base64.StdEncoding.DecodeString(job.ImageBase64)
			if err != nil {
				return nil, fmt.Errorf("failed to decode image: %w", err)
			}
			return data, nil
		case "failed":
			return nil, fmt.Errorf("render job failed: %s", job.Error)
		}
	}
	return nil, fmt.Errorf("render job %s timed out", jobID)
}

func (c *SceneClient) getJob(ctx context.Context, jobID string) (*renderJobResponse, error) {
	url := fmt.Sprintf("%s/jobs/%s", c.baseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var job renderJobResponse
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}
