package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TrainResult is the face service's answer to a training request: where
// the trained model artifact lives and how many samples went into it.
type TrainResult struct {
	ModelPath   string `json:"model_path"`
	SampleCount int    `json:"sample_count"`
}

// Client calls the face recognition microservice. Detection and embedding
// math live entirely behind this boundary; this service only consumes
// (identity, confidence) events and training outcomes.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. Skip short-circuits every call with canned
// results for development without the face service running.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 120 * time.Second, // model training is slow
		},
	}
}

// Train asks the face service to train a model from the identity's stored
// dataset images.
func (c *Client) Train(ctx context.Context, identityID string) (*TrainResult, error) {
	if c.Skip {
		return &TrainResult{
			ModelPath:   fmt.Sprintf("models/%s_model.yml", identityID),
			SampleCount: 100,
		}, nil
	}
	if identityID == "" {
		return nil, fmt.Errorf("identity id required")
	}

	body, _ := json.Marshal(map[string]string{"identity_id": identityID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/train", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(b))
	}

	var out TrainResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("face service response decode: %w", err)
	}
	if out.ModelPath == "" {
		return nil, fmt.Errorf("face service returned no model path")
	}
	return &out, nil
}

// Health checks the face service is reachable.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}
