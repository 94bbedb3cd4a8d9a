package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"facegate/internal/schedule"
)

// Client calls a remote schedule authority's check-access endpoint. Any
// failure here is a signal to fall back to the local resolver, never a
// hard error for the decision.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client with a bounded timeout; the decision path must not
// hang on a slow authority.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type checkRequest struct {
	UserID string `json:"user_id"`
	Date   string `json:"date"`
}

type wireMatch struct {
	ClassID    string `json:"class_id"`
	ClassName  string `json:"class_name"`
	CourseName string `json:"course_name"`
	Day        string `json:"day"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

type checkResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		Allowed bool        `json:"allowed"`
		Matches []wireMatch `json:"matches"`
		Reason  string      `json:"reason"`
	} `json:"data"`
}

// Resolve asks the remote authority whether the identity is allowed now.
func (c *Client) Resolve(ctx context.Context, identityID string, at time.Time) (schedule.Resolution, error) {
	body, _ := json.Marshal(checkRequest{
		UserID: identityID,
		Date:   at.Format("2006-01-02"),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/api/attendance/check-access", bytes.NewReader(body))
	if err != nil {
		return schedule.Resolution{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return schedule.Resolution{}, fmt.Errorf("authority request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return schedule.Resolution{}, fmt.Errorf("authority error %s: %s", resp.Status, string(b))
	}

	var out checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return schedule.Resolution{}, fmt.Errorf("authority response decode: %w", err)
	}
	if !out.Success || out.Data == nil {
		return schedule.Resolution{}, fmt.Errorf("authority returned no decision")
	}

	res := schedule.Resolution{
		Allowed: out.Data.Allowed,
		Reason:  out.Data.Reason,
	}
	for _, m := range out.Data.Matches {
		res.Matches = append(res.Matches, schedule.ClassMatch{
			ClassID:    m.ClassID,
			ClassName:  m.ClassName,
			CourseName: m.CourseName,
			Slot: schedule.Slot{
				Day:   m.Day,
				Start: m.StartTime,
				End:   m.EndTime,
			},
		})
	}
	return res, nil
}
