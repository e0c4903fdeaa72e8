// Package client talks to the workshop progress API on behalf of one
// authenticated user.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ad/go-workshop-progress/internal/models"
	"github.com/go-resty/resty/v2"
)

const (
	assessmentsPath = "/api/workshop-data/userAssessments"
	submitPath      = "/api/workshop-data/assessments"
	progressPath    = "/api/user/navigation-progress"
)

var ErrUnexpectedStatus = errors.New("unexpected response status")

type Client struct {
	http *resty.Client
}

// New returns a client that authenticates every request with token. Requests
// are not retried.
func New(baseURL, token string, timeout time.Duration) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if token != "" {
		http.SetAuthToken(token)
	}
	return &Client{http: http}
}

type assessmentsResponse struct {
	CurrentUser struct {
		ID          int64                 `json:"id"`
		Assessments models.AssessmentData `json:"assessments"`
	} `json:"currentUser"`
}

type progressResponse struct {
	Success  bool            `json:"success"`
	Progress json.RawMessage `json:"progress"`
	Message  string          `json:"message,omitempty"`
}

func (c *Client) FetchAssessments(ctx context.Context) (models.AssessmentData, error) {
	var out assessmentsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(assessmentsPath)
	if err != nil {
		return nil, fmt.Errorf("fetch assessments: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch assessments: %w: %d", ErrUnexpectedStatus, resp.StatusCode())
	}
	return out.CurrentUser.Assessments, nil
}

// FetchProgress returns the raw stored document, which may be null.
func (c *Client) FetchProgress(ctx context.Context, track models.TrackType) (json.RawMessage, error) {
	var out progressResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("track", string(track)).
		SetResult(&out).
		Get(progressPath)
	if err != nil {
		return nil, fmt.Errorf("fetch progress: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch progress: %w: %d", ErrUnexpectedStatus, resp.StatusCode())
	}
	return out.Progress, nil
}

func (c *Client) SaveProgress(ctx context.Context, progress *models.NavigationProgress) error {
	var out progressResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(progress).
		SetResult(&out).
		SetError(&out).
		Post(progressPath)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	if resp.IsError() || !out.Success {
		return fmt.Errorf("save progress: %w: %d %s", ErrUnexpectedStatus, resp.StatusCode(), out.Message)
	}
	return nil
}

func (c *Client) SubmitAssessment(ctx context.Context, assessmentType string, results json.RawMessage) error {
	var out progressResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"assessmentType": assessmentType,
			"results":        results,
		}).
		SetResult(&out).
		SetError(&out).
		Post(submitPath)
	if err != nil {
		return fmt.Errorf("submit assessment: %w", err)
	}
	if resp.IsError() || !out.Success {
		return fmt.Errorf("submit assessment: %w: %d %s", ErrUnexpectedStatus, resp.StatusCode(), out.Message)
	}
	return nil
}
