// internal/usage/billing.go
package usage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrConsumerBlocked means the billing control API refused the consumer
// (billing disabled, service not activated, project deleted). The report is
// not sent.
var ErrConsumerBlocked = errors.New("usage: consumer blocked by billing")

// BillingClient is the check-then-report protocol against the billing
// control API. One attempt per call; retries live in the Reporter.
type BillingClient interface {
	CheckConsumer(ctx context.Context, consumerID string) error
	Report(ctx context.Context, consumerID string, start, end time.Time, metrics map[string]int64, labels map[string]string) error
}

type checkResponse struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons,omitempty"`
}

type reportPayload struct {
	StartTime time.Time         `json:"startTime"`
	EndTime   time.Time         `json:"endTime"`
	Metrics   map[string]int64  `json:"metrics"`
	Labels    map[string]string `json:"labels,omitempty"`
}

type billingClient struct {
	baseURL string
	client  *http.Client
}

func NewBillingClient(baseURL string, timeout time.Duration) BillingClient {
	return &billingClient{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (c *billingClient) CheckConsumer(ctx context.Context, consumerID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/consumers/%s:check", c.baseURL, consumerID), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("billing api check returned %d", resp.StatusCode)
	}
	var out checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if !out.Allowed {
		return fmt.Errorf("%w: %v", ErrConsumerBlocked, out.Reasons)
	}
	return nil
}

func (c *billingClient) Report(ctx context.Context, consumerID string, start, end time.Time, metrics map[string]int64, labels map[string]string) error {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(reportPayload{
		StartTime: start,
		EndTime:   end,
		Metrics:   metrics,
		Labels:    labels,
	}); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/consumers/%s:report", c.baseURL, consumerID), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("billing api report returned %d", resp.StatusCode)
	}
	return nil
}
