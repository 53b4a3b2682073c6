// internal/procurement/approval.go
package procurement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const approvalNameSignup = "signup"

type approveAccountPayload struct {
	ApprovalName string `json:"approvalName"`
	Reason       string `json:"reason"`
}

type approvePlanChangePayload struct {
	PendingPlanName string `json:"pendingPlanName"`
}

// approvalClient talks to the external Procurement API. One attempt per
// call; failed approvals are left to the marketplace's redelivery.
type approvalClient struct {
	baseURL string
	client  *http.Client
}

func NewApprovalClient(baseURL string, timeout time.Duration) Approver {
	return &approvalClient{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (c *approvalClient) ApproveAccount(ctx context.Context, accountID, reason string) error {
	return c.post(ctx, fmt.Sprintf("/v1/accounts/%s/approve", accountID), approveAccountPayload{
		ApprovalName: approvalNameSignup,
		Reason:       reason,
	})
}

func (c *approvalClient) ApproveEntitlement(ctx context.Context, entitlementID string) error {
	return c.post(ctx, fmt.Sprintf("/v1/entitlements/%s/approve", entitlementID), nil)
}

func (c *approvalClient) ApprovePlanChange(ctx context.Context, entitlementID, newPlan string) error {
	return c.post(ctx, fmt.Sprintf("/v1/entitlements/%s/approvePlanChange", entitlementID), approvePlanChangePayload{
		PendingPlanName: newPlan,
	})
}

func (c *approvalClient) post(ctx context.Context, path string, payload any) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
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
		return fmt.Errorf("procurement api returned %d for %s", resp.StatusCode, path)
	}
	return nil
}
