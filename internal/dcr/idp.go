// internal/dcr/idp.go
package dcr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// IdPClient creates a real OAuth client at the identity provider. When not
// configured, the service mints credentials locally instead.
type IdPClient interface {
	CreateClient(ctx context.Context, orderID string, redirectURIs, grantTypes []string) (clientID, clientSecret string, err error)
}

type idpCreateRequest struct {
	ClientName   string   `json:"client_name"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
	GrantTypes   []string `json:"grant_types,omitempty"`
}

type idpCreateResponse struct {
	ClientID                string `json:"client_id"`
	ClientSecret            string `json:"client_secret"`
	RegistrationAccessToken string `json:"registration_access_token,omitempty"`
}

type idpAdminClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewIdPAdminClient(baseURL, token string, timeout time.Duration) IdPClient {
	return &idpAdminClient{baseURL: baseURL, token: token, client: &http.Client{Timeout: timeout}}
}

func (c *idpAdminClient) CreateClient(ctx context.Context, orderID string, redirectURIs, grantTypes []string) (string, string, error) {
	body, err := json.Marshal(idpCreateRequest{
		ClientName:   "order-" + orderID,
		RedirectURIs: redirectURIs,
		GrantTypes:   grantTypes,
	})
	if err != nil {
		return "", "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/clients", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("idp admin api returned %d", resp.StatusCode)
	}
	var out idpCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", err
	}
	if out.ClientID == "" || out.ClientSecret == "" {
		return "", "", fmt.Errorf("idp admin api returned incomplete client")
	}
	return out.ClientID, out.ClientSecret, nil
}
