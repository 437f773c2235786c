// Package integrations contains the outbound clients a delivery fans out to.
// Each client takes the snapshotted lead payload and pushes it to one kind of
// tenant destination.
package integrations

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	tenantrepo "leadflow_backend/internal/tenants/repository"
)

// Client pushes one payload to one destination. Implementations must be safe
// for concurrent use; the orchestrator calls them from an errgroup.
type Client interface {
	Kind() string
	Deliver(ctx context.Context, target tenantrepo.Integration, payload []byte) error
}

// Registry maps integration kinds to clients.
type Registry map[string]Client

// NewRegistry builds the default client set on a shared HTTP client.
func NewRegistry(httpClient *http.Client) Registry {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	reg := Registry{}
	for _, c := range []Client{
		&CallbackClient{http: httpClient},
		&CRMClient{http: httpClient},
		&SheetsClient{http: httpClient},
	} {
		reg[c.Kind()] = c
	}
	return reg
}

// CallbackClient POSTs the payload to a tenant-supplied URL, signed with the
// tenant's shared secret so the receiver can verify origin.
type CallbackClient struct {
	http *http.Client
}

func (c *CallbackClient) Kind() string { return tenantrepo.IntegrationCallback }

func (c *CallbackClient) Deliver(ctx context.Context, target tenantrepo.Integration, payload []byte) error {
	url := target.Config["url"]
	if url == "" {
		return fmt.Errorf("callback integration %s has no url configured", target.ID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret := target.Config["secret"]; secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(payload)
		req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
	}
	return c.send(req)
}

func (c *CallbackClient) send(req *http.Request) error { return drainAndCheck(c.http, req) }

// CRMClient creates a lead record through the tenant's CRM REST endpoint.
type CRMClient struct {
	http *http.Client
}

func (c *CRMClient) Kind() string { return tenantrepo.IntegrationCRM }

func (c *CRMClient) Deliver(ctx context.Context, target tenantrepo.Integration, payload []byte) error {
	base := target.Config["base_url"]
	if base == "" {
		return fmt.Errorf("crm integration %s has no base_url configured", target.ID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/leads", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build crm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := target.Config["api_key"]; key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return drainAndCheck(c.http, req)
}

// SheetsClient appends a row through the tenant's sheet webhook (an Apps
// Script style append endpoint).
type SheetsClient struct {
	http *http.Client
}

func (c *SheetsClient) Kind() string { return tenantrepo.IntegrationSheets }

func (c *SheetsClient) Deliver(ctx context.Context, target tenantrepo.Integration, payload []byte) error {
	url := target.Config["webhook_url"]
	if url == "" {
		return fmt.Errorf("sheets integration %s has no webhook_url configured", target.ID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sheets request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return drainAndCheck(c.http, req)
}

func drainAndCheck(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("destination returned %d", resp.StatusCode)
	}
	return nil
}
