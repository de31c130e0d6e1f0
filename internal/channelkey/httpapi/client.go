// Package httpapi implements the channelkey.KeyServer contract against
// the backend's HTTP API. Everything it transmits is already opaque:
// code hashes, wrapped-key envelopes, and sealed invite payloads.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hearth-chat/go-backend/internal/channelkey"
	"hearth-chat/go-backend/pkg/models"
)

const defaultRequestTimeout = 15 * time.Second

var _ channelkey.KeyServer = (*Client)(nil)

// Client talks to the key-distribution endpoints of the backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the given base URL. A nil httpClient
// falls back to a default with a request timeout.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    httpClient,
	}
}

func (c *Client) BootstrapCommunity(ctx context.Context, req models.BootstrapRequest) error {
	return c.call(ctx, http.MethodPost, "/v1/keys/community/bootstrap", req, nil, nil)
}

func (c *Client) FetchWrappedKey(ctx context.Context, scope models.Scope, identityID string) (models.WrappedKey, error) {
	var wk models.WrappedKey
	path := "/v1/keys/" + url.PathEscape(scope.Key()) + "/wrapped/" + url.PathEscape(identityID)
	err := c.call(ctx, http.MethodGet, path, nil, &wk, channelkey.ErrKeyNotFound)
	return wk, err
}

func (c *Client) StoreWrappedKey(ctx context.Context, scope models.Scope, identityID string, wrapped models.WrappedKey) error {
	path := "/v1/keys/" + url.PathEscape(scope.Key()) + "/wrapped/" + url.PathEscape(identityID)
	return c.call(ctx, http.MethodPut, path, wrapped, nil, nil)
}

func (c *Client) ListMembers(ctx context.Context, scope models.Scope) ([]models.Member, error) {
	var members []models.Member
	path := "/v1/scopes/" + url.PathEscape(scope.Key()) + "/members"
	err := c.call(ctx, http.MethodGet, path, nil, &members, nil)
	return members, err
}

func (c *Client) CreateInvite(ctx context.Context, invite models.InviteUpload) error {
	return c.call(ctx, http.MethodPost, "/v1/invites", invite, nil, nil)
}

func (c *Client) RedeemInvite(ctx context.Context, codeHash string) (string, error) {
	var out struct {
		Payload string `json:"payload"`
	}
	in := struct {
		CodeHash string `json:"code_hash"`
	}{CodeHash: codeHash}
	err := c.call(ctx, http.MethodPost, "/v1/invites/redeem", in, &out, channelkey.ErrInviteNotFound)
	return out.Payload, err
}

func (c *Client) TeamState(ctx context.Context, tenantID string) (models.TeamKeyState, error) {
	var state models.TeamKeyState
	path := "/v1/teams/" + url.PathEscape(tenantID) + "/key-state"
	err := c.call(ctx, http.MethodGet, path, nil, &state, channelkey.ErrTeamNotBootstrapped)
	return state, err
}

func (c *Client) InitTeamState(ctx context.Context, state models.TeamKeyState) error {
	path := "/v1/teams/" + url.PathEscape(state.TenantID) + "/key-state"
	return c.call(ctx, http.MethodPost, path, state, nil, nil)
}

func (c *Client) FetchPlaintextPage(ctx context.Context, scope models.Scope, afterID string, limit int) (models.PlaintextPage, error) {
	var page models.PlaintextPage
	path := "/v1/migration/" + url.PathEscape(scope.Key()) + "/plaintext?after=" +
		url.QueryEscape(afterID) + "&limit=" + strconv.Itoa(limit)
	err := c.call(ctx, http.MethodGet, path, nil, &page, nil)
	return page, err
}

func (c *Client) SubmitEncryptedBatch(ctx context.Context, scope models.Scope, batch []models.EncryptedMessage) (int, error) {
	var out struct {
		Remaining int `json:"remaining"`
	}
	path := "/v1/migration/" + url.PathEscape(scope.Key()) + "/batch"
	err := c.call(ctx, http.MethodPost, path, batch, &out, nil)
	return out.Remaining, err
}

func (c *Client) CompleteMigration(ctx context.Context, scope models.Scope) error {
	path := "/v1/migration/" + url.PathEscape(scope.Key()) + "/complete"
	return c.call(ctx, http.MethodPost, path, nil, nil, nil)
}

// call performs one JSON round trip. A 404 maps to notFound when the
// endpoint has a domain meaning for it; other non-2xx statuses become
// plain errors.
func (c *Client) call(ctx context.Context, method, path string, in, out any, notFound error) (retErr error) {
	var body *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-Hearth-API-Token", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && retErr == nil {
			retErr = closeErr
		}
	}()

	if resp.StatusCode == http.StatusNotFound && notFound != nil {
		return notFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
