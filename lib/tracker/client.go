// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracker is a client for a Jira-compatible issue tracker.
// It does two things for a poker room: search for issues to import as
// tickets, and post an agreed score back to an issue as a comment.
//
// Tracker failures never touch room state. Callers report them and
// carry on.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bureau-foundation/poker/lib/netutil"
)

// defaultOAuthBaseURL is the Atlassian API gateway used with OAuth
// access tokens. Requests go to {base}/ex/jira/{cloud id}/rest/...
const defaultOAuthBaseURL = "https://api.atlassian.com"

// Config configures a Client.
//
// Exactly one authentication mode must be configured:
//   - Basic: set BaseURL, Email and Token (an API token)
//   - OAuth: set AccessToken and CloudID
type Config struct {
	// BaseURL is the site root for basic auth, for example
	// "https://example.atlassian.net". Must use HTTPS.
	BaseURL string
	Email   string
	Token   string

	AccessToken string
	CloudID     string

	// OAuthBaseURL overrides the Atlassian API gateway. Must use
	// HTTPS.
	OAuthBaseURL string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Client talks to one tracker site.
type Client struct {
	apiRoot    string
	auth       string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates config and returns a Client.
func NewClient(config Config) (*Client, error) {
	hasBasic := config.Email != "" || config.Token != ""
	hasOAuth := config.AccessToken != "" || config.CloudID != ""
	switch {
	case hasBasic && hasOAuth:
		return nil, fmt.Errorf("tracker: cannot configure both basic and OAuth auth")
	case !hasBasic && !hasOAuth:
		return nil, fmt.Errorf("tracker: no authentication configured (set Email+Token or AccessToken+CloudID)")
	}

	var root, auth string
	if hasBasic {
		if config.BaseURL == "" || config.Email == "" || config.Token == "" {
			return nil, fmt.Errorf("tracker: basic auth requires BaseURL, Email and Token")
		}
		root = strings.TrimRight(config.BaseURL, "/")
		auth = basicAuthorization(config.Email, config.Token)
	} else {
		if config.AccessToken == "" || config.CloudID == "" {
			return nil, fmt.Errorf("tracker: OAuth requires AccessToken and CloudID")
		}
		gateway := config.OAuthBaseURL
		if gateway == "" {
			gateway = defaultOAuthBaseURL
		}
		root = strings.TrimRight(gateway, "/") + "/ex/jira/" + config.CloudID
		auth = "Bearer " + config.AccessToken
	}
	if !strings.HasPrefix(root, "https://") {
		return nil, fmt.Errorf("tracker: API client requires HTTPS (got %q)", root)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		apiRoot:    root + "/rest/api/3",
		auth:       auth,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// post sends requestBody as JSON to path (relative to the REST API
// root) and decodes a JSON reply into result when result is non-nil.
// Non-2xx replies return an *Error.
func (client *Client) post(ctx context.Context, path string, requestBody, result any) error {
	encoded, err := json.Marshal(requestBody)
	if err != nil {
		return fmt.Errorf("tracker: encoding request body: %w", err)
	}
	url := client.apiRoot + path
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("tracker: creating request: %w", err)
	}
	request.Header.Set("Authorization", client.auth)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("tracker: POST %s: %w", url, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		apiError := parseError(response.StatusCode, netutil.ErrorBody(response.Body))
		client.logger.Warn("tracker request failed", "path", path, "status", response.StatusCode, "error", apiError.Message)
		return apiError
	}
	if result == nil {
		io.Copy(io.Discard, response.Body)
		return nil
	}
	if err := netutil.DecodeResponse(response.Body, result); err != nil {
		return fmt.Errorf("tracker: POST %s: %w", path, err)
	}
	return nil
}
