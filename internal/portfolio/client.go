// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package portfolio implements a client for the portfolio service's
// internal holdings API, authenticated with OAuth2 client credentials.
package portfolio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/Notivest/notification-service/internal/models"
)

// SearchPath is the holdings search endpoint, relative to the base URL.
const SearchPath = "/internal/v1/holdings/search"

// AuthConfig holds the client-credentials grant settings.
type AuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Audience     string
	Scope        string
	// ClockSkew expires cached tokens early.
	ClockSkew time.Duration
}

// NewHTTPClient returns an HTTP client that attaches a bearer token obtained
// with the client-credentials grant. Tokens are cached until ClockSkew
// before they expire.
func NewHTTPClient(ctx context.Context, cfg AuthConfig, timeout time.Duration) *http.Client {
	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if cfg.Scope != "" {
		creds.Scopes = strings.Fields(cfg.Scope)
	}
	if cfg.Audience != "" {
		creds.EndpointParams = url.Values{"audience": {cfg.Audience}}
	}

	ts := oauth2.ReuseTokenSourceWithExpiry(nil, creds.TokenSource(ctx), cfg.ClockSkew)
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = timeout
	return client
}

// Client searches a user's holdings.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a holdings client. The httpClient must already handle
// authentication (see NewHTTPClient).
func NewClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type searchRequest struct {
	UserID  uuid.UUID `json:"userId"`
	Symbols []string  `json:"symbols"`
}

// Search returns the user's holdings in symbols. Symbols are trimmed and
// upper-cased; an empty list makes no call. A 404 means no holdings, and
// any other non-200 status is logged and also yields none.
func (c *Client) Search(ctx context.Context, userID uuid.UUID, symbols []string) ([]models.Holding, error) {
	normalized := normalizeSymbols(symbols)
	if len(normalized) == 0 {
		slog.Debug("skipping portfolio lookup, no symbols", "user", userID)
		return nil, nil
	}

	body, err := json.Marshal(searchRequest{UserID: userID, Symbols: normalized})
	if err != nil {
		return nil, fmt.Errorf("marshal holdings search: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+SearchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("holdings search: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("unexpected status from portfolio service",
			"status", resp.StatusCode,
			"user", userID,
			"symbols", normalized,
			"body", string(b),
		)
		return nil, nil
	}

	var holdings []models.Holding
	if err := json.NewDecoder(resp.Body).Decode(&holdings); err != nil {
		return nil, fmt.Errorf("decode holdings: %w", err)
	}
	return holdings, nil
}

func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
