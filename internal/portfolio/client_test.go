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

package portfolio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestSearch_OK verifies the request shape and response decoding.
func TestSearch_OK(t *testing.T) {
	user := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != SearchPath {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.UserID != user || len(req.Symbols) != 2 || req.Symbols[0] != "AAPL" || req.Symbols[1] != "MSFT" {
			t.Errorf("request body = %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"portfolioId":"` + uuid.NewString() + `","portfolioName":"Main","symbol":"AAPL","quantity":12.5,"avgCost":"188.12","updatedAt":"2024-06-01T10:15:00Z"}]`))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL+"/")
	holdings, err := c.Search(context.Background(), user, []string{" aapl ", "", "msft"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(holdings) != 1 {
		t.Fatalf("got %d holdings, want 1", len(holdings))
	}
	h := holdings[0]
	if h.PortfolioName != "Main" || h.Quantity.String() != "12.5" || h.AvgCost.String() != "188.12" {
		t.Errorf("holding = %+v", h)
	}
}

// TestSearch_StatusHandling verifies 404 and unexpected statuses yield no holdings.
func TestSearch_StatusHandling(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		holdings, err := NewClient(server.Client(), server.URL).Search(context.Background(), uuid.New(), []string{"AAPL"})
		if err != nil || holdings != nil {
			t.Errorf("status %d: holdings = %v, err = %v", status, holdings, err)
		}
		server.Close()
	}
}

// TestSearch_EmptySymbols verifies no request is made without symbols.
func TestSearch_EmptySymbols(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	holdings, err := NewClient(server.Client(), server.URL).Search(context.Background(), uuid.New(), []string{" ", ""})
	if err != nil || holdings != nil {
		t.Errorf("holdings = %v, err = %v", holdings, err)
	}
	if calls.Load() != 0 {
		t.Errorf("server called %d times", calls.Load())
	}
}

// TestNewHTTPClient_TokenCaching verifies the grant parameters, bearer
// header and token reuse.
func TestNewHTTPClient_TokenCaching(t *testing.T) {
	var tokenCalls atomic.Int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" ||
			r.Form.Get("client_id") != "svc" ||
			r.Form.Get("client_secret") != "secret" ||
			r.Form.Get("audience") != "https://portfolio" ||
			r.Form.Get("scope") != "holdings:read" {
			t.Errorf("token form = %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	var authHeaders []string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		w.Write([]byte(`[]`))
	}))
	defer api.Close()

	httpClient := NewHTTPClient(context.Background(), AuthConfig{
		TokenURL:     tokenServer.URL,
		ClientID:     "svc",
		ClientSecret: "secret",
		Audience:     "https://portfolio",
		Scope:        "holdings:read",
		ClockSkew:    60 * time.Second,
	}, 5*time.Second)

	c := NewClient(httpClient, api.URL)
	for i := 0; i < 3; i++ {
		if _, err := c.Search(context.Background(), uuid.New(), []string{"AAPL"}); err != nil {
			t.Fatalf("Search: %v", err)
		}
	}

	if tokenCalls.Load() != 1 {
		t.Errorf("token endpoint called %d times, want 1", tokenCalls.Load())
	}
	for _, h := range authHeaders {
		if h != "Bearer tok-1" {
			t.Errorf("Authorization = %q", h)
		}
	}
}
