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


// Package webhook receives delivery feedback from the email provider. Each
// event is stored as received, and bounce, complaint, unsubscribe and
// delivery events move the contact's email status.
package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Notivest/notification-service/internal/models"
)

// TokenHeader carries the shared webhook secret.
const TokenHeader = "X-Webhook-Token"

const maxBodyBytes = 1 << 20

// Authenticator admits a request that carries the configured token or comes
// from an allow-listed address.
type Authenticator struct {
	token      string
	allowedIPs map[string]struct{}
}

// NewAuthenticator builds an Authenticator from a token and a comma-separated
// list of IP addresses. An empty token disables token auth.
func NewAuthenticator(token, allowedIPs string) *Authenticator {
	a := &Authenticator{
		token:      strings.TrimSpace(token),
		allowedIPs: make(map[string]struct{}),
	}
	for _, ip := range strings.Split(allowedIPs, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			a.allowedIPs[ip] = struct{}{}
		}
	}
	return a
}

// Authorized reports whether r may post events.
func (a *Authenticator) Authorized(r *http.Request) bool {
	if a.token != "" {
		got := r.Header.Get(TokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) == 1 {
			return true
		}
	}
	_, ok := a.allowedIPs[remoteIP(r)]
	return ok
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// EmailEventRequest is the provider payload.
type EmailEventRequest struct {
	EventID           *uuid.UUID      `json:"eventId"`
	UserID            *uuid.UUID      `json:"userId"`
	Email             string          `json:"email"`
	Kind              string          `json:"kind"`
	ProviderReference string          `json:"providerReference"`
	OccurredAt        *time.Time      `json:"occurredAt"`
	Payload           json.RawMessage `json:"payload"`
}

func (req EmailEventRequest) command() (RegisterCommand, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return RegisterCommand{}, errors.New("email is required")
	}
	if len(email) > 320 {
		return RegisterCommand{}, errors.New("email must be at most 320 characters")
	}
	if req.Kind == "" {
		return RegisterCommand{}, errors.New("kind is required")
	}
	kind, err := models.ParseEmailEventKind(req.Kind)
	if err != nil {
		return RegisterCommand{}, err
	}
	if req.OccurredAt == nil {
		return RegisterCommand{}, errors.New("occurredAt is required")
	}
	if len(req.ProviderReference) > 128 {
		return RegisterCommand{}, errors.New("providerReference must be at most 128 characters")
	}

	cmd := RegisterCommand{
		UserID:            req.UserID,
		Email:             email,
		Kind:              kind,
		ProviderReference: req.ProviderReference,
		OccurredAt:        *req.OccurredAt,
	}
	if req.EventID != nil {
		cmd.EventID = *req.EventID
	}
	if p := req.Payload; len(p) > 0 && string(p) != "null" {
		cmd.Payload = p
	}
	return cmd, nil
}

// Handler serves the email provider webhook.
type Handler struct {
	auth    *Authenticator
	service *Service
}

// NewHandler creates a webhook handler.
func NewHandler(auth *Authenticator, service *Service) *Handler {
	return &Handler{auth: auth, service: service}
}

// ServeHTTP accepts one event per POST and answers 202 once it is stored.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.auth.Authorized(r) {
		slog.Warn("rejected unauthorized email webhook", "remote", remoteIP(r))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req EmailEventRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
		return
	}
	cmd, err := req.command()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.Register(r.Context(), cmd); err != nil {
		slog.Error("failed to register email event",
			"kind", cmd.Kind,
			"error", err,
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
