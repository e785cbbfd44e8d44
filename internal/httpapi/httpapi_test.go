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


package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Notivest/notification-service/internal/clock"
	"github.com/Notivest/notification-service/internal/contact"
	"github.com/Notivest/notification-service/internal/models"
	"github.com/Notivest/notification-service/internal/notification"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret"

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// stubNotifier records commands and returns a canned outcome.
type stubNotifier struct {
	mu              sync.Mutex
	alerts          []notification.AlertCommand
	recommendations []notification.RecommendationCommand
	outcome         notification.Outcome
	err             error
}

func (s *stubNotifier) NotifyAlert(_ context.Context, cmd notification.AlertCommand) (notification.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, cmd)
	return s.outcome, s.err
}

func (s *stubNotifier) NotifyRecommendation(_ context.Context, cmd notification.RecommendationCommand) (notification.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recommendations = append(s.recommendations, cmd)
	return s.outcome, s.err
}

func newRouter(n Notifier, store *contact.MemoryStore) *gin.Engine {
	return NewRouter(Config{
		Notifier:  n,
		Contacts:  contact.NewService(store, clock.NewFixed(now)),
		JWTSecret: testSecret,
	})
}

func do(r http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func signToken(t *testing.T, claims Claims, method jwt.SigningMethod) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func userToken(t *testing.T, userID uuid.UUID, email string) string {
	t.Helper()
	return signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()},
		Email:            email,
	}, jwt.SigningMethodHS256)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body
}

const alertBody = `{
	"userId": "5f0c1b9e-3f57-4c1e-9d3a-1c2b3d4e5f60",
	"fingerprint": "  price:AAPL:up ",
	"occurredAt": "2024-06-01T11:59:00Z",
	"severity": " critical ",
	"templateKey": " alert.price ",
	"templateData": {"symbol": "aapl"}
}`

// TestHealth verifies the health endpoint reports each check.
func TestHealth(t *testing.T) {
	ok := NewRouter(Config{Checks: map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
	}})
	w := do(ok, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := decode(t, w); body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}

	bad := NewRouter(Config{Checks: map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}})
	w = do(bad, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	body := decode(t, w)
	checks := body["checks"].(map[string]any)
	if checks["redis"] != "connection refused" {
		t.Errorf("redis check = %v", checks["redis"])
	}
}

// TestNotifyAlert_Accepted verifies the request mapping and accepted response.
func TestNotifyAlert_Accepted(t *testing.T) {
	jobID := uuid.New()
	at := time.Date(2024, 6, 2, 6, 0, 0, 0, time.UTC)
	n := &stubNotifier{outcome: notification.Accepted(jobID, at)}
	r := newRouter(n, contact.NewMemoryStore())

	w := do(r, http.MethodPost, "/api/v1/notify/alert", alertBody, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["accepted"] != true || body["jobId"] != jobID.String() {
		t.Errorf("body = %v", body)
	}
	if body["scheduledAt"] != "2024-06-02T06:00:00Z" {
		t.Errorf("scheduledAt = %v", body["scheduledAt"])
	}
	if _, ok := body["reason"]; ok {
		t.Error("accepted response should not carry a reason")
	}

	if len(n.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(n.alerts))
	}
	cmd := n.alerts[0]
	if cmd.Fingerprint != "price:AAPL:up" || cmd.Severity != "critical" || cmd.TemplateKey != "alert.price" {
		t.Errorf("command not trimmed: %+v", cmd)
	}
	if !cmd.OccurredAt.Equal(time.Date(2024, 6, 1, 11, 59, 0, 0, time.UTC)) {
		t.Errorf("OccurredAt = %s", cmd.OccurredAt)
	}
	if string(cmd.TemplateData) != `{"symbol": "aapl"}` {
		t.Errorf("TemplateData = %s", cmd.TemplateData)
	}
}

// TestNotifyAlert_Rejected verifies rejections answer 200 with a lowercase reason.
func TestNotifyAlert_Rejected(t *testing.T) {
	n := &stubNotifier{outcome: notification.Rejected(notification.ReasonDeduplicated)}
	r := newRouter(n, contact.NewMemoryStore())

	w := do(r, http.MethodPost, "/api/v1/notify/alert", alertBody, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decode(t, w)
	if body["accepted"] != false || body["reason"] != "deduplicated" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["jobId"]; ok {
		t.Error("rejected response should not carry a job id")
	}
}

// TestNotifyAlert_Validation verifies malformed requests are rejected with 400.
func TestNotifyAlert_Validation(t *testing.T) {
	valid := map[string]any{
		"userId":      uuid.NewString(),
		"fingerprint": "fp",
		"occurredAt":  "2024-06-01T11:59:00Z",
		"severity":    "LOW",
		"templateKey": "alert.price",
	}
	with := func(key string, value any) string {
		m := make(map[string]any, len(valid))
		for k, v := range valid {
			m[k] = v
		}
		if value == nil {
			delete(m, key)
		} else {
			m[key] = value
		}
		b, _ := json.Marshal(m)
		return string(b)
	}

	tests := map[string]string{
		"invalid json":         `{"userId":`,
		"missing user":         with("userId", nil),
		"malformed user":       with("userId", "not-a-uuid"),
		"missing fingerprint":  with("fingerprint", nil),
		"blank fingerprint":    with("fingerprint", "   "),
		"long fingerprint":     with("fingerprint", strings.Repeat("f", 129)),
		"missing occurredAt":   with("occurredAt", nil),
		"long severity":        with("severity", strings.Repeat("s", 33)),
		"missing template key": with("templateKey", nil),
		"long template key":    with("templateKey", strings.Repeat("k", 65)),
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			n := &stubNotifier{outcome: notification.Rejected(notification.ReasonDeduplicated)}
			w := do(newRouter(n, contact.NewMemoryStore()), http.MethodPost, "/api/v1/notify/alert", body, "")
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
			if len(n.alerts) != 0 {
				t.Error("notifier should not be called")
			}
		})
	}

	t.Run("limits are inclusive", func(t *testing.T) {
		n := &stubNotifier{outcome: notification.Rejected(notification.ReasonDeduplicated)}
		m := map[string]any{
			"userId":      uuid.NewString(),
			"fingerprint": strings.Repeat("f", 128),
			"occurredAt":  "2024-06-01T11:59:00Z",
			"severity":    strings.Repeat("s", 32),
			"templateKey": strings.Repeat("k", 64),
		}
		b, _ := json.Marshal(m)
		w := do(newRouter(n, contact.NewMemoryStore()), http.MethodPost, "/api/v1/notify/alert", string(b), "")
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
		}
	})
}

// TestNotifyAlert_Error verifies an orchestrator error yields 500.
func TestNotifyAlert_Error(t *testing.T) {
	n := &stubNotifier{err: errors.New("db down")}
	w := do(newRouter(n, contact.NewMemoryStore()), http.MethodPost, "/api/v1/notify/alert", alertBody, "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// TestNotifyRecommendation verifies the recommendation endpoint mapping.
func TestNotifyRecommendation(t *testing.T) {
	n := &stubNotifier{outcome: notification.Rejected(notification.ReasonContactNotFound)}
	r := newRouter(n, contact.NewMemoryStore())
	body := `{"userId":"` + uuid.NewString() + `","fingerprint":"rec:1","occurredAt":"2024-06-01T11:00:00Z",` +
		`"kind":" REBALANCE ","templateKey":"recommendation","templateData":{"title":"Rebalance"}}`

	w := do(r, http.MethodPost, "/api/v1/notify/recommendation", body, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	if got := decode(t, w)["reason"]; got != "contact_not_found" {
		t.Errorf("reason = %v", got)
	}
	if len(n.recommendations) != 1 || n.recommendations[0].Kind != "REBALANCE" {
		t.Errorf("recommendations = %+v", n.recommendations)
	}

	w = do(r, http.MethodPost, "/api/v1/notify/recommendation", strings.Replace(body, `" REBALANCE "`, `""`, 1), "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing kind status = %d, want 400", w.Code)
	}
}

// TestContact_Auth verifies the contact API requires a valid token.
func TestContact_Auth(t *testing.T) {
	r := newRouter(&stubNotifier{}, contact.NewMemoryStore())

	wrongSecret, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
	}).SignedString([]byte("other"))
	expired := signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}}, jwt.SigningMethodHS256)
	notUUID := signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}}, jwt.SigningMethodHS256)
	hs512 := signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()}}, jwt.SigningMethodHS512)

	tests := map[string]string{
		"no token":         "",
		"garbage":          "not.a.jwt",
		"wrong secret":     wrongSecret,
		"expired":          expired,
		"subject not uuid": notUUID,
		"unexpected alg":   hs512,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			w := do(r, http.MethodGet, "/api/v1/contact", "", token)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

// TestContact_GetNotFound verifies the problem document for a missing contact.
func TestContact_GetNotFound(t *testing.T) {
	r := newRouter(&stubNotifier{}, contact.NewMemoryStore())
	w := do(r, http.MethodGet, "/api/v1/contact", "", userToken(t, uuid.New(), "a@b.c"))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/problem+json") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := decode(t, w)
	if body["type"] != "urn:problem:user-contact:user-contact-not-found" || body["status"] != float64(404) {
		t.Errorf("body = %v", body)
	}
}

// TestContact_UpsertAndGet verifies create, replace and read through the API.
func TestContact_UpsertAndGet(t *testing.T) {
	store := contact.NewMemoryStore()
	r := newRouter(&stubNotifier{}, store)
	userID := uuid.New()
	token := userToken(t, userID, "  owner@example.com ")

	body := `{"primaryEmail":"ignored@example.com","emailStatus":"VERIFIED","locale":"es-AR",` +
		`"channels":{"email":true,"push":false},` +
		`"quietHours":{"start":"22:00","end":"07:30","timezone":"America/Argentina/Buenos_Aires"}}`
	w := do(r, http.MethodPost, "/api/v1/contact", body, token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	created := decode(t, w)
	if created["primaryEmail"] != "owner@example.com" {
		t.Errorf("primaryEmail = %v, want the token email", created["primaryEmail"])
	}
	if created["version"] != float64(0) || created["locale"] != "es-AR" {
		t.Errorf("body = %v", created)
	}
	qh := created["quietHours"].(map[string]any)
	if qh["start"] != "22:00" || qh["end"] != "07:30" {
		t.Errorf("quietHours = %v", qh)
	}

	w = do(r, http.MethodPost, "/api/v1/contact",
		`{"primaryEmail":"x@example.com","emailStatus":"UNSUB","channels":{"email":false}}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("second upsert status = %d", w.Code)
	}

	w = do(r, http.MethodGet, "/api/v1/contact", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decode(t, w)
	if got["version"] != float64(1) || got["emailStatus"] != "UNSUB" {
		t.Errorf("body = %v", got)
	}
	if got["locale"] != nil || got["quietHours"] != nil {
		t.Errorf("locale/quietHours should be cleared: %v", got)
	}
	if store.Saves() != 2 {
		t.Errorf("saves = %d, want 2", store.Saves())
	}
}

// TestContact_UserIDClaimWins verifies user_id takes precedence over sub.
func TestContact_UserIDClaimWins(t *testing.T) {
	userID := uuid.New()
	store := contact.NewMemoryStore(models.Contact{
		UserID:       userID,
		PrimaryEmail: "a@b.c",
		EmailStatus:  models.EmailStatusVerified,
		Channels:     map[string]bool{"email": true},
	})
	r := newRouter(&stubNotifier{}, store)
	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
		UserID:           userID.String(),
	}, jwt.SigningMethodHS256)

	w := do(r, http.MethodGet, "/api/v1/contact", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := decode(t, w)["userId"]; got != userID.String() {
		t.Errorf("userId = %v", got)
	}
}

// TestContact_UpsertMissingEmailClaim verifies the email-missing problem.
func TestContact_UpsertMissingEmailClaim(t *testing.T) {
	store := contact.NewMemoryStore()
	r := newRouter(&stubNotifier{}, store)
	w := do(r, http.MethodPost, "/api/v1/contact",
		`{"primaryEmail":"a@b.c","emailStatus":"VERIFIED","channels":{"email":true}}`,
		userToken(t, uuid.New(), ""))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := decode(t, w)
	if body["type"] != "urn:problem:user-contact:email-missing" || body["detail"] != "JWT missing email claim" {
		t.Errorf("body = %v", body)
	}
	if store.Saves() != 0 {
		t.Error("nothing should be saved")
	}
}

// TestContact_UpsertValidation verifies request validation.
func TestContact_UpsertValidation(t *testing.T) {
	tests := map[string]string{
		"invalid primary email": `{"primaryEmail":"nope","emailStatus":"VERIFIED","channels":{"email":true}}`,
		"unknown status":        `{"primaryEmail":"a@b.c","emailStatus":"MAYBE","channels":{"email":true}}`,
		"missing status":        `{"primaryEmail":"a@b.c","channels":{"email":true}}`,
		"empty channels":        `{"primaryEmail":"a@b.c","emailStatus":"VERIFIED","channels":{}}`,
		"long locale":           `{"primaryEmail":"a@b.c","emailStatus":"VERIFIED","locale":"en-US-x-long","channels":{"email":true}}`,
		"hour out of range":     `{"primaryEmail":"a@b.c","emailStatus":"VERIFIED","channels":{"email":true},"quietHours":{"start":"24:00","end":"06:00"}}`,
		"single digit hour":     `{"primaryEmail":"a@b.c","emailStatus":"VERIFIED","channels":{"email":true},"quietHours":{"start":"7:00","end":"06:00"}}`,
		"missing end":           `{"primaryEmail":"a@b.c","emailStatus":"VERIFIED","channels":{"email":true},"quietHours":{"start":"22:00"}}`,
		"unknown timezone":      `{"primaryEmail":"a@b.c","emailStatus":"VERIFIED","channels":{"email":true},"quietHours":{"start":"22:00","end":"06:00","timezone":"Mars/Olympus"}}`,
		"long timezone":         `{"primaryEmail":"a@b.c","emailStatus":"VERIFIED","channels":{"email":true},"quietHours":{"start":"22:00","end":"06:00","timezone":"` + strings.Repeat("z", 41) + `"}}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			store := contact.NewMemoryStore()
			r := newRouter(&stubNotifier{}, store)
			w := do(r, http.MethodPost, "/api/v1/contact", body, userToken(t, uuid.New(), "a@b.c"))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
			if store.Saves() != 0 {
				t.Error("nothing should be saved")
			}
		})
	}
}

// TestRouter_ContactDisabledWithoutSecret verifies the contact routes are
// not mounted when no secret is configured.
func TestRouter_ContactDisabledWithoutSecret(t *testing.T) {
	r := NewRouter(Config{
		Notifier: &stubNotifier{},
		Contacts: contact.NewService(contact.NewMemoryStore(), clock.NewFixed(now)),
	})
	w := do(r, http.MethodGet, "/api/v1/contact", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// TestRouter_WebhookMounted verifies the webhook handler receives posts.
func TestRouter_WebhookMounted(t *testing.T) {
	var hits int
	r := NewRouter(Config{
		Notifier: &stubNotifier{},
		Webhook: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits++
			w.WriteHeader(http.StatusAccepted)
		}),
	})
	w := do(r, http.MethodPost, "/api/v1/webhooks/email", `{}`, "")
	if w.Code != http.StatusAccepted || hits != 1 {
		t.Errorf("status = %d, hits = %d", w.Code, hits)
	}
}

// TestRecovery verifies a panicking handler answers 500.
func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(*gin.Context) { panic("boom") })
	w := do(r, http.MethodGet, "/boom", "", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
