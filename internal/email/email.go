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

// Package email renders notification templates and hands the result to a
// transport: SMTP in production, the log in development.
package email

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"golang.org/x/time/rate"
)

// ErrUnknownTemplate is returned by Render when no template matches the key.
var ErrUnknownTemplate = errors.New("unknown email template")

// Rendered is a localized subject and HTML body.
type Rendered struct {
	Subject string
	Body    string
}

// Message is a ready-to-send email. An empty From uses the sender default.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Renderer turns a template key, locale and opaque data into an email.
type Renderer interface {
	Render(ctx context.Context, templateKey, locale string, data json.RawMessage) (Rendered, error)
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender logs messages instead of delivering them.
type LogSender struct {
	From string
}

// Send logs the envelope and subject.
func (s LogSender) Send(_ context.Context, msg Message) error {
	from := msg.From
	if from == "" {
		from = s.From
	}
	slog.Info("email send skipped (no SMTP host configured)",
		"from", from,
		"to", msg.To,
		"subject", msg.Subject,
		"body_len", len(msg.HTML),
	)
	return nil
}

// RateLimitedSender throttles an underlying Sender.
type RateLimitedSender struct {
	next    Sender
	limiter *rate.Limiter
}

// NewRateLimitedSender allows perSecond sends per second with an equal
// burst. A non-positive rate returns next unchanged.
func NewRateLimitedSender(next Sender, perSecond int) Sender {
	if perSecond <= 0 {
		return next
	}
	return &RateLimitedSender{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

// Send waits for a token, then delegates.
func (s *RateLimitedSender) Send(ctx context.Context, msg Message) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.next.Send(ctx, msg)
}
