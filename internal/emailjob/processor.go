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

// Package emailjob drives queued email jobs through their send lifecycle.
// A Processor settles one batch of due jobs; a Worker runs the Processor on
// a fixed interval.
package emailjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Notivest/notification-service/internal/clock"
	"github.com/Notivest/notification-service/internal/contact"
	"github.com/Notivest/notification-service/internal/email"
	"github.com/Notivest/notification-service/internal/models"
)

var errContactNotFound = errors.New("Contact not found")

// EventPublisher is notified after each job is settled.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, job models.EmailJob) error
}

// Result summarises one batch.
type Result struct {
	Total  int
	Sent   int
	Failed int
}

// ProcessorConfig holds the collaborators of a Processor. Publisher is
// optional; Concurrency below 2 processes jobs one at a time.
type ProcessorConfig struct {
	Jobs        Store
	Contacts    contact.Store
	Renderer    email.Renderer
	Sender      email.Sender
	Clock       clock.Clock
	Publisher   EventPublisher
	From        string
	Concurrency int
}

// Processor settles due jobs.
type Processor struct {
	jobs        Store
	contacts    contact.Store
	renderer    email.Renderer
	sender      email.Sender
	clock       clock.Clock
	publisher   EventPublisher
	from        string
	concurrency int
}

// NewProcessor creates a Processor from cfg.
func NewProcessor(cfg ProcessorConfig) *Processor {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}
	conc := cfg.Concurrency
	if conc < 1 {
		conc = 1
	}
	return &Processor{
		jobs:        cfg.Jobs,
		contacts:    cfg.Contacts,
		renderer:    cfg.Renderer,
		sender:      cfg.Sender,
		clock:       clk,
		publisher:   cfg.Publisher,
		from:        cfg.From,
		concurrency: conc,
	}
}

// ProcessDue loads up to limit due jobs and settles each one as SENT or
// FAILED. A failing job never aborts the batch; only a failure to load the
// batch is returned. A non-positive limit does nothing.
func (p *Processor) ProcessDue(ctx context.Context, limit int) (Result, error) {
	if limit <= 0 {
		return Result{}, nil
	}

	jobs, err := p.jobs.FindDue(ctx, p.clock.Now(), limit)
	if err != nil {
		return Result{}, fmt.Errorf("load due jobs: %w", err)
	}
	if len(jobs) == 0 {
		return Result{}, nil
	}

	res := Result{Total: len(jobs)}
	var mu sync.Mutex
	tally := func(sent bool) {
		mu.Lock()
		defer mu.Unlock()
		if sent {
			res.Sent++
		} else {
			res.Failed++
		}
	}

	if p.concurrency == 1 {
		for _, job := range jobs {
			tally(p.process(ctx, job))
		}
		return res, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			tally(p.process(gctx, job))
			return nil
		})
	}
	_ = g.Wait()
	return res, nil
}

// process attempts one job and persists the outcome. It reports whether
// the job was persisted as SENT.
func (p *Processor) process(ctx context.Context, job models.EmailJob) bool {
	err := p.attempt(ctx, job)
	now := p.clock.Now()

	var settled models.EmailJob
	if err != nil {
		settled = job.MarkFailed(now, failureReason(err))
		if errors.Is(err, errContactNotFound) || errors.Is(err, contact.ErrChannelDisabled) || isBlocked(err) {
			slog.Info("skipping email job", "job_id", job.ID, "reason", err.Error())
		} else {
			slog.Warn("email job failed", "job_id", job.ID, "user", job.UserID, "error", err)
		}
	} else {
		settled = job.MarkSent(now)
	}

	if _, err := p.jobs.Save(ctx, settled); err != nil {
		slog.Error("failed to persist email job outcome",
			"job_id", job.ID,
			"status", settled.Status,
			"error", err,
		)
		return false
	}

	if p.publisher != nil {
		if err := p.publisher.PublishJobEvent(ctx, settled); err != nil {
			slog.Warn("failed to publish email job event", "job_id", job.ID, "error", err)
		}
	}
	return settled.Status == models.JobStatusSent
}

// failureReason is the error message, or the error's type when the message
// is blank.
func failureReason(err error) string {
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return err.Error()
	}
	return fmt.Sprintf("%T", err)
}

// attempt runs the gate, render and send steps. A panic in a collaborator
// is converted into an error.
func (p *Processor) attempt(ctx context.Context, job models.EmailJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	c, err := p.contacts.FindByUserID(ctx, job.UserID)
	if err != nil {
		return err
	}
	if c == nil {
		return errContactNotFound
	}
	if err := contact.Check(*c); err != nil {
		return err
	}

	rendered, err := p.renderer.Render(ctx, job.TemplateKey, c.Locale, job.TemplateData)
	if err != nil {
		return err
	}

	return p.sender.Send(ctx, email.Message{
		From:    p.from,
		To:      c.PrimaryEmail,
		Subject: rendered.Subject,
		HTML:    rendered.Body,
	})
}

func isBlocked(err error) bool {
	var b *contact.BlockedError
	return errors.As(err, &b)
}
