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

// Package queue publishes email job lifecycle events to a Redis list so
// downstream consumers (analytics, audit) can follow delivery outcomes.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Notivest/notification-service/internal/models"
)

// Event types.
const (
	EventJobSent   = "email_job.sent"
	EventJobFailed = "email_job.failed"
)

// Publisher sends lifecycle events to Redis.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// Event is the JSON envelope pushed to the queue.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Job        jobView   `json:"job"`
}

type jobView struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"userId"`
	TemplateKey string    `json:"templateKey"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	Error       *string   `json:"error,omitempty"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// NewEvent builds the envelope for a settled job. Template data is left out
// since it may carry user portfolio details.
func NewEvent(job models.EmailJob) (Event, error) {
	var typ string
	switch job.Status {
	case models.JobStatusSent:
		typ = EventJobSent
	case models.JobStatusFailed:
		typ = EventJobFailed
	default:
		return Event{}, fmt.Errorf("job %s is not settled (status %s)", job.ID, job.Status)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: job.UpdatedAt,
		Job: jobView{
			ID:          job.ID,
			UserID:      job.UserID,
			TemplateKey: job.TemplateKey,
			Status:      string(job.Status),
			Attempts:    job.Attempts,
			Error:       job.Error,
			ScheduledAt: job.ScheduledAt,
		},
	}, nil
}

// PublishJobEvent serialises the job outcome and pushes it to the queue.
func (p *Publisher) PublishJobEvent(ctx context.Context, job models.EmailJob) error {
	event, err := NewEvent(job)
	if err != nil {
		return err
	}

	msgJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}

	// Consumers BRPOP from the other end, so LPUSH keeps FIFO order.
	if err := p.rdb.LPush(ctx, p.queueName, string(msgJSON)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Debug("published job event",
		"event_id", event.ID,
		"type", event.Type,
		"job_id", job.ID,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
