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

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an EmailJob.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusSent    JobStatus = "SENT"
	JobStatusFailed  JobStatus = "FAILED"
)

// EmailJob is a queued email waiting for, or settled by, the job worker.
//
// Lifecycle: PENDING -> SENT | FAILED. Both outcomes are terminal and a
// FAILED job is never picked up again. ScheduledAt and CreatedAt never change
// after creation; Attempts grows by one per processing attempt.
type EmailJob struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	TemplateKey  string
	TemplateData json.RawMessage
	Status       JobStatus
	Attempts     int
	Error        *string
	ScheduledAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewPendingJob creates a fresh job with a generated ID.
func NewPendingJob(userID uuid.UUID, templateKey string, data json.RawMessage, scheduledAt, createdAt time.Time) EmailJob {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return EmailJob{
		ID:           uuid.New(),
		UserID:       userID,
		TemplateKey:  templateKey,
		TemplateData: data,
		Status:       JobStatusPending,
		Attempts:     0,
		ScheduledAt:  scheduledAt,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

// MarkSent returns the job settled as SENT with the error cleared.
func (j EmailJob) MarkSent(processedAt time.Time) EmailJob {
	j.Status = JobStatusSent
	j.Attempts++
	j.Error = nil
	j.UpdatedAt = processedAt
	return j
}

// MarkFailed returns the job settled as FAILED with reason recorded.
func (j EmailJob) MarkFailed(processedAt time.Time, reason string) EmailJob {
	j.Status = JobStatusFailed
	j.Attempts++
	j.Error = &reason
	j.UpdatedAt = processedAt
	return j
}

// IsDue reports whether the job is pending and eligible at now.
func (j EmailJob) IsDue(now time.Time) bool {
	return j.Status == JobStatusPending && !j.ScheduledAt.After(now)
}
