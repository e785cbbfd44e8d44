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

package notification

import (
	"time"

	"github.com/google/uuid"
)

// Reason explains why an event did not produce a job.
type Reason string

const (
	ReasonContactNotFound      Reason = "CONTACT_NOT_FOUND"
	ReasonEmailChannelDisabled Reason = "EMAIL_CHANNEL_DISABLED"
	ReasonEmailStatusBlocked   Reason = "EMAIL_STATUS_BLOCKED"
	ReasonDeduplicated         Reason = "DEDUPLICATED"
)

// Outcome is either accepted, carrying the job id and delivery instant, or
// rejected, carrying a reason. Build one with Accepted or Rejected.
type Outcome struct {
	accepted    bool
	jobID       uuid.UUID
	scheduledAt time.Time
	reason      Reason
}

// Accepted builds the outcome for a persisted job.
func Accepted(jobID uuid.UUID, scheduledAt time.Time) Outcome {
	return Outcome{accepted: true, jobID: jobID, scheduledAt: scheduledAt}
}

// Rejected builds the outcome for a dropped event. It panics on an empty
// reason.
func Rejected(reason Reason) Outcome {
	if reason == "" {
		panic("notification: rejected outcome requires a reason")
	}
	return Outcome{reason: reason}
}

// IsAccepted reports whether a job was created.
func (o Outcome) IsAccepted() bool { return o.accepted }

// JobID is uuid.Nil for rejected outcomes.
func (o Outcome) JobID() uuid.UUID { return o.jobID }

// ScheduledAt is the zero time for rejected outcomes.
func (o Outcome) ScheduledAt() time.Time { return o.scheduledAt }

// Reason is empty for accepted outcomes.
func (o Outcome) Reason() Reason { return o.reason }

func (o Outcome) String() string {
	if o.accepted {
		return "accepted(" + o.jobID.String() + " at " + o.scheduledAt.Format(time.RFC3339) + ")"
	}
	return "rejected(" + string(o.reason) + ")"
}
