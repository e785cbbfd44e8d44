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

// Package quiethours computes the earliest instant at which an email may be
// delivered to a contact, given the contact's local quiet window.
package quiethours

import (
	"time"

	"github.com/Notivest/notification-service/internal/models"
)

// Scheduler is stateless; the zero value is ready to use.
type Scheduler struct{}

// New returns a Scheduler.
func New() Scheduler { return Scheduler{} }

// Schedule returns now when delivery is allowed immediately, otherwise the
// next local end of the quiet window as an absolute instant strictly after now.
func (Scheduler) Schedule(now time.Time, qh *models.QuietHours, bypass bool) time.Time {
	if bypass || qh == nil {
		return now
	}
	return nextAllowed(now, *qh)
}

func nextAllowed(now time.Time, qh models.QuietHours) time.Time {
	if qh.Start == qh.End {
		return now
	}

	loc := qh.Location()
	local := now.In(loc)
	tod := secondsOfDay(local)
	start := int(qh.Start) * 60
	end := int(qh.End) * 60

	if !inWindow(tod, start, end) {
		return now
	}

	// Non-wrapping windows and the early-morning tail of a wrapping window
	// resume today; the evening part of a wrapping window resumes tomorrow.
	days := 0
	if start > end && tod >= start {
		days = 1
	}
	candidate := atLocal(local, days, qh.End, loc)

	if !candidate.After(now) {
		candidate = atLocal(local, 1, qh.End, loc)
	}
	return candidate.UTC()
}

func inWindow(tod, start, end int) bool {
	if start <= end {
		return tod >= start && tod < end
	}
	return tod >= start || tod < end
}

// atLocal returns the instant of local's calendar date plus days, at t, in loc.
func atLocal(local time.Time, days int, t models.TimeOfDay, loc *time.Location) time.Time {
	y, m, d := local.Date()
	return time.Date(y, m, d+days, t.Hour(), t.Minute(), 0, 0, loc)
}

func secondsOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
