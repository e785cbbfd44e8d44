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

// Package models defines the data structures shared across the notification service.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EmailStatus is the deliverability state of a contact's primary address.
type EmailStatus string

const (
	EmailStatusUnverified EmailStatus = "UNVERIFIED"
	EmailStatusVerified   EmailStatus = "VERIFIED"
	EmailStatusBounced    EmailStatus = "BOUNCED"
	EmailStatusUnsub      EmailStatus = "UNSUB"
)

// ParseEmailStatus validates a status name.
func ParseEmailStatus(s string) (EmailStatus, error) {
	switch st := EmailStatus(s); st {
	case EmailStatusUnverified, EmailStatusVerified, EmailStatusBounced, EmailStatusUnsub:
		return st, nil
	}
	return "", fmt.Errorf("unknown email status %q", s)
}

// ChannelEmail is the only channel name the dispatcher interprets.
const ChannelEmail = "email"

// Contact holds a user's delivery preferences.
type Contact struct {
	UserID       uuid.UUID
	PrimaryEmail string
	EmailStatus  EmailStatus
	Locale       string // BCP-47 tag, empty when unknown
	Channels     map[string]bool
	QuietHours   *QuietHours
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// QuietHours is a local time-of-day window during which delivery is deferred.
// The window wraps past midnight when Start > End.
type QuietHours struct {
	Start    TimeOfDay `json:"start"`
	End      TimeOfDay `json:"end"`
	Timezone string    `json:"timezone,omitempty"` // IANA name, empty = UTC
}

// Location resolves the quiet hours zone. Unknown names fall back to UTC.
func (q QuietHours) Location() *time.Location {
	if q.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TimeOfDay is a wall-clock time with minute precision, stored as minutes
// since local midnight.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from hour and minute.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "HH:MM" in 24-hour form.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' || !isDigits(s[:2]) || !isDigits(s[3:]) {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("invalid time of day %q: out of range", s)
	}
	return NewTimeOfDay(h, m), nil
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// MarshalText renders "HH:MM".
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses "HH:MM".
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
