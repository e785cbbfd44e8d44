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
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EmailEventKind classifies feedback from the email provider.
type EmailEventKind string

const (
	EmailEventDelivered   EmailEventKind = "DELIVERED"
	EmailEventOpen        EmailEventKind = "OPEN"
	EmailEventClick       EmailEventKind = "CLICK"
	EmailEventBounce      EmailEventKind = "BOUNCE"
	EmailEventComplaint   EmailEventKind = "COMPLAINT"
	EmailEventUnsubscribe EmailEventKind = "UNSUBSCRIBE"
	EmailEventOther       EmailEventKind = "OTHER"
)

// ParseEmailEventKind validates a kind name.
func ParseEmailEventKind(s string) (EmailEventKind, error) {
	switch k := EmailEventKind(s); k {
	case EmailEventDelivered, EmailEventOpen, EmailEventClick, EmailEventBounce,
		EmailEventComplaint, EmailEventUnsubscribe, EmailEventOther:
		return k, nil
	}
	return "", fmt.Errorf("unknown email event kind %q", s)
}

// EmailEvent is a delivery feedback event reported by the provider webhook.
type EmailEvent struct {
	ID                uuid.UUID
	UserID            *uuid.UUID
	Email             string
	Kind              EmailEventKind
	ProviderReference string
	Payload           json.RawMessage
	OccurredAt        time.Time
	ReceivedAt        time.Time
}

// Holding is a user's position in one symbol, as reported by the portfolio
// service. Quantity and AvgCost are decimal strings passed through verbatim.
type Holding struct {
	PortfolioID   uuid.UUID   `json:"portfolioId"`
	PortfolioName string      `json:"portfolioName"`
	Symbol        string      `json:"symbol"`
	Quantity      json.Number `json:"quantity"`
	AvgCost       json.Number `json:"avgCost"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}
