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

// Package contact owns user contact preferences: the delivery gate applied
// before enqueueing and before sending, the Postgres store, and the upsert
// use case behind the contact API.
package contact

import (
	"errors"
	"fmt"

	"github.com/Notivest/notification-service/internal/models"
)

// ErrChannelDisabled is returned by Check when the email channel is off.
var ErrChannelDisabled = errors.New("Email channel disabled")

// BlockedError is returned by Check when the address status forbids delivery.
type BlockedError struct {
	Status models.EmailStatus
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("Email status %s blocks delivery", e.Status)
}

// EmailChannelEnabled reports whether the contact opted into email. A
// missing channel entry counts as disabled.
func EmailChannelEnabled(c models.Contact) bool {
	return c.Channels[models.ChannelEmail]
}

// IsDeliveryBlocked reports whether mail to an address in this state must
// not be sent.
func IsDeliveryBlocked(s models.EmailStatus) bool {
	return s == models.EmailStatusBounced || s == models.EmailStatusUnsub
}

// Check applies both gate predicates, channel first.
func Check(c models.Contact) error {
	if !EmailChannelEnabled(c) {
		return ErrChannelDisabled
	}
	if IsDeliveryBlocked(c.EmailStatus) {
		return &BlockedError{Status: c.EmailStatus}
	}
	return nil
}
