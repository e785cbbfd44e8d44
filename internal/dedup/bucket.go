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

package dedup

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned for a window that is not a positive whole
// number of seconds.
var ErrInvalidWindow = errors.New("dedup window must be a positive whole number of seconds")

// Calculator maps instants onto an epoch-aligned grid of fixed-width buckets.
// Two events share a bucket only if they fall in the same aligned window,
// not merely within one window of each other.
type Calculator struct {
	windowSeconds int64
}

// NewCalculator validates window and returns a Calculator.
func NewCalculator(window time.Duration) (*Calculator, error) {
	if window <= 0 || window%time.Second != 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidWindow, window)
	}
	return &Calculator{windowSeconds: int64(window / time.Second)}, nil
}

// Window returns the bucket width.
func (c *Calculator) Window() time.Duration {
	return time.Duration(c.windowSeconds) * time.Second
}

// BucketFor truncates t down to the start of its window, in UTC. Sub-second
// precision is dropped first, so instants before the epoch floor correctly.
func (c *Calculator) BucketFor(t time.Time) time.Time {
	sec := t.Unix()
	return time.Unix(sec-floorMod(sec, c.windowSeconds), 0).UTC()
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
