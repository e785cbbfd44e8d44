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
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Notivest/notification-service/internal/models"
)

// HoldingsQuery looks up a user's portfolio positions in the given symbols.
type HoldingsQuery interface {
	Search(ctx context.Context, userID uuid.UUID, symbols []string) ([]models.Holding, error)
}

// Enricher adds the user's holdings to alert template data so the email
// can show the affected positions.
type Enricher struct {
	holdings HoldingsQuery
}

// NewEnricher creates an Enricher. A nil query leaves data untouched apart
// from symbol normalisation and an empty holdings list.
func NewEnricher(holdings HoldingsQuery) *Enricher {
	return &Enricher{holdings: holdings}
}

// Enrich normalises data.symbol and sets data.holdings. Data without a
// usable symbol is returned unchanged. A failed lookup is logged and leaves
// any existing holdings in place, or an empty list.
func (e *Enricher) Enrich(ctx context.Context, userID uuid.UUID, data json.RawMessage) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return data
	}
	symbol, ok := symbolText(obj["symbol"])
	if !ok {
		return data
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return data
	}

	obj["symbol"] = mustMarshal(symbol)

	holdings, err := e.search(ctx, userID, symbol)
	switch {
	case err != nil:
		slog.Warn("failed to fetch holdings",
			"user", userID,
			"symbol", symbol,
			"error", err,
		)
		if _, ok := obj["holdings"]; !ok {
			obj["holdings"] = json.RawMessage("[]")
		}
	default:
		if holdings == nil {
			holdings = []models.Holding{}
		}
		obj["holdings"] = mustMarshal(holdings)
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return data
	}
	return out
}

// symbolText reads a JSON string, number or boolean as text.
func symbolText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func (e *Enricher) search(ctx context.Context, userID uuid.UUID, symbol string) ([]models.Holding, error) {
	if e.holdings == nil {
		return nil, nil
	}
	return e.holdings.Search(ctx, userID, []string{symbol})
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
