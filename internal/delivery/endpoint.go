// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package delivery

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/cardinalhq/fieldrelay/internal/transport"
)

// Poster is the part of the HTTP collaborator delivery needs.
type Poster interface {
	Post(ctx context.Context, url string, headers map[string]string, body []byte, timeout time.Duration) (transport.Response, error)
}

// IdempotencyHeader carries the record's key, minted when it was ingested,
// so that upstream can drop the duplicates at-least-once delivery produces.
const IdempotencyHeader = "Idempotency-Key"

// Endpoint is one upstream a record is posted to.
type Endpoint struct {
	Name    string
	URL     string
	Headers map[string]string
	// Required endpoints gate the record: it counts as delivered only when
	// every required endpoint accepted it. Others are best-effort.
	Required bool
	Timeout  time.Duration
}

// Attempt is the outcome of posting one record to one endpoint.
type Attempt struct {
	Endpoint string
	Outcome  transport.Outcome
	Status   int
}

// Post sends body to the endpoint with its configured headers plus key.
func (e Endpoint) Post(ctx context.Context, client Poster, body []byte, key string) Attempt {
	headers := maps.Clone(e.Headers)
	if headers == nil {
		headers = map[string]string{}
	}
	if key != "" {
		headers[IdempotencyHeader] = key
	}
	resp, err := client.Post(ctx, e.URL, headers, body, e.Timeout)
	return Attempt{
		Endpoint: e.Name,
		Outcome:  transport.Classify(resp, err),
		Status:   resp.Status,
	}
}

// Accepted reports whether attempts satisfy every required endpoint.
// attempts must be in the same order as endpoints.
func Accepted(endpoints []Endpoint, attempts []Attempt) bool {
	for i, e := range endpoints {
		if e.Required && (i >= len(attempts) || attempts[i].Outcome != transport.Delivered) {
			return false
		}
	}
	return true
}

// ValidateEndpoints checks that at least one endpoint gates delivery and
// that names are usable as metric attributes.
func ValidateEndpoints(endpoints []Endpoint) error {
	if len(endpoints) == 0 {
		return errors.New("no delivery endpoints")
	}
	required := false
	seen := map[string]bool{}
	for i, e := range endpoints {
		if e.Name == "" {
			return fmt.Errorf("endpoint %d: missing name", i)
		}
		if seen[e.Name] {
			return fmt.Errorf("endpoint %s: duplicate name", e.Name)
		}
		seen[e.Name] = true
		if e.URL == "" {
			return fmt.Errorf("endpoint %s: missing url", e.Name)
		}
		required = required || e.Required
	}
	if !required {
		return errors.New("no required delivery endpoint")
	}
	return nil
}
