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
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	deliveryAttempts metric.Int64Counter
	deliveryRecords  metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/fieldrelay/internal/delivery")

	var err error

	deliveryAttempts, err = meter.Int64Counter(
		"fieldrelay.delivery.attempts",
		metric.WithDescription("POST attempts per endpoint and outcome"),
	)
	if err != nil {
		log.Fatalf("failed to create delivery.attempts counter: %v", err)
	}

	deliveryRecords, err = meter.Int64Counter(
		"fieldrelay.delivery.records",
		metric.WithDescription("Records handled by the relay cycle, by result"),
	)
	if err != nil {
		log.Fatalf("failed to create delivery.records counter: %v", err)
	}
}

func recordAttempt(ctx context.Context, endpoint, outcome string) {
	deliveryAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome),
	))
}

func recordResult(ctx context.Context, result string, n int) {
	if n == 0 {
		return
	}
	deliveryRecords.Add(ctx, int64(n), metric.WithAttributes(attribute.String("result", result)))
}
