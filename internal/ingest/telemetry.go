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

package ingest

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	recordsIngested metric.Int64Counter
	gatewayRequests metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/fieldrelay/internal/ingest")

	var err error

	recordsIngested, err = meter.Int64Counter(
		"fieldrelay.ingest.records",
		metric.WithDescription("Records pulled from the gateway and committed to the success queue"),
	)
	if err != nil {
		log.Fatalf("failed to create ingest.records counter: %v", err)
	}

	gatewayRequests, err = meter.Int64Counter(
		"fieldrelay.ingest.requests",
		metric.WithDescription("Requests made to the gateway"),
	)
	if err != nil {
		log.Fatalf("failed to create ingest.requests counter: %v", err)
	}
}

func recordRequest(ctx context.Context, kind string, outcome string) {
	gatewayRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}
