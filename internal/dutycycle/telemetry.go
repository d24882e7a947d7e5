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

package dutycycle

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	cycleDuration metric.Float64Histogram
	queueDepth    metric.Int64Gauge
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/fieldrelay/internal/dutycycle")

	var err error

	cycleDuration, err = meter.Float64Histogram(
		"fieldrelay.cycle.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall time of one duty cycle, up to the suspend request"),
	)
	if err != nil {
		log.Fatalf("failed to create cycle.duration histogram: %v", err)
	}

	queueDepth, err = meter.Int64Gauge(
		"fieldrelay.queue.depth",
		metric.WithDescription("Queue counter at the end of the cycle"),
	)
	if err != nil {
		log.Fatalf("failed to create queue.depth gauge: %v", err)
	}
}

func recordCycle(ctx context.Context, role, result string, d time.Duration) {
	cycleDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("result", result),
	))
}

func recordQueueDepth(ctx context.Context, queue string, n int) {
	queueDepth.Record(ctx, int64(n), metric.WithAttributes(attribute.String("queue", queue)))
}
