// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

package logging

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "go.opentelemetry.io/otel/gittrainer"

var (
	meter  = otel.Meter(instrumentationName)
	logger = otelslog.NewLogger(instrumentationName)
	tracer = otel.Tracer(instrumentationName)

	countersMu sync.Mutex
	counters   = map[string]metric.Int64Counter{}
)

// Counter names shared across packages.
const (
	SessionsStarted   = "trainer_sessions_started"
	SessionsRestarted = "trainer_sessions_restarted"
	AttemptsRecorded  = "trainer_attempts_recorded"
	TestsExecuted     = "trainer_tests_executed"
	EngineFailures    = "trainer_engine_failures"
	StorageFailures   = "trainer_storage_failures"
)

func Log(content string, level slog.Level) {
	logger.Log(context.Background(), level, content)
}

// Logger exposes the bridged slog logger for callers that want attributes.
func Logger() *slog.Logger {
	return logger
}

func InitializeCounter(name, description, unit string) (metric.Int64Counter, error) {
	counter, err := meter.Int64Counter(name,
		metric.WithDescription(description),
		metric.WithUnit(unit))
	if err != nil {
		Log("Failed to create metric: "+err.Error(), slog.LevelError)
		return nil, err
	}
	countersMu.Lock()
	counters[name] = counter
	countersMu.Unlock()
	return counter, nil
}

// InitializeDefaultCounters registers every counter the trainer reports.
func InitializeDefaultCounters() {
	InitializeCounter(SessionsStarted, "Number of attached terminal sessions", "Session")
	InitializeCounter(SessionsRestarted, "Number of sessions ended by a restart request", "Session")
	InitializeCounter(AttemptsRecorded, "Number of persisted grading attempts", "Attempt")
	InitializeCounter(TestsExecuted, "Number of test steps by outcome", "Test")
	InitializeCounter(EngineFailures, "Number of container engine failures", "Error")
	InitializeCounter(StorageFailures, "Number of repository failures", "Error")
}

// Increment adds one to a registered counter; unknown names are ignored.
func Increment(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	countersMu.Lock()
	counter, ok := counters[name]
	countersMu.Unlock()
	if !ok {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func UpdateSpanValue(ctx context.Context, key string, value int64) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int64(key, value))
}
