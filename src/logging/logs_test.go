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
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSetupOTelSDKExportsLogsAndSpans(t *testing.T) {
	out := &syncBuffer{}
	shutdown, err := SetupOTelSDK(context.Background(), out)
	require.NoError(t, err)

	InitializeDefaultCounters()
	Log("session-log-marker", slog.LevelInfo)

	ctx, span := StartSpan(context.Background(), "span-marker")
	UpdateSpanValue(ctx, "steps", 3)
	Increment(ctx, AttemptsRecorded)
	Increment(ctx, "never-registered")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, out.String(), "session-log-marker")
	require.Contains(t, out.String(), "span-marker")
}
