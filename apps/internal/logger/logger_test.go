// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(pii bool) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug, // Set the log level to Debug to capture all log levels
	})
	return New(slog.New(handler), pii), &buf
}

func TestLogger_Log_ConsoleOutput(t *testing.T) {
	logInstance, buf := newTestLogger(false)
	ctx := context.Background()

	logInstance.Log(ctx, Info, "This is an info message via slog.", Field("username", "john_doe"), slog.Int("age", 30))
	logInstance.Log(ctx, Err, "This is an error message via slog.", slog.String("module", "user-service"), slog.Int("retry", 3))
	logInstance.Log(ctx, Warn, "This is a warn message via slog.", slog.Int("free_space_mb", 100))
	logInstance.Log(ctx, Debug, "This is a debug message via slog.", slog.String("module", "main"))

	output := buf.String()
	expectedMessages := []string{
		`"level":"INFO","msg":"This is an info message via slog."`,
		`"level":"ERROR","msg":"This is an error message via slog."`,
		`"level":"WARN","msg":"This is a warn message via slog."`,
		`"level":"DEBUG","msg":"This is a debug message via slog."`,
		`"username":"john_doe"`,
	}

	for _, msg := range expectedMessages {
		if !strings.Contains(output, msg) {
			t.Errorf("expected log output %q not found in output", msg)
		}
	}
}

func TestLogger_LogPII(t *testing.T) {
	tests := []struct {
		desc string
		pii  bool
		want bool
	}{
		{desc: "PII disabled", pii: false, want: false},
		{desc: "PII enabled", pii: true, want: true},
	}

	for _, test := range tests {
		l, buf := newTestLogger(test.pii)
		l.LogPII(context.Background(), Info, "account removed", Field("username", "user@contoso.com"))
		if got := strings.Contains(buf.String(), "user@contoso.com"); got != test.want {
			t.Errorf("TestLogger_LogPII(%s): got output %v, want %v", test.desc, got, test.want)
		}
		if l.PIIEnabled() != test.pii {
			t.Errorf("TestLogger_LogPII(%s): PIIEnabled() = %v", test.desc, l.PIIEnabled())
		}
	}
}

func TestLogger_With(t *testing.T) {
	l, buf := newTestLogger(false)
	l.With(Field("correlation_id", "abc")).Log(context.Background(), Info, "hello")
	if !strings.Contains(buf.String(), `"correlation_id":"abc"`) {
		t.Errorf("TestLogger_With: field missing from %s", buf.String())
	}
}

func TestLogger_Nil(t *testing.T) {
	// None of these may panic.
	var l *Logger
	l.Log(context.Background(), Info, "nil")
	l.LogPII(context.Background(), Info, "nil")
	if l.With("a", 1) != nil {
		t.Errorf("TestLogger_Nil: With on nil Logger should return nil")
	}

	New(nil, true).Log(context.Background(), Err, "discarded")
	Discard().LogPII(context.Background(), Err, "discarded")
}
