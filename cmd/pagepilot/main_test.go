// File: cmd/pagepilot/main_test.go
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/config"
	"github.com/xkilldash9x/pagepilot/internal/observability"
)

// resetMocks restores the original function implementations.
func resetMocks() {
	osExit = os.Exit
	stderr = os.Stderr
	observability.ResetForTest()
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"interrupted", context.Canceled, 0},
		{"interrupted and wrapped", fmt.Errorf("navigate: %w", context.Canceled), 0},
		{"operator cancelled", schemas.ErrOperatorCancelled, 0},
		{"startup failure", &schemas.StartupError{Reason: "GEMINI_API_KEY is not set"}, 1},
		{"navigation failure", &schemas.NavigationFailure{URL: "https://example.com/", Err: errors.New("timeout")}, 1},
		{"deadline", context.DeadlineExceeded, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

// panicking runs f under the same deferred handler main uses.
func panicking(f func()) {
	defer handlePanic()
	f()
}

func TestHandlePanic(t *testing.T) {
	t.Cleanup(resetMocks)

	t.Run("logs the panic and exits", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)

		var logs, errOut bytes.Buffer
		observability.ResetForTest()
		observability.Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.AddSync(&logs))
		stderr = &errOut
		gotCode := -1
		osExit = func(code int) { gotCode = code }

		panicking(func() { panic("boom") })

		assert.Equal(t, 1, gotCode)
		assert.Contains(t, logs.String(), "Unrecovered panic.")
		assert.Contains(t, logs.String(), `"panic":"boom"`)
		assert.Contains(t, logs.String(), "goroutine", "the stack trace is logged")
		assert.Contains(t, errOut.String(), "pagepilot crashed: boom")

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries, "nothing is written to the working directory")
	})

	t.Run("configured log file receives the panic", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "pagepilot.log")
		observability.ResetForTest()
		observability.Initialize(config.LoggerConfig{Level: "info", Format: "json", LogFile: logFile}, zapcore.AddSync(&bytes.Buffer{}))
		stderr = &bytes.Buffer{}
		osExit = func(int) {}

		panicking(func() { panic(errors.New("nil map")) })

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "nil map")
	})

	t.Run("no panic", func(t *testing.T) {
		var errOut bytes.Buffer
		stderr = &errOut
		called := false
		osExit = func(int) { called = true }

		require.NotPanics(t, func() { panicking(func() {}) })
		assert.False(t, called)
		assert.Empty(t, errOut.String())
	})
}
