// File: cmd/pagepilot/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/cmd"
	"github.com/xkilldash9x/pagepilot/internal/observability"
)

// Replaced in tests.
var (
	osExit           = os.Exit
	stderr io.Writer = os.Stderr
)

func main() {
	defer handlePanic()

	// SIGINT and SIGTERM cancel the run; the browser is still closed on the way out.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if code := exitCode(err); code != 0 {
		osExit(code)
	}
}

// exitCode maps the outcome of a run to the process status. Interrupts and
// operator cancellation are normal ways to end a session.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled), errors.Is(err, schemas.ErrOperatorCancelled):
		return 0
	default:
		return 1
	}
}

// handlePanic logs an unrecovered panic with its stack and exits non-zero.
// Nothing is written to disk unless the logger has a log file configured.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	stack := debug.Stack()

	observability.GetLogger().Error("Unrecovered panic.",
		zap.String("panic", fmt.Sprint(r)),
		zap.ByteString("stack", stack),
	)
	observability.Sync()

	fmt.Fprintf(stderr, "\npagepilot crashed: %v\n\n%s\n", r, stack)
	osExit(1)
}
