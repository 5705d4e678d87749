package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/wesm/mailquery/cmd/mailquery/cmd"
)

const (
	exitCodeError       = 1
	exitCodeInterrupted = 130 // 128 + SIGINT, mirrors shell convention
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		if isSignalCanceled(err, ctx) {
			return exitCodeInterrupted
		}
		return exitCodeError
	}
	return 0
}

// isSignalCanceled reports whether err stems from the signal context. The
// engine wraps cancellation, so both context.Canceled and the governor's
// cancellation error are matched through errors.Is.
func isSignalCanceled(err error, ctx context.Context) bool {
	return ctx.Err() == context.Canceled && (errors.Is(err, context.Canceled) || cmd.IsCancelled(err))
}
