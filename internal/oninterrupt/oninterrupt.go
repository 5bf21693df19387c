// Package oninterrupt turns SIGINT/SIGTERM into context cancellation for
// the long-running daemons (buildserverd, crashserverd): Context returns a
// context that is canceled exactly once, on the first such signal,
// allowing a Server.Run to perform its normal shutdown sequence instead of
// the process exiting immediately underneath it.
package oninterrupt

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Context returns a child of parent that is canceled when the process
// receives SIGINT or SIGTERM. The returned stop function releases the
// signal handler and should be called once shutdown has completed.
func Context(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sig:
			cancel()
		case <-done:
		}
	}()

	return ctx, func() {
		close(done)
		signal.Stop(sig)
		cancel()
	}
}
