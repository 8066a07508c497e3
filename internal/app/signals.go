package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pilot/internal/logging"
)

// ForcedShutdownTimeout is the time after the first signal at which the
// process exits even if the run has not stopped.
const ForcedShutdownTimeout = 15 * time.Second

// WithSignalCancel returns a context that is cancelled on SIGINT or SIGTERM.
// A replay stops at the next step boundary; a second signal, or the forced
// timeout, exits the process. The returned cleanup must be called when the
// run ends.
func WithSignalCancel(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigChan:
			logging.Info("received signal, stopping after current step", "signal", sig)
			cancel()

			forceExitTimer := time.NewTimer(ForcedShutdownTimeout)
			defer forceExitTimer.Stop()

			select {
			case <-sigChan:
				logging.Warn("second signal, exiting")
				os.Exit(130)
			case <-forceExitTimer.C:
				logging.Warn("forced shutdown due to timeout")
				os.Exit(1)
			case <-done:
			}

		case <-done:
		case <-parent.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		close(done)
		cancel()
	}
}
