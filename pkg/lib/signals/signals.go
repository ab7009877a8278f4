package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Context returns a child of parent that is cancelled on SIGTERM or
// SIGINT, so a long search stops cleanly and saves its checkpoint. If a
// second signal is caught, the program is terminated with exit code 1.
// The returned stop function releases the signal handler.
func Context(parent context.Context, logger logrus.FieldLogger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	c := make(chan os.Signal, 2)
	signal.Notify(c, shutdownSignals...)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-c:
			logger.WithField("signal", sig.String()).Info("shutting down")
			cancel()
		case <-done:
			return
		}
		select {
		case <-c:
			os.Exit(1) // second signal. Exit directly.
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(c)
		close(done)
		cancel()
	}
}
