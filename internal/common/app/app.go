package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/armadaproject/renderbench/internal/common/runcontext"
)

// CreateContextWithShutdown returns a context that will report done when SIGINT or SIGTERM is received.
// The returned stop function releases the signal handler.
func CreateContextWithShutdown(log *logrus.Entry) (*runcontext.Context, func()) {
	ctx, cancel := runcontext.WithCancel(runcontext.New(context.Background(), log))
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-c:
			ctx.Log.WithField("signal", sig.String()).Warn("Interrupted, finishing with a partial report")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(c)
		cancel()
	}
}
