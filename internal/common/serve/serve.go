package serve

import (
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/armadaproject/renderbench/internal/common/runcontext"
)

const shutdownTimeout = 5 * time.Second

// ListenAndServe serves on server.Addr until ctx is done, then shuts the server down gracefully.
// Returns nil on a clean shutdown.
func ListenAndServe(ctx *runcontext.Context, server *http.Server) error {
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return errors.WithStack(err)
	}
	return Serve(ctx, server, listener)
}

// Serve is ListenAndServe on an existing listener.
func Serve(ctx *runcontext.Context, server *http.Server, listener net.Listener) error {
	errs := make(chan error, 1)
	go func() {
		ctx.Log.Infof("serving on %s", listener.Addr())
		errs <- server.Serve(listener)
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.WithStack(err)
	case <-ctx.Done():
		shutdownCtx, cancel := runcontext.WithTimeout(runcontext.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.WithStack(err)
		}
		return nil
	}
}
