// Package server provides shared HTTP server utilities.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Timeouts applied to every served [http.Server].
type Timeouts struct {
	ReadHeader time.Duration
	Read       time.Duration
	Write      time.Duration
	Shutdown   time.Duration
}

// DefaultTimeouts leave room for a slow upstream behind the proxy: Write
// covers the upstream fetch plus the rewrite.
var DefaultTimeouts = Timeouts{
	ReadHeader: 1 * time.Second,
	Read:       5 * time.Second,
	Write:      15 * time.Second,
	Shutdown:   10 * time.Second,
}

// Listen creates a TCP listener on the given address.
// Use "127.0.0.1:0" for a random available port.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}

// Serve starts an HTTP server on the given listener and registers graceful
// shutdown when the context is canceled.
func Serve(
	ctx context.Context,
	grp *errgroup.Group,
	srv *http.Server,
	listener net.Listener,
	timeouts Timeouts,
) {
	srv.ReadHeaderTimeout = timeouts.ReadHeader
	srv.ReadTimeout = timeouts.Read
	srv.WriteTimeout = timeouts.Write

	grp.Go(func() error {
		err := srv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	grp.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Shutdown)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
