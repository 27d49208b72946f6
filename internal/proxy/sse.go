package proxy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// DefaultSSEAddr is the loopback address the HTTP/SSE transport binds by
// default (spec §4.4): not meant to be reachable off-host.
const DefaultSSEAddr = "127.0.0.1:24680"

// ServeSSE runs the proxy over the streaming-HTTP/SSE transport. Session
// bookkeeping, the "event: endpoint"/"event: message" framing, and
// keepalive pings are handled by the mark3labs SSE server rather than
// hand-rolled here, the same division of labor browserNerd's StartSSE
// and mcpproxy-go's server use: this package's job is only wiring the
// HTTP route and the listener lifecycle.
func (p *Proxy) ServeSSE(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultSSEAddr
	}

	sse := mcpserver.NewSSEServer(p.mcp, mcpserver.WithBaseURL(fmt.Sprintf("http://%s", addr)))

	router := mux.NewRouter()
	router.Handle("/sse", sse.SSEHandler())
	router.Handle("/message", sse.MessageHandler())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}
