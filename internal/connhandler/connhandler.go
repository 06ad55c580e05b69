// Package connhandler implements the per-connection task entry point: the
// outer keep-alive loop and inner recv-parse-dispatch loop the engine
// spawns as a Task's function for every accepted connection.
package connhandler

import (
	"context"
	"errors"

	"github.com/groove-net/ignis/internal/engine"
	"github.com/groove-net/ignis/internal/httpparse"
	"github.com/groove-net/ignis/internal/logging"
	"github.com/groove-net/ignis/internal/middleware"
)

// recvChunk is how much is read from the socket per RecvAsync call; the
// parser is re-run against the accumulated buffer after every chunk since
// a request (or its pipelined successor) may span multiple reads.
const recvChunk = 4096

// Handler binds a Router and Logger into an engine.Handler ready to pass
// to Engine.Run.
type Handler struct {
	Router *middleware.Router
	Log    *logging.Logger
}

// New builds a Handler serving static files out of router.
func New(router *middleware.Router, log *logging.Logger) *Handler {
	return &Handler{Router: router, Log: log}
}

// Handle is the engine.Handler entry point: it runs for the lifetime of
// one connection, processing requests until the peer closes, a malformed
// request arrives, or keep-alive negotiation ends the connection.
func (h *Handler) Handle(ctx context.Context, c *engine.Conn) {
	defer c.Close()

	var buf []byte
	for {
		req, rest, ok := h.readRequest(ctx, c, buf)
		if !ok {
			return
		}
		buf = rest

		resp := h.Router.Resolve(ctx, req)
		keepAlive := req.KeepAlive() && resp.Status != 400

		if err := middleware.WriteResponse(ctx, c, req.Method, resp, keepAlive); err != nil {
			h.Log.Err().Err(err).Log("connhandler: failed writing response")
			return
		}

		if !keepAlive {
			return
		}
	}
}

// readRequest drains buf (carried over from a previous pipelined read)
// and the socket until a full request line + headers are available,
// parses it, and returns any bytes left over after the consumed request
// for the next iteration. ok is false, with a nil req, once the connection
// should close: the peer went away, a recv failed, or the request was
// malformed (in which case readRequest has already written the 400
// itself).
func (h *Handler) readRequest(ctx context.Context, c *engine.Conn, buf []byte) (*httpparse.Request, []byte, bool) {
	for {
		req, n, verdict := httpparse.Parse(buf)
		switch verdict {
		case httpparse.Complete:
			return req, buf[n:], true
		case httpparse.Malformed:
			_ = middleware.WriteResponse(ctx, c, "", middleware.Response{Status: 400}, false)
			return nil, nil, false
		}

		chunk := make([]byte, recvChunk)
		n, err := c.RecvAsync(ctx, chunk)
		if err != nil {
			if !errors.Is(err, engine.ErrPeerClosed) {
				h.Log.Err().Err(err).Log("connhandler: recv failed")
			}
			return nil, nil, false
		}
		buf = append(buf, chunk[:n]...)
	}
}
