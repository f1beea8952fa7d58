package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/spinup/spinup/internal/orchestrator"
)

const wsWriteTimeout = 10 * time.Second

// Frame is one message streamed over /api/run/ws. Type is "event" for each
// engine event, then exactly one "result" or "error" before the server
// closes the connection.
type Frame struct {
	Type   string               `json:"type"`
	Event  *orchestrator.Event  `json:"event,omitempty"`
	Result *orchestrator.Result `json:"result,omitempty"`
	Error  *ErrorDetail         `json:"error,omitempty"`
}

// handleRunWS reads one RunRequest, then streams the run. Closing the socket
// cancels the run.
func (s *Server) handleRunWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var req RunRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		s.log.Debug().Err(err).Msg("websocket read")
		return
	}
	if err := req.validate(); err != nil {
		_ = writeFrame(ctx, conn, Frame{Type: "error", Error: &ErrorDetail{Kind: kindBadRequest, Message: err.Error()}})
		_ = conn.Close(websocket.StatusPolicyViolation, "bad request")
		return
	}

	// The client only sends the request; a later read returns when it goes
	// away, which cancels the run.
	readCtx := conn.CloseRead(ctx)
	go func() {
		<-readCtx.Done()
		cancel()
	}()

	stream := orchestrator.ObserverFunc(func(ctx context.Context, ev orchestrator.Event) {
		if err := writeFrame(ctx, conn, Frame{Type: "event", Event: &ev}); err != nil {
			cancel()
		}
	})

	res, err := s.engine.Run(ctx, orchestrator.Request{Query: req.Input, Input: req.Data}, stream)
	if err != nil {
		detail := errorDetail(err)
		_ = writeFrame(context.WithoutCancel(ctx), conn, Frame{Type: "error", Error: &detail})
		_ = conn.Close(websocket.StatusNormalClosure, detail.Kind)
		return
	}
	_ = writeFrame(ctx, conn, Frame{Type: "result", Result: res})
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, f)
}
