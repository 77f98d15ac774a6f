package handler

import (
	"context"
	"log/slog"
	"net/http"

	adapterwebsocket "gallery/server/adapter/websocket"
	"gallery/server/domain"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Acceptor は受け入れた接続をセッションに参加させます。接続が閉じるまでブロックします。
type Acceptor interface {
	Accept(ctx context.Context, transport domain.Transport) error
}

type AcceptHandler struct {
	acceptor Acceptor
}

func NewAcceptHandler(acceptor Acceptor) *AcceptHandler {
	return &AcceptHandler{acceptor: acceptor}
}

func (h *AcceptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // LAN 用: Origin チェックをスキップ
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to accept", "err", err)
		return
	}

	transport := adapterwebsocket.NewTransportFrom(conn)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("net.peer.addr", r.RemoteAddr))
	slog.DebugContext(ctx, "accepted new connection", "remote", r.RemoteAddr)
	if err := h.acceptor.Accept(ctx, transport); err != nil {
		slog.ErrorContext(ctx, "connection ended with error", "remote", r.RemoteAddr, "err", err)
		_ = transport.Close(int32(websocket.StatusInternalError), "")
	}
}
