package domain

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// SendFunc は1フレームを接続の書き込みキューへ積みます。
type SendFunc func(ctx context.Context, data []byte) error

// Heartbeat はサーバー側の接続へ一定間隔で Ping を積みます。
// Pong の到着はエンドポイントの Presence が記録し、途絶はアイドル判定で検出されます。
type Heartbeat struct {
	interval time.Duration
	from     ParticipantID
	send     SendFunc

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func NewHeartbeat(interval time.Duration, from ParticipantID, send SendFunc) *Heartbeat {
	return &Heartbeat{interval: interval, from: from, send: send}
}

// Run は ctx がキャンセルされるか、送信先が閉じられるまで Ping を送り続けます。
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := h.send(ctx, EncodePingMessage(h.from))
			switch {
			case err == nil:
				h.sent.Add(1)
			case errors.Is(err, ErrEndpointClosed):
				return
			default:
				// 書き込みが詰まっている間の Ping は捨てる。次の周期で再送される。
				h.dropped.Add(1)
				slog.WarnContext(ctx, "heartbeat: ping dropped", "from", h.from, "err", err)
			}
		}
	}
}

func (h *Heartbeat) Sent() uint64    { return h.sent.Load() }
func (h *Heartbeat) Dropped() uint64 { return h.dropped.Load() }
