package domain

import (
	"context"
	"time"
)

// Application は Room のループ上で動くゲームロジックです。
// すべてのメソッドは Room のゴルーチンからのみ呼ばれます。
type Application interface {
	Join(ctx context.Context, id ParticipantID)
	Leave(ctx context.Context, id ParticipantID)
	HandleMessage(ctx context.Context, from ParticipantID, data []byte) error
	Tick(ctx context.Context, now time.Time)
}
