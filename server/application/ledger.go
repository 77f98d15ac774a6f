package application

import (
	"context"
	"log/slog"
	"math"

	"gallery/server/domain"
)

// LedgerMode はスコアの所有形態です。セッション開始時に決まり、途中で変わりません。
type LedgerMode uint8

const (
	// LedgerLocal はシングルプレイ。ローカルで直接加算する。
	LedgerLocal LedgerMode = iota + 1
	// LedgerServer はマルチプレイのサーバー。唯一の書き込み可能なスコアを持つ。
	LedgerServer
	// LedgerClient はマルチプレイのクライアント。サーバーの値を映すだけ。
	LedgerClient
)

func (m LedgerMode) String() string {
	switch m {
	case LedgerLocal:
		return "local"
	case LedgerServer:
		return "server"
	case LedgerClient:
		return "client"
	default:
		return "unknown"
	}
}

// Ledger はスコアを保持します。
type Ledger struct {
	mode      LedgerMode
	score     int
	self      domain.ParticipantID
	out       domain.Outbox
	listeners []func(score int)
}

func NewLedger(mode LedgerMode, out domain.Outbox) *Ledger {
	return &Ledger{mode: mode, out: out}
}

func (l *Ledger) Mode() LedgerMode { return l.mode }

func (l *Ledger) Score() int { return l.score }

// SetSelf はクライアントが要求を送る際の送信者IDを設定します。
func (l *Ledger) SetSelf(id domain.ParticipantID) { l.self = id }

// OnChange はスコアが変化するたびに呼ばれる関数を登録します。
func (l *Ledger) OnChange(fn func(score int)) {
	l.listeners = append(l.listeners, fn)
}

// Add は points を加算します。クライアントではサーバーへ加算要求を送るだけで、
// 手元の値はサーバーからの更新で変わります。
func (l *Ledger) Add(ctx context.Context, points int) error {
	if points <= 0 {
		return ErrInvalidPoints
	}
	switch l.mode {
	case LedgerLocal, LedgerServer:
		return l.apply(ctx, points)
	case LedgerClient:
		l.out.SendTo(ctx, domain.ServerParticipantID, domain.EncodeScoreIncrementRequestMessage(l.self, int64(points)))
		return nil
	default:
		return ErrWrongMode
	}
}

// ApplyRequest はクライアントからの加算要求を処理します。サーバーのみ。
// 送信者の正当性はトランスポートの参加者IDを信頼します。
func (l *Ledger) ApplyRequest(ctx context.Context, from domain.ParticipantID, delta int64) error {
	if l.mode != LedgerServer {
		slog.WarnContext(ctx, "score request rejected: not authoritative", "from", from, "mode", l.mode)
		return ErrNotAuthoritative
	}
	if from.IsServer() {
		slog.WarnContext(ctx, "score request rejected: self request", "from", from)
		return ErrSelfRequest
	}
	if delta <= 0 || delta > math.MaxInt32 {
		slog.WarnContext(ctx, "score request rejected: invalid delta", "from", from, "delta", delta)
		return ErrInvalidPoints
	}
	return l.apply(ctx, int(delta))
}

// ApplyUpdate はサーバーから届いたスコアを反映します。クライアントのみ。
func (l *Ledger) ApplyUpdate(ctx context.Context, score int64) error {
	if l.mode != LedgerClient {
		slog.WarnContext(ctx, "score update rejected: ledger is authoritative", "mode", l.mode)
		return ErrNotAuthoritative
	}
	if int(score) == l.score {
		return nil
	}
	l.score = int(score)
	l.notify()
	return nil
}

// SyncTo は現在のスコアを1参加者へ送ります。
func (l *Ledger) SyncTo(ctx context.Context, id domain.ParticipantID) {
	if l.mode != LedgerServer {
		return
	}
	l.out.SendTo(ctx, id, domain.EncodeScoreUpdateMessage(domain.ServerParticipantID, int64(l.score)))
}

func (l *Ledger) Reset() {
	l.score = 0
	l.self = domain.ServerParticipantID
}

func (l *Ledger) apply(ctx context.Context, points int) error {
	if l.score > math.MaxInt-points {
		return ErrScoreOverflow
	}
	l.score += points
	slog.DebugContext(ctx, "score updated", "score", l.score, "points", points)
	if l.mode == LedgerServer {
		msg := domain.EncodeScoreUpdateMessage(domain.ServerParticipantID, int64(l.score))
		l.out.Broadcast(ctx, msg)
	}
	l.notify()
	return nil
}

func (l *Ledger) notify() {
	for _, fn := range l.listeners {
		fn(l.score)
	}
}
