package domain

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"
)

var (
	ErrRoomClosed    = errors.New("room is closed")
	ErrNoApplication = errors.New("room has no application")
	ErrUnknownSender = errors.New("message from unknown participant")
)

// Sender は1参加者へエンコード済みフレームを届けます。
type Sender interface {
	Send(ctx context.Context, data []byte) error
}

// Outbox は Application が参加者へ送信するための口です。Room のループ上でのみ有効です。
type Outbox interface {
	// Broadcast はリモートの全参加者へ送信する
	Broadcast(ctx context.Context, data []byte)
	// SendTo は1参加者へ送信する
	SendTo(ctx context.Context, id ParticipantID, data []byte)
}

type roomEventKind uint8

const (
	roomEventJoin roomEventKind = iota + 1
	roomEventLeave
	roomEventMessage
	roomEventCall
)

type roomEvent struct {
	kind   roomEventKind
	id     ParticipantID
	sender Sender
	data   []byte
	fn     func(ctx context.Context)
	done   chan struct{}
}

// Room は1セッションの単一ティックループです。
// 参加・離脱・受信メッセージ・外部からの呼び出しはすべてこのループ上で順番に処理されます。
type Room struct {
	members   map[ParticipantID]struct{}
	endpoints map[ParticipantID]Sender
	local     Sender // ホスト自身 (participant 0) 宛て

	application Application

	inbox chan roomEvent
	done  chan struct{}

	tickInterval time.Duration
	now          func() time.Time
}

func NewRoom(tickInterval time.Duration) *Room {
	if tickInterval <= 0 {
		tickInterval = time.Second / 30
	}
	return &Room{
		members:      make(map[ParticipantID]struct{}),
		endpoints:    make(map[ParticipantID]Sender),
		inbox:        make(chan roomEvent, 1024),
		done:         make(chan struct{}),
		tickInterval: tickInterval,
		now:          time.Now,
	}
}

// SetApplication は Run の前に呼び出します。
func (r *Room) SetApplication(app Application) { r.application = app }

// SetLocal はホスト自身宛ての送信先を設定します。Run の前に呼び出します。
func (r *Room) SetLocal(s Sender) { r.local = s }

func (r *Room) TickInterval() time.Duration { return r.tickInterval }

// Join は参加者を追加します。sender が nil の場合はローカル参加者として扱います。
func (r *Room) Join(ctx context.Context, id ParticipantID, sender Sender) error {
	return r.enqueue(ctx, roomEvent{kind: roomEventJoin, id: id, sender: sender})
}

func (r *Room) Leave(ctx context.Context, id ParticipantID) error {
	return r.enqueue(ctx, roomEvent{kind: roomEventLeave, id: id})
}

// Deliver は Inbox を実装します。
func (r *Room) Deliver(ctx context.Context, from ParticipantID, data []byte) error {
	return r.enqueue(ctx, roomEvent{kind: roomEventMessage, id: from, data: data})
}

// Do は fn をループ上で実行し、完了まで待ちます。ループ上から呼んではいけません。
func (r *Room) Do(ctx context.Context, fn func(ctx context.Context)) error {
	done := make(chan struct{})
	if err := r.enqueue(ctx, roomEvent{kind: roomEventCall, fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		select {
		case <-done:
			return nil
		default:
			return ErrRoomClosed
		}
	case <-done:
		return nil
	}
}

// Done は Run が終了すると close されます。
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) enqueue(ctx context.Context, ev roomEvent) error {
	select {
	case <-r.done:
		return ErrRoomClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRoomClosed
	case r.inbox <- ev:
		return nil
	}
}

func (r *Room) Run(ctx context.Context) error {
	defer close(r.done)
	if r.application == nil {
		return ErrNoApplication
	}

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.step(ctx, r.now())
		}
	}
}

// step は溜まったイベントを到着順に処理してから Application の Tick を呼び出します。
func (r *Room) step(ctx context.Context, now time.Time) {
EVENT_LOOP:
	for {
		select {
		case ev := <-r.inbox:
			r.handleEvent(ctx, ev)
		default:
			break EVENT_LOOP
		}
	}
	r.application.Tick(ctx, now)
}

func (r *Room) handleEvent(ctx context.Context, ev roomEvent) {
	switch ev.kind {
	case roomEventJoin:
		if _, ok := r.members[ev.id]; ok {
			slog.WarnContext(ctx, "participant already joined", "participantID", ev.id)
			return
		}
		r.members[ev.id] = struct{}{}
		if ev.sender != nil {
			r.endpoints[ev.id] = ev.sender
		}
		r.application.Join(ctx, ev.id)
	case roomEventLeave:
		if _, ok := r.members[ev.id]; !ok {
			return
		}
		delete(r.members, ev.id)
		delete(r.endpoints, ev.id)
		r.application.Leave(ctx, ev.id)
	case roomEventMessage:
		if _, ok := r.members[ev.id]; !ok {
			slog.WarnContext(ctx, "room handle message failed", "from", ev.id, "err", ErrUnknownSender)
			return
		}
		if err := r.application.HandleMessage(ctx, ev.id, ev.data); err != nil {
			slog.WarnContext(ctx, "room handle message failed", "from", ev.id, "err", err)
		}
	case roomEventCall:
		ev.fn(ctx)
		if ev.done != nil {
			close(ev.done)
		}
	default:
		slog.WarnContext(ctx, "unknown room event kind", "kind", ev.kind)
	}
}

func (r *Room) Broadcast(ctx context.Context, data []byte) {
	for id, s := range r.endpoints {
		if err := s.Send(ctx, data); err != nil {
			slog.WarnContext(ctx, "broadcast failed", "participantID", id, "err", err)
		}
	}
}

func (r *Room) SendTo(ctx context.Context, id ParticipantID, data []byte) {
	s, ok := r.endpoints[id]
	if !ok && id.IsServer() && r.local != nil {
		s, ok = r.local, true
	}
	if !ok {
		slog.DebugContext(ctx, "send to unknown participant dropped", "participantID", id)
		return
	}
	if err := s.Send(ctx, data); err != nil {
		slog.WarnContext(ctx, "send failed", "participantID", id, "err", err)
	}
}

// Members は現在の参加者を昇順で返します。ループ上でのみ有効です。
func (r *Room) Members() []ParticipantID {
	ids := make([]ParticipantID, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
