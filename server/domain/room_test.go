package domain_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "gallery/server/domain"
)

type recordingApp struct {
	events []string
	ticks  int
}

func (a *recordingApp) Join(_ context.Context, id domain.ParticipantID) {
	a.events = append(a.events, "join:"+id.String())
}

func (a *recordingApp) Leave(_ context.Context, id domain.ParticipantID) {
	a.events = append(a.events, "leave:"+id.String())
}

func (a *recordingApp) HandleMessage(_ context.Context, from domain.ParticipantID, _ []byte) error {
	a.events = append(a.events, "msg:"+from.String())
	return nil
}

func (a *recordingApp) Tick(context.Context, time.Time) { a.ticks++ }

type recordingSender struct {
	mu   sync.Mutex
	sent [][]byte
}

func (s *recordingSender) Send(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, data)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func startRoom(t *testing.T, app domain.Application) (*domain.Room, context.CancelFunc) {
	t.Helper()
	room := domain.NewRoom(5 * time.Millisecond)
	room.SetApplication(app)
	ctx, cancel := context.WithCancel(context.Background())
	go room.Run(ctx)
	t.Cleanup(cancel)
	return room, cancel
}

func TestRoom_ProcessesEventsInArrivalOrder(t *testing.T) {
	app := &recordingApp{}
	room, _ := startRoom(t, app)
	ctx := context.Background()

	if err := room.Join(ctx, 1, &recordingSender{}); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	_ = room.Deliver(ctx, 1, []byte("a"))
	_ = room.Leave(ctx, 1)
	// 離脱後のメッセージはアプリケーションに届かない
	_ = room.Deliver(ctx, 1, []byte("b"))

	var got []string
	if err := room.Do(ctx, func(context.Context) { got = append(got, app.events...) }); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	want := []string{"join:1", "msg:1", "leave:1"}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRoom_BroadcastAndLocalSend(t *testing.T) {
	app := &recordingApp{}
	room := domain.NewRoom(5 * time.Millisecond)
	room.SetApplication(app)
	local := &recordingSender{}
	room.SetLocal(local)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go room.Run(ctx)

	a, b := &recordingSender{}, &recordingSender{}
	_ = room.Join(ctx, domain.ServerParticipantID, nil)
	_ = room.Join(ctx, 1, a)
	_ = room.Join(ctx, 2, b)

	err := room.Do(ctx, func(ctx context.Context) {
		room.Broadcast(ctx, []byte("all"))
		room.SendTo(ctx, 2, []byte("two"))
		room.SendTo(ctx, domain.ServerParticipantID, []byte("host"))
		room.SendTo(ctx, 9, []byte("nobody"))
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if a.count() != 1 {
		t.Errorf("participant 1 received %d, want 1", a.count())
	}
	if b.count() != 2 {
		t.Errorf("participant 2 received %d, want 2", b.count())
	}
	// ローカル参加者はブロードキャスト対象外
	if local.count() != 1 {
		t.Errorf("local received %d, want 1", local.count())
	}

	var members []domain.ParticipantID
	_ = room.Do(ctx, func(context.Context) { members = room.Members() })
	if len(members) != 3 || members[0] != 0 || members[2] != 2 {
		t.Errorf("members = %v, want [0 1 2]", members)
	}
}

func TestRoom_TicksApplication(t *testing.T) {
	app := &recordingApp{}
	room, _ := startRoom(t, app)

	time.Sleep(50 * time.Millisecond)
	var ticks int
	_ = room.Do(context.Background(), func(context.Context) { ticks = app.ticks })
	if ticks == 0 {
		t.Error("application was never ticked")
	}
}

func TestRoom_ClosedAfterRunReturns(t *testing.T) {
	app := &recordingApp{}
	room, cancel := startRoom(t, app)
	cancel()

	select {
	case <-room.Done():
	case <-time.After(time.Second):
		t.Fatal("room did not stop")
	}
	if err := room.Join(context.Background(), 1, nil); !errors.Is(err, domain.ErrRoomClosed) {
		t.Errorf("Join after close err = %v, want %v", err, domain.ErrRoomClosed)
	}
	if err := room.Do(context.Background(), func(context.Context) {}); !errors.Is(err, domain.ErrRoomClosed) {
		t.Errorf("Do after close err = %v, want %v", err, domain.ErrRoomClosed)
	}
}

func TestRoom_RunWithoutApplication(t *testing.T) {
	room := domain.NewRoom(time.Millisecond)
	if err := room.Run(context.Background()); !errors.Is(err, domain.ErrNoApplication) {
		t.Errorf("Run err = %v, want %v", err, domain.ErrNoApplication)
	}
}
