package application

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"gallery/server/domain"
)

// Participant はロビーに接続中の参加者です。
type Participant struct {
	ID           domain.ParticipantID
	ConnectedAt  time.Time
	LobbyVisible bool
}

// Lobby は接続中の参加者とロビー表示状態を管理します。
type Lobby struct {
	dedicated bool
	started   bool
	members   map[domain.ParticipantID]*Participant
	roster    []Participant
	out       domain.Outbox
	now       func() time.Time
}

func NewLobby(dedicated bool, out domain.Outbox, now func() time.Time) *Lobby {
	return &Lobby{
		dedicated: dedicated,
		started:   dedicated,
		members:   make(map[domain.ParticipantID]*Participant),
		out:       out,
		now:       now,
	}
}

// Connect は参加者を登録し、ロビーの表示・非表示を本人へ指示します。
// 専用サーバーまたは開始済みのゲームでは非表示です。
func (l *Lobby) Connect(ctx context.Context, id domain.ParticipantID) {
	if _, ok := l.members[id]; ok {
		slog.WarnContext(ctx, "participant already in lobby", "participantID", id)
		return
	}
	// 開始後に入ってきた参加者へ表示を指示すると、それを閉じる開始通知はもう来ない。
	// そのためホストでも開始済みなら非表示で送る。
	visible := !l.dedicated && !l.started
	l.members[id] = &Participant{ID: id, ConnectedAt: l.now(), LobbyVisible: visible}
	l.out.SendTo(ctx, id, domain.EncodeLobbyVisibilityMessage(domain.ServerParticipantID, id, visible))
	slog.InfoContext(ctx, "participant joined lobby", "participantID", id, "lobbyVisible", visible)
	l.rebuild(ctx)
}

func (l *Lobby) Disconnect(ctx context.Context, id domain.ParticipantID) {
	if _, ok := l.members[id]; !ok {
		return
	}
	delete(l.members, id)
	slog.InfoContext(ctx, "participant left lobby", "participantID", id)
	l.rebuild(ctx)
}

// HideAll はゲーム開始時に全参加者へロビー非表示を指示します。
func (l *Lobby) HideAll(ctx context.Context) {
	l.started = true
	for _, p := range l.sorted() {
		p.LobbyVisible = false
		l.out.SendTo(ctx, p.ID, domain.EncodeLobbyVisibilityMessage(domain.ServerParticipantID, p.ID, false))
	}
	l.rebuild(ctx)
}

func (l *Lobby) Started() bool { return l.started }

// Roster は参加者一覧を ID 昇順で返します。
func (l *Lobby) Roster() []Participant { return slices.Clone(l.roster) }

func (l *Lobby) Len() int { return len(l.members) }

func (l *Lobby) Visible(id domain.ParticipantID) (visible, ok bool) {
	p, ok := l.members[id]
	if !ok {
		return false, false
	}
	return p.LobbyVisible, true
}

func (l *Lobby) Reset() {
	clear(l.members)
	l.roster = nil
	l.started = l.dedicated
}

// rebuild は参加者一覧を作り直して全員へ送ります。
func (l *Lobby) rebuild(ctx context.Context) {
	members := l.sorted()
	l.roster = make([]Participant, len(members))
	ids := make([]domain.ParticipantID, len(members))
	for i, p := range members {
		l.roster[i] = *p
		ids[i] = p.ID
	}

	data, err := domain.EncodeLobbyRosterMessage(domain.ServerParticipantID, ids)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode lobby roster", "err", err)
		return
	}
	l.out.Broadcast(ctx, data)
	if _, ok := l.members[domain.ServerParticipantID]; ok {
		l.out.SendTo(ctx, domain.ServerParticipantID, data)
	}
}

func (l *Lobby) sorted() []*Participant {
	members := make([]*Participant, 0, len(l.members))
	for _, p := range l.members {
		members = append(members, p)
	}
	slices.SortFunc(members, func(a, b *Participant) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return members
}
