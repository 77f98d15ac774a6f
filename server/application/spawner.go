package application

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"gallery/server/domain"
)

// SpawnPoints はプレイヤーの出現位置を返します。
// 出現位置が設定されていない場合は既定位置と false を返します。
type SpawnPoints interface {
	SpawnPoint(index int) (domain.Position, bool)
}

// SpawnRecord はゲーム開始を待つ参加者です。開始時かスポーン時に一度だけ消費されます。
type SpawnRecord struct {
	ParticipantID domain.ParticipantID
	RequestedAt   time.Time
}

// Spawner は接続した参加者にプレイヤーエンティティを割り当てます。
// ゲーム開始前の参加者は待機リストに入り、開始時に接続順でスポーンします。
type Spawner struct {
	field     *Field
	points    SpawnPoints
	scheduler *Scheduler
	out       domain.Outbox
	delay     time.Duration

	started   bool
	pending   []SpawnRecord
	connected map[domain.ParticipantID]struct{}
	nextIndex int
}

func NewSpawner(field *Field, points SpawnPoints, scheduler *Scheduler, out domain.Outbox, delay time.Duration) *Spawner {
	return &Spawner{
		field:     field,
		points:    points,
		scheduler: scheduler,
		out:       out,
		delay:     delay,
		connected: make(map[domain.ParticipantID]struct{}),
	}
}

func (s *Spawner) Started() bool { return s.started }

// Pending は待機中の参加者を接続順で返します。
func (s *Spawner) Pending() []domain.ParticipantID {
	ids := make([]domain.ParticipantID, len(s.pending))
	for i, rec := range s.pending {
		ids[i] = rec.ParticipantID
	}
	return ids
}

func (s *Spawner) PendingRecords() []SpawnRecord { return slices.Clone(s.pending) }

// Connect は参加者の接続を記録します。
// 開始済みなら短い遅延の後にスポーンし、そうでなければ待機リストに追加します。
func (s *Spawner) Connect(ctx context.Context, id domain.ParticipantID) {
	s.connected[id] = struct{}{}
	if s.started {
		s.scheduler.After(s.delay, func(ctx context.Context) {
			if _, ok := s.connected[id]; !ok {
				slog.DebugContext(ctx, "participant left before delayed spawn", "participantID", id)
				return
			}
			s.spawn(ctx, id)
		})
		return
	}
	if slices.ContainsFunc(s.pending, func(rec SpawnRecord) bool { return rec.ParticipantID == id }) {
		return
	}
	s.pending = append(s.pending, SpawnRecord{ParticipantID: id, RequestedAt: s.scheduler.Now()})
	slog.InfoContext(ctx, "player spawn pending", "participantID", id, "pending", len(s.pending))
}

// Disconnect は待機リストとフィールドから参加者を取り除きます。
func (s *Spawner) Disconnect(ctx context.Context, id domain.ParticipantID) {
	delete(s.connected, id)
	s.pending = slices.DeleteFunc(s.pending, func(rec SpawnRecord) bool { return rec.ParticipantID == id })
	if _, ok := s.field.Remove(id); ok {
		s.out.Broadcast(ctx, domain.EncodePlayerDespawnMessage(domain.ServerParticipantID, id))
		slog.InfoContext(ctx, "player despawned", "participantID", id)
	}
}

// Start はゲームを開始し、待機中の参加者をリスト順にスポーンします。
func (s *Spawner) Start(ctx context.Context) {
	if s.started {
		return
	}
	s.started = true
	pending := s.pending
	s.pending = nil
	now := s.scheduler.Now()
	for _, rec := range pending {
		slog.DebugContext(ctx, "pending player released", "participantID", rec.ParticipantID, "waited", now.Sub(rec.RequestedAt))
		s.spawn(ctx, rec.ParticipantID)
	}
}

// SyncTo は途中参加者へ既存のプレイヤーを送ります。
func (s *Spawner) SyncTo(ctx context.Context, id domain.ParticipantID) {
	for _, p := range s.field.All() {
		if p.Owner == id {
			continue
		}
		s.out.SendTo(ctx, id, domain.EncodePlayerSpawnMessage(domain.ServerParticipantID, p.Owner, p.Position))
	}
}

func (s *Spawner) HasPlayer(id domain.ParticipantID) bool {
	_, ok := s.field.Get(id)
	return ok
}

// RemoveLocalPlayers はロール切り替え前にシーン内の非ネットワークプレイヤーを削除します。
func (s *Spawner) RemoveLocalPlayers(ctx context.Context) {
	if n := s.field.ClearLocal(); n > 0 {
		slog.InfoContext(ctx, "removed scene players", "count", n)
	}
}

func (s *Spawner) Reset() {
	s.started = false
	s.pending = nil
	clear(s.connected)
	s.nextIndex = 0
	s.field.Clear()
}

func (s *Spawner) spawn(ctx context.Context, id domain.ParticipantID) {
	if _, ok := s.field.Get(id); ok {
		slog.WarnContext(ctx, "player already spawned", "participantID", id)
		return
	}
	pos, ok := s.points.SpawnPoint(s.nextIndex)
	if !ok {
		slog.WarnContext(ctx, "no spawn points configured, using default position", "participantID", id)
	}
	s.nextIndex++
	s.field.Spawn(id, pos)

	msg := domain.EncodePlayerSpawnMessage(domain.ServerParticipantID, id, pos)
	s.out.Broadcast(ctx, msg)
	s.out.SendTo(ctx, domain.ServerParticipantID, msg)
	slog.InfoContext(ctx, "player spawned", "participantID", id, "position", pos)
}
