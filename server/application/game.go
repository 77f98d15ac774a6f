package application

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"gallery/server/content"
	"gallery/server/domain"
)

// Mode は権威側のゲームの動作形態です。
type Mode uint8

const (
	// ModeOffline はシングルプレイ。参加者はローカルプレイヤーのみ。
	ModeOffline Mode = iota + 1
	// ModeHost は参加者 0 としてプレイしながら他の参加者を受け入れる。
	ModeHost
	// ModeDedicated はローカル参加者を持たない専用サーバー。ロビー待機は無い。
	ModeDedicated
)

func (m Mode) String() string {
	switch m {
	case ModeOffline:
		return "offline"
	case ModeHost:
		return "host"
	case ModeDedicated:
		return "dedicated"
	default:
		return "unknown"
	}
}

type GameConfig struct {
	Mode       Mode
	Content    *content.Content
	SpawnDelay time.Duration
	Rand       *rand.Rand
	Now        func() time.Time
}

// Game は権威側 (シングルプレイ・ホスト・専用サーバー) のゲームロジックです。
// domain.Application として Room のループ上で動作します。
type Game struct {
	mode      Mode
	out       domain.Outbox
	content   *content.Content
	scheduler *Scheduler
	field     *Field
	lobby     *Lobby
	spawner   *Spawner
	ledger    *Ledger
	pool      *TargetPool
	now       func() time.Time
}

func NewGame(cfg GameConfig, out domain.Outbox) *Game {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	c := cfg.Content
	if c == nil {
		c = content.Default()
	}

	ledgerMode := LedgerServer
	if cfg.Mode == ModeOffline {
		ledgerMode = LedgerLocal
	}

	scheduler := NewScheduler(now())
	field := NewField()
	return &Game{
		mode:      cfg.Mode,
		out:       out,
		content:   c,
		scheduler: scheduler,
		field:     field,
		lobby:     NewLobby(cfg.Mode == ModeDedicated, out, now),
		spawner:   NewSpawner(field, c, scheduler, out, cfg.SpawnDelay),
		ledger:    NewLedger(ledgerMode, out),
		pool:      NewTargetPool(c, rng, out),
		now:       now,
	}
}

func (g *Game) Mode() Mode            { return g.mode }
func (g *Game) Lobby() *Lobby         { return g.lobby }
func (g *Game) Spawner() *Spawner     { return g.spawner }
func (g *Game) Ledger() *Ledger       { return g.ledger }
func (g *Game) Pool() *TargetPool     { return g.pool }
func (g *Game) Field() *Field         { return g.field }
func (g *Game) Scheduler() *Scheduler { return g.scheduler }
func (g *Game) Score() int            { return g.ledger.Score() }

// Open はセッション開始時に一度だけループ上で呼ばれます。
func (g *Game) Open(ctx context.Context, now time.Time) {
	g.scheduler.Run(ctx, now)
	switch g.mode {
	case ModeOffline:
		pos, _ := g.content.SpawnPoint(0)
		g.field.SpawnLocal(pos)
	case ModeHost:
		g.Join(ctx, domain.ServerParticipantID)
	case ModeDedicated:
		g.spawner.Start(ctx)
		g.spawner.Connect(ctx, domain.ServerParticipantID)
	}
	// ホストはロビーを閉じるまでターゲットを出さない
	if g.mode != ModeHost {
		g.startPool(ctx, now)
	}
	slog.InfoContext(ctx, "game opened", "mode", g.mode)
}

func (g *Game) startPool(ctx context.Context, now time.Time) {
	if err := g.pool.Start(now); err != nil {
		slog.WarnContext(ctx, "target spawning unavailable", "err", err)
	}
}

// Close はセッション終了時に状態を破棄します。
func (g *Game) Close(ctx context.Context) {
	g.scheduler.Clear()
	g.pool.Reset()
	g.spawner.Reset()
	g.lobby.Reset()
	slog.InfoContext(ctx, "game closed", "mode", g.mode, "score", g.ledger.Score())
}

func (g *Game) Join(ctx context.Context, id domain.ParticipantID) {
	if g.mode == ModeOffline {
		slog.WarnContext(ctx, "offline game does not accept participants", "participantID", id)
		return
	}
	g.lobby.Connect(ctx, id)
	g.spawner.Connect(ctx, id)
}

func (g *Game) Leave(ctx context.Context, id domain.ParticipantID) {
	g.lobby.Disconnect(ctx, id)
	g.spawner.Disconnect(ctx, id)
}

func (g *Game) Tick(ctx context.Context, now time.Time) {
	g.scheduler.Run(ctx, now)
	g.pool.Tick(ctx, now, g.ledger.Score())
}

func (g *Game) HandleMessage(ctx context.Context, from domain.ParticipantID, data []byte) error {
	msg, err := domain.ParseMessage(data)
	if err != nil {
		return err
	}

	switch msg.Kind.DataType {
	case domain.DataTypeLobby:
		if domain.LobbySubType(msg.Kind.SubType) == domain.LobbySubTypeStartRequest {
			return g.StartGame(ctx, from)
		}
	case domain.DataTypeScore:
		if domain.ScoreSubType(msg.Kind.SubType) == domain.ScoreSubTypeIncrementRequest {
			delta, err := domain.ParseScorePayload(msg.Payload)
			if err != nil {
				return err
			}
			return g.ledger.ApplyRequest(ctx, from, delta)
		}
	case domain.DataTypeTarget:
		switch domain.TargetSubType(msg.Kind.SubType) {
		case domain.TargetSubTypeDestroyRequest:
			slot, err := domain.ParseTargetSlotPayload(msg.Payload)
			if err != nil {
				return err
			}
			return g.ResolveHit(ctx, from, int(slot))
		case domain.TargetSubTypeSyncRequest:
			g.SyncTo(ctx, from)
			return nil
		}
	}
	return fmt.Errorf("%w: type=%d subtype=%d from=%d", ErrUnexpectedMessage, msg.Kind.DataType, msg.Kind.SubType, from)
}

// StartGame はロビーを閉じて待機中の参加者をスポーンします。セッション所有者 (参加者 0) のみ。
func (g *Game) StartGame(ctx context.Context, requester domain.ParticipantID) error {
	if !requester.IsServer() {
		slog.WarnContext(ctx, "game start rejected: not owner", "requester", requester)
		return ErrNotOwner
	}
	if g.mode == ModeOffline {
		return ErrWrongMode
	}
	if g.spawner.Started() {
		slog.WarnContext(ctx, "game start ignored: already started")
		return ErrAlreadyStarted
	}
	g.lobby.HideAll(ctx)
	g.spawner.Start(ctx)
	g.startPool(ctx, g.scheduler.Now())
	slog.InfoContext(ctx, "game started", "participants", g.lobby.Len())
	return nil
}

// ResolveHit は命中を確定させます。得点の加算と破棄の通知は権威側でのみ行われます。
func (g *Game) ResolveHit(ctx context.Context, by domain.ParticipantID, slot int) error {
	if g.mode != ModeOffline && !by.IsServer() && !g.spawner.HasPlayer(by) {
		slog.WarnContext(ctx, "hit rejected: requester has no player", "requester", by, "slot", slot)
		return ErrNoPlayer
	}
	typeIndex, err := g.pool.Destroy(ctx, slot)
	if err != nil {
		return err
	}
	points := g.content.PointValue(typeIndex)
	if err := g.ledger.Add(ctx, points); err != nil {
		return err
	}
	slog.DebugContext(ctx, "target hit", "by", by, "slot", slot, "points", points)
	return nil
}

// SyncTo は途中参加者へ現在の状態を送ります。
func (g *Game) SyncTo(ctx context.Context, id domain.ParticipantID) {
	n := g.pool.SyncTo(ctx, id)
	g.spawner.SyncTo(ctx, id)
	g.ledger.SyncTo(ctx, id)
	slog.InfoContext(ctx, "state synced", "participantID", id, "activeTargets", n)
}

// RemoveLocalPlayers はロール切り替え前に呼ばれます。
func (g *Game) RemoveLocalPlayers(ctx context.Context) {
	g.spawner.RemoveLocalPlayers(ctx)
}
