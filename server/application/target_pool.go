package application

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"gallery/server/content"
	"gallery/server/domain"
)

// TargetSlot はプールの1スロットです。Index は複製のキーで、生成後に変わりません。
type TargetSlot struct {
	Index     int
	Active    bool
	Position  domain.Position
	TypeIndex int
}

// SpawnRater はスコアに応じた出現間隔を返します。
type SpawnRater interface {
	SpawnRate(score int) time.Duration
}

// TargetPool は固定長のターゲットプールです。出現の判断はサーバーだけが行い、
// スロットの変化はすべて即座に参加者へ送られます。
type TargetPool struct {
	slots     []TargetSlot
	active    int
	maxActive int
	zone      content.SpawnZone
	height    float32
	types     int

	rates SpawnRater
	rng   *rand.Rand
	out   domain.Outbox

	enabled   bool
	running   bool
	nextSpawn time.Time
}

// NewTargetPool は c の設定でプールを作ります。設定に不備があればプールは無効になります。
func NewTargetPool(c *content.Content, rng *rand.Rand, out domain.Outbox) *TargetPool {
	p := &TargetPool{
		rates: c,
		rng:   rng,
		out:   out,
		types: max(1, c.TargetTypes()),
	}
	if err := c.ValidatePool(); err != nil {
		slog.Error("target pool disabled", "err", err)
		return p
	}
	p.enabled = true
	p.maxActive = c.MaxConcurrentTargets
	p.zone = *c.SpawnZone
	p.height = c.SpawnHeight
	p.slots = make([]TargetSlot, c.PoolSize)
	for i := range p.slots {
		p.slots[i].Index = i
	}
	return p
}

func (p *TargetPool) Enabled() bool { return p.enabled }

func (p *TargetPool) Size() int { return len(p.slots) }

func (p *TargetPool) MaxActive() int { return p.maxActive }

func (p *TargetPool) ActiveCount() int { return p.active }

// Start は出現ループを開始します。最初の出現は次のティックです。
func (p *TargetPool) Start(now time.Time) error {
	if !p.enabled {
		return ErrPoolDisabled
	}
	p.running = true
	p.nextSpawn = now
	return nil
}

func (p *TargetPool) Stop() { p.running = false }

// Tick は出現時刻に達していれば1体出現させ、次の出現時刻を決めます。
//
//	出現 -> rate(score) 待機 -> 出現 ...
func (p *TargetPool) Tick(ctx context.Context, now time.Time, score int) {
	if !p.running || now.Before(p.nextSpawn) {
		return
	}
	if p.active < p.maxActive {
		if _, ok := p.SpawnNext(ctx); !ok {
			// 空きが無い: 次のティックで再試行する
			return
		}
	}
	p.nextSpawn = now.Add(p.rates.SpawnRate(score))
}

// SpawnNext は最初の空きスロットをランダムな位置で有効化します。
func (p *TargetPool) SpawnNext(ctx context.Context) (int, bool) {
	if !p.enabled {
		return -1, false
	}
	if p.active >= p.maxActive {
		return -1, false
	}
	idx := p.firstInactive()
	if idx < 0 {
		slog.WarnContext(ctx, "pool exhausted", "size", len(p.slots), "active", p.active)
		return -1, false
	}

	slot := &p.slots[idx]
	slot.Active = true
	slot.Position = p.randomPosition()
	slot.TypeIndex = p.rng.IntN(p.types)
	p.active++

	p.out.Broadcast(ctx, domain.EncodeTargetSpawnMessage(domain.ServerParticipantID, uint16(idx), uint8(slot.TypeIndex), slot.Position))
	slog.DebugContext(ctx, "target spawned", "slot", idx, "position", slot.Position, "type", slot.TypeIndex)
	return idx, true
}

// Despawn は命中以外の理由でスロットを無効化します。
func (p *TargetPool) Despawn(ctx context.Context, idx int) error {
	if err := p.deactivate(idx); err != nil {
		return err
	}
	p.out.Broadcast(ctx, domain.EncodeTargetDespawnMessage(domain.ServerParticipantID, uint16(idx)))
	return nil
}

// Destroy は命中したスロットを無効化し、その種別を返します。
func (p *TargetPool) Destroy(ctx context.Context, idx int) (int, error) {
	if err := p.deactivate(idx); err != nil {
		return 0, err
	}
	p.out.Broadcast(ctx, domain.EncodeTargetDestroyBroadcastMessage(domain.ServerParticipantID, uint16(idx)))
	return p.slots[idx].TypeIndex, nil
}

// SyncTo は有効なスロットをすべて1参加者へ送り直します。
func (p *TargetPool) SyncTo(ctx context.Context, id domain.ParticipantID) int {
	n := 0
	for _, slot := range p.slots {
		if !slot.Active {
			continue
		}
		p.out.SendTo(ctx, id, domain.EncodeTargetSpawnMessage(domain.ServerParticipantID, uint16(slot.Index), uint8(slot.TypeIndex), slot.Position))
		n++
	}
	return n
}

func (p *TargetPool) Slot(idx int) (TargetSlot, bool) {
	if idx < 0 || idx >= len(p.slots) {
		return TargetSlot{}, false
	}
	return p.slots[idx], true
}

func (p *TargetPool) ActiveSlots() []TargetSlot {
	out := make([]TargetSlot, 0, p.active)
	for _, slot := range p.slots {
		if slot.Active {
			out = append(out, slot)
		}
	}
	return out
}

// Reset はすべてのスロットを無効化してループを止めます。送信はしません。
func (p *TargetPool) Reset() {
	for i := range p.slots {
		p.slots[i].Active = false
	}
	p.active = 0
	p.running = false
}

func (p *TargetPool) deactivate(idx int) error {
	if idx < 0 || idx >= len(p.slots) {
		return ErrSlotOutOfRange
	}
	if !p.slots[idx].Active {
		return ErrSlotInactive
	}
	p.slots[idx].Active = false
	p.active--
	return nil
}

func (p *TargetPool) firstInactive() int {
	for i := range p.slots {
		if !p.slots[i].Active {
			return i
		}
	}
	return -1
}

func (p *TargetPool) randomPosition() domain.Position {
	return domain.Position{
		X: p.zone.MinX + p.rng.Float32()*(p.zone.MaxX-p.zone.MinX),
		Y: p.height,
		Z: p.zone.MinZ + p.rng.Float32()*(p.zone.MaxZ-p.zone.MinZ),
	}
}
