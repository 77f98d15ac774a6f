package application

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"gallery/server/domain"
)

// MirrorHooks はクライアントの接続状態の変化を通知します。ループ上で呼ばれます。
type MirrorHooks struct {
	OnConnected    func(ctx context.Context, id domain.ParticipantID)
	OnDisconnected func(ctx context.Context)
}

// Mirror はクライアント側の状態の写しです。サーバーからのメッセージによってのみ変化し、
// 出現の判断や得点の確定は行いません。
type Mirror struct {
	out   domain.Outbox
	hooks MirrorHooks

	self     domain.ParticipantID
	assigned bool

	slots        []TargetSlot
	ledger       *Ledger
	lobbyVisible bool
	roster       []domain.ParticipantID
	players      map[domain.ParticipantID]domain.Position
}

func NewMirror(poolSize int, out domain.Outbox, hooks MirrorHooks) *Mirror {
	slots := make([]TargetSlot, max(0, poolSize))
	for i := range slots {
		slots[i].Index = i
	}
	return &Mirror{
		out:     out,
		hooks:   hooks,
		slots:   slots,
		ledger:  NewLedger(LedgerClient, out),
		players: make(map[domain.ParticipantID]domain.Position),
	}
}

func (m *Mirror) Join(ctx context.Context, id domain.ParticipantID) {
	slog.DebugContext(ctx, "connected to server", "participantID", id)
}

func (m *Mirror) Leave(ctx context.Context, id domain.ParticipantID) {
	if !id.IsServer() {
		return
	}
	slog.WarnContext(ctx, "lost connection to server", "self", m.self)
	m.assigned = false
	m.deactivateAll()
	clear(m.players)
	m.roster = nil
	if m.hooks.OnDisconnected != nil {
		m.hooks.OnDisconnected(ctx)
	}
}

func (m *Mirror) Tick(context.Context, time.Time) {}

func (m *Mirror) HandleMessage(ctx context.Context, from domain.ParticipantID, data []byte) error {
	if !from.IsServer() {
		return fmt.Errorf("%w: from=%d", ErrUnexpectedMessage, from)
	}
	msg, err := domain.ParseMessage(data)
	if err != nil {
		return err
	}

	switch msg.Kind.DataType {
	case domain.DataTypeControl:
		if domain.ControlSubType(msg.Kind.SubType) == domain.ControlSubTypeAssign {
			id, err := domain.ParseAssignPayload(msg.Payload)
			if err != nil {
				return err
			}
			m.handleAssign(ctx, id)
			return nil
		}
	case domain.DataTypeLobby:
		return m.handleLobby(ctx, domain.LobbySubType(msg.Kind.SubType), msg.Payload)
	case domain.DataTypePlayer:
		return m.handlePlayer(domain.PlayerSubType(msg.Kind.SubType), msg.Payload)
	case domain.DataTypeScore:
		if domain.ScoreSubType(msg.Kind.SubType) == domain.ScoreSubTypeUpdate {
			score, err := domain.ParseScorePayload(msg.Payload)
			if err != nil {
				return err
			}
			return m.ledger.ApplyUpdate(ctx, score)
		}
	case domain.DataTypeTarget:
		return m.handleTarget(ctx, domain.TargetSubType(msg.Kind.SubType), msg.Payload)
	}
	return fmt.Errorf("%w: type=%d subtype=%d", ErrUnexpectedMessage, msg.Kind.DataType, msg.Kind.SubType)
}

// handleAssign は接続確立時の処理です。手元のプールを空にしてから一度だけ同期を要求します。
func (m *Mirror) handleAssign(ctx context.Context, id domain.ParticipantID) {
	m.self = id
	m.assigned = true
	m.ledger.SetSelf(id)
	m.deactivateAll()
	m.out.SendTo(ctx, domain.ServerParticipantID, domain.EncodeSyncStateRequestMessage(id))
	slog.InfoContext(ctx, "connected", "participantID", id)
	if m.hooks.OnConnected != nil {
		m.hooks.OnConnected(ctx, id)
	}
}

func (m *Mirror) handleLobby(ctx context.Context, subType domain.LobbySubType, payload []byte) error {
	switch subType {
	case domain.LobbySubTypeVisibility:
		v, err := domain.ParseLobbyVisibilityPayload(payload)
		if err != nil {
			return err
		}
		if v.ParticipantID != m.self {
			slog.DebugContext(ctx, "lobby visibility for another participant ignored", "participantID", v.ParticipantID)
			return nil
		}
		m.lobbyVisible = v.Visible
		return nil
	case domain.LobbySubTypeRoster:
		ids, err := domain.ParseLobbyRosterPayload(payload)
		if err != nil {
			return err
		}
		m.roster = ids
		return nil
	default:
		return fmt.Errorf("%w: lobby subtype=%d", ErrUnexpectedMessage, subType)
	}
}

func (m *Mirror) handlePlayer(subType domain.PlayerSubType, payload []byte) error {
	switch subType {
	case domain.PlayerSubTypeSpawn:
		p, err := domain.ParsePlayerSpawnPayload(payload)
		if err != nil {
			return err
		}
		m.players[p.Owner] = p.Position
		return nil
	case domain.PlayerSubTypeDespawn:
		owner, err := domain.ParsePlayerDespawnPayload(payload)
		if err != nil {
			return err
		}
		delete(m.players, owner)
		return nil
	default:
		return fmt.Errorf("%w: player subtype=%d", ErrUnexpectedMessage, subType)
	}
}

func (m *Mirror) handleTarget(ctx context.Context, subType domain.TargetSubType, payload []byte) error {
	switch subType {
	case domain.TargetSubTypeSpawn:
		p, err := domain.ParseTargetSpawnPayload(payload)
		if err != nil {
			return err
		}
		return m.ApplySpawn(ctx, int(p.Slot), int(p.TypeIndex), p.Position)
	case domain.TargetSubTypeDespawn, domain.TargetSubTypeDestroyBroadcast:
		slot, err := domain.ParseTargetSlotPayload(payload)
		if err != nil {
			return err
		}
		return m.ApplyDespawn(ctx, int(slot))
	default:
		return fmt.Errorf("%w: target subtype=%d", ErrUnexpectedMessage, subType)
	}
}

// ApplySpawn はサーバーの出現通知を反映します。
// 同期応答と放送が重なると同じ出現が二度届くので、内容が一致するものは無視します。
func (m *Mirror) ApplySpawn(ctx context.Context, idx, typeIndex int, pos domain.Position) error {
	if idx < 0 || idx >= len(m.slots) {
		return fmt.Errorf("%w: %d (size %d)", ErrSlotOutOfRange, idx, len(m.slots))
	}
	slot := &m.slots[idx]
	if slot.Active {
		if slot.Position == pos && slot.TypeIndex == typeIndex {
			slog.DebugContext(ctx, "duplicate spawn for active slot", "slot", idx)
			return nil
		}
		return fmt.Errorf("%w: %d", ErrSlotActive, idx)
	}
	slot.Active = true
	slot.Position = pos
	slot.TypeIndex = typeIndex
	return nil
}

// ApplyDespawn はサーバーの消滅通知を反映します。得点はサーバー側で処理済みです。
func (m *Mirror) ApplyDespawn(ctx context.Context, idx int) error {
	if idx < 0 || idx >= len(m.slots) {
		return fmt.Errorf("%w: %d (size %d)", ErrSlotOutOfRange, idx, len(m.slots))
	}
	if !m.slots[idx].Active {
		slog.DebugContext(ctx, "despawn for inactive slot", "slot", idx)
		return nil
	}
	m.slots[idx].Active = false
	return nil
}

// RequestHit は命中をサーバーへ報告します。手元のスロットは変更しません。
func (m *Mirror) RequestHit(ctx context.Context, idx int) error {
	if !m.assigned {
		return ErrNotConnected
	}
	if idx < 0 || idx >= len(m.slots) {
		return ErrSlotOutOfRange
	}
	m.out.SendTo(ctx, domain.ServerParticipantID, domain.EncodeTargetDestroyRequestMessage(m.self, uint16(idx)))
	return nil
}

// RequestStart はゲーム開始を要求します。所有者ではないためサーバーに拒否されます。
func (m *Mirror) RequestStart(ctx context.Context) error {
	if !m.assigned {
		return ErrNotConnected
	}
	m.out.SendTo(ctx, domain.ServerParticipantID, domain.EncodeGameStartRequestMessage(m.self))
	return nil
}

func (m *Mirror) AddScore(ctx context.Context, points int) error {
	if !m.assigned {
		return ErrNotConnected
	}
	return m.ledger.Add(ctx, points)
}

func (m *Mirror) Self() domain.ParticipantID { return m.self }
func (m *Mirror) Assigned() bool             { return m.assigned }
func (m *Mirror) Ledger() *Ledger            { return m.ledger }
func (m *Mirror) Score() int                 { return m.ledger.Score() }
func (m *Mirror) LobbyVisible() bool         { return m.lobbyVisible }

func (m *Mirror) Roster() []domain.ParticipantID {
	return append([]domain.ParticipantID(nil), m.roster...)
}

func (m *Mirror) Players() map[domain.ParticipantID]domain.Position {
	return maps.Clone(m.players)
}

func (m *Mirror) Slot(idx int) (TargetSlot, bool) {
	if idx < 0 || idx >= len(m.slots) {
		return TargetSlot{}, false
	}
	return m.slots[idx], true
}

func (m *Mirror) ActiveSlots() []TargetSlot {
	var out []TargetSlot
	for _, slot := range m.slots {
		if slot.Active {
			out = append(out, slot)
		}
	}
	return out
}

func (m *Mirror) deactivateAll() {
	for i := range m.slots {
		m.slots[i].Active = false
	}
}
