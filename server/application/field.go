package application

import (
	"cmp"
	"slices"

	"gallery/server/domain"
)

// Player はフィールド上のプレイヤーエンティティです。
// Networked が false のものはシングルプレイ用のシーン内プレイヤーです。
type Player struct {
	Owner     domain.ParticipantID
	Position  domain.Position
	Networked bool
}

// Field はプレイヤーエンティティを管理する構造体です。参加者1人につき1体まで。
type Field struct {
	players map[domain.ParticipantID]*Player
	local   []*Player
}

func NewField() *Field {
	return &Field{
		players: make(map[domain.ParticipantID]*Player),
	}
}

// Spawn は owner のプレイヤーを生成します。既に存在する場合は false を返します。
func (f *Field) Spawn(owner domain.ParticipantID, pos domain.Position) (*Player, bool) {
	if _, ok := f.players[owner]; ok {
		return nil, false
	}
	p := &Player{Owner: owner, Position: pos, Networked: true}
	f.players[owner] = p
	return p, true
}

// SpawnLocal はネットワークに属さないプレイヤーを生成します。
func (f *Field) SpawnLocal(pos domain.Position) *Player {
	p := &Player{Owner: domain.ServerParticipantID, Position: pos}
	f.local = append(f.local, p)
	return p
}

// ClearLocal はネットワークに属さないプレイヤーをすべて削除し、削除数を返します。
func (f *Field) ClearLocal() int {
	n := len(f.local)
	f.local = nil
	return n
}

// Remove はプレイヤーをフィールドから削除します。
func (f *Field) Remove(owner domain.ParticipantID) (*Player, bool) {
	p, ok := f.players[owner]
	if ok {
		delete(f.players, owner)
	}
	return p, ok
}

func (f *Field) Get(owner domain.ParticipantID) (*Player, bool) {
	p, ok := f.players[owner]
	return p, ok
}

// All はネットワーク上のプレイヤーを所有者の昇順で返します。
func (f *Field) All() []*Player {
	players := make([]*Player, 0, len(f.players))
	for _, p := range f.players {
		players = append(players, p)
	}
	slices.SortFunc(players, func(a, b *Player) int {
		return cmp.Compare(a.Owner, b.Owner)
	})
	return players
}

func (f *Field) Local() []*Player { return slices.Clone(f.local) }

func (f *Field) Len() int { return len(f.players) }

func (f *Field) Clear() {
	clear(f.players)
	f.local = nil
}
