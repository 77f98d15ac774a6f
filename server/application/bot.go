package application

import "gallery/server/domain"

// BotAction はボットの行動を表します。Shoot が false のときは何もしない。
type BotAction struct {
	Shoot bool
	Slot  int
}

// BotController はボットの意思決定インターフェースです。
type BotController interface {
	Decide(self domain.Position, targets []TargetSlot) BotAction
}
