package application

import (
	"math/rand/v2"

	"gallery/server/domain"
)

const (
	botMissChance float64 = 0.15 // 狙いを外す確率
	botMaxRange   float32 = 40.0 // これより遠いターゲットは狙わない
)

// RuleBotController はルールベースのボットAIです。
// ボットごとに異なる反応速度を持ちます。
type RuleBotController struct {
	Reaction int // 射撃間隔 (tick)
	Greedy   bool

	rng      *rand.Rand
	cooldown int
}

// NewRuleBotController はランダムな個性を持つボットAIを生成します。
func NewRuleBotController(rng *rand.Rand) *RuleBotController {
	return &RuleBotController{
		Reaction: 10 + rng.IntN(30), // 10〜39
		Greedy:   rng.Float64() < 0.5,
		rng:      rng,
	}
}

func (r *RuleBotController) Decide(self domain.Position, targets []TargetSlot) BotAction {
	if r.cooldown > 0 {
		r.cooldown--
		return BotAction{}
	}
	target, ok := r.pick(self, targets)
	if !ok {
		return BotAction{}
	}
	r.cooldown = r.Reaction
	if r.rng.Float64() < botMissChance {
		return BotAction{}
	}
	return BotAction{Shoot: true, Slot: target.Index}
}

// pick は狙うターゲットを選びます。Greedy なボットは最寄りではなく最も遠いものを狙う。
func (r *RuleBotController) pick(self domain.Position, targets []TargetSlot) (TargetSlot, bool) {
	var best TargetSlot
	found := false
	var bestDistSq float32

	for _, t := range targets {
		if !t.Active {
			continue
		}
		distSq := distanceSq(self, t.Position)
		if distSq > botMaxRange*botMaxRange {
			continue
		}
		better := distSq < bestDistSq
		if r.Greedy {
			better = distSq > bestDistSq
		}
		if !found || better {
			best, bestDistSq, found = t, distSq, true
		}
	}
	return best, found
}

func distanceSq(a, b domain.Position) float32 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return dx*dx + dy*dy + dz*dz
}
