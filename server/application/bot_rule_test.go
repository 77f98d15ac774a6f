package application

import (
	"math/rand/v2"
	"testing"

	"gallery/server/domain"
)

func TestRuleBotController_PicksNearest(t *testing.T) {
	r := &RuleBotController{Reaction: 5, rng: rand.New(rand.NewPCG(1, 1))}
	targets := []TargetSlot{
		{Index: 0, Active: true, Position: domain.Position{X: 10, Z: 10}},
		{Index: 1, Active: true, Position: domain.Position{X: 1, Z: 1}},
		{Index: 2, Active: false, Position: domain.Position{}},
		{Index: 3, Active: true, Position: domain.Position{X: 100, Z: 100}},
	}

	got, ok := r.pick(domain.Position{}, targets)
	if !ok || got.Index != 1 {
		t.Errorf("pick() = (%d, %v), want (1, true)", got.Index, ok)
	}

	r.Greedy = true
	got, ok = r.pick(domain.Position{}, targets)
	if !ok || got.Index != 0 {
		t.Errorf("greedy pick() = (%d, %v), want (0, true)", got.Index, ok)
	}
}

func TestRuleBotController_Cooldown(t *testing.T) {
	r := NewRuleBotController(rand.New(rand.NewPCG(2, 3)))
	targets := []TargetSlot{{Index: 4, Active: true, Position: domain.Position{X: 1}}}

	acted := false
	for range 200 {
		a := r.Decide(domain.Position{}, targets)
		if a.Shoot {
			if a.Slot != 4 {
				t.Fatalf("Slot = %d, want 4", a.Slot)
			}
			acted = true
			if r.cooldown != r.Reaction {
				t.Errorf("cooldown = %d after shot, want %d", r.cooldown, r.Reaction)
			}
		}
	}
	if !acted {
		t.Error("bot never shot")
	}

	if a := r.Decide(domain.Position{}, nil); a.Shoot {
		t.Error("bot shot with no targets")
	}
}
