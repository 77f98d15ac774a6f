package domain

import (
	"testing"
	"time"
)

func TestPresence_IsIdle(t *testing.T) {
	now := time.Unix(1000, 0)
	p := NewPresence(true)
	p.now = func() time.Time { return now }
	p.TouchRead()
	p.TouchPong()

	if idle, _ := p.IsIdle(10 * time.Second); idle {
		t.Fatal("fresh presence reported idle")
	}

	now = now.Add(11 * time.Second)
	idle, reason := p.IsIdle(10 * time.Second)
	if !idle {
		t.Fatal("expected idle after timeout")
	}
	if !reason.Has(IdleRead) || !reason.Has(IdlePong) {
		t.Errorf("reason = %v, want read|pong", reason)
	}
	if reason.String() != "read|pong" {
		t.Errorf("reason string = %q, want %q", reason.String(), "read|pong")
	}

	p.TouchRead()
	_, reason = p.IsIdle(10 * time.Second)
	if reason != IdlePong {
		t.Errorf("reason = %v, want pong", reason)
	}
}

func TestPresence_DisabledTimeout(t *testing.T) {
	p := NewPresence(false)
	idle, reason := p.IsIdle(0)
	if idle || reason != IdleDisabled {
		t.Errorf("IsIdle(0) = %v, %v; want false, disabled", idle, reason)
	}
}

func TestPresence_PongIgnoredWithoutHeartbeat(t *testing.T) {
	now := time.Unix(1000, 0)
	p := NewPresence(false)
	p.now = func() time.Time { return now }
	p.TouchRead()
	now = now.Add(5 * time.Second)
	p.TouchRead()
	if idle, reason := p.IsIdle(4 * time.Second); idle {
		t.Errorf("IsIdle = true (%v), want false", reason)
	}
}
