package application

import (
	"context"
	"errors"
	"math"
	"testing"

	"pgregory.net/rapid"

	"gallery/server/domain"
)

func TestLedger_LocalAdd(t *testing.T) {
	out := newRecordingOutbox(t)
	l := NewLedger(LedgerLocal, out)

	var seen []int
	l.OnChange(func(score int) { seen = append(seen, score) })

	if err := l.Add(context.Background(), 10); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if l.Score() != 10 {
		t.Errorf("Score() = %d, want 10", l.Score())
	}
	if len(out.sent) != 0 {
		t.Errorf("local ledger sent %d messages", len(out.sent))
	}
	if len(seen) != 1 || seen[0] != 10 {
		t.Errorf("OnChange saw %v, want [10]", seen)
	}
}

func TestLedger_RejectsNonPositive(t *testing.T) {
	l := NewLedger(LedgerLocal, newRecordingOutbox(t))
	for _, points := range []int{0, -5} {
		if err := l.Add(context.Background(), points); !errors.Is(err, ErrInvalidPoints) {
			t.Errorf("Add(%d) error = %v, want ErrInvalidPoints", points, err)
		}
	}
}

func TestLedger_ServerBroadcastsUpdate(t *testing.T) {
	out := newRecordingOutbox(t)
	l := NewLedger(LedgerServer, out)

	if err := l.ApplyRequest(context.Background(), 3, 20); err != nil {
		t.Fatalf("ApplyRequest failed: %v", err)
	}
	updates := out.filter(domain.DataTypeScore, uint8(domain.ScoreSubTypeUpdate))
	if len(updates) != 1 || !updates[0].all {
		t.Fatalf("updates = %+v, want one broadcast", updates)
	}
	score, _ := domain.ParseScorePayload(updates[0].message.Payload)
	if score != 20 {
		t.Errorf("broadcast score = %d, want 20", score)
	}
}

func TestLedger_ApplyRequestRejections(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		mode  LedgerMode
		from  domain.ParticipantID
		delta int64
		want  error
	}{
		{"client mode", LedgerClient, 1, 10, ErrNotAuthoritative},
		{"self request", LedgerServer, 0, 10, ErrSelfRequest},
		{"zero", LedgerServer, 1, 0, ErrInvalidPoints},
		{"negative", LedgerServer, 1, -1, ErrInvalidPoints},
		{"too large", LedgerServer, 1, math.MaxInt32 + 1, ErrInvalidPoints},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger(tt.mode, newRecordingOutbox(t))
			if err := l.ApplyRequest(ctx, tt.from, tt.delta); !errors.Is(err, tt.want) {
				t.Errorf("ApplyRequest error = %v, want %v", err, tt.want)
			}
			if l.Score() != 0 {
				t.Errorf("Score() = %d, want 0", l.Score())
			}
		})
	}
}

func TestLedger_ClientSendsRequestOnly(t *testing.T) {
	out := newRecordingOutbox(t)
	l := NewLedger(LedgerClient, out)
	l.SetSelf(4)
	ctx := context.Background()

	if err := l.Add(ctx, 30); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if l.Score() != 0 {
		t.Errorf("client score changed locally to %d", l.Score())
	}
	reqs := out.filter(domain.DataTypeScore, uint8(domain.ScoreSubTypeIncrementRequest))
	if len(reqs) != 1 || reqs[0].to != domain.ServerParticipantID {
		t.Fatalf("requests = %+v, want one to server", reqs)
	}
	if reqs[0].message.Header.ParticipantID != 4 {
		t.Errorf("request sender = %d, want 4", reqs[0].message.Header.ParticipantID)
	}

	if err := l.ApplyUpdate(ctx, 30); err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}
	if l.Score() != 30 {
		t.Errorf("Score() = %d, want 30", l.Score())
	}
}

func TestLedger_ApplyUpdateRejectedOnServer(t *testing.T) {
	l := NewLedger(LedgerServer, newRecordingOutbox(t))
	if err := l.ApplyUpdate(context.Background(), 100); !errors.Is(err, ErrNotAuthoritative) {
		t.Errorf("ApplyUpdate error = %v, want ErrNotAuthoritative", err)
	}
}

// 権威側のスコアは単調に増加し、受理した加算の合計に等しい。
func TestLedger_ScoreMonotonic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		l := NewLedger(LedgerServer, &recordingOutbox{t: t})
		ctx := context.Background()

		sum := 0
		prev := 0
		deltas := rapid.SliceOfN(rapid.Int64Range(-100, 1000), 1, 40).Draw(rt, "deltas")
		for i, d := range deltas {
			from := domain.ParticipantID(rapid.IntRange(0, 3).Draw(rt, "from"))
			err := l.ApplyRequest(ctx, from, d)
			if err == nil {
				sum += int(d)
			}
			if l.Score() < prev {
				rt.Fatalf("step %d: score decreased from %d to %d", i, prev, l.Score())
			}
			prev = l.Score()
		}
		if l.Score() != sum {
			rt.Fatalf("Score() = %d, want %d", l.Score(), sum)
		}
	})
}
