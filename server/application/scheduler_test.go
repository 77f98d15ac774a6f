package application

import (
	"context"
	"testing"
	"time"
)

func TestScheduler_RunsDueTasksInOrder(t *testing.T) {
	start := time.Unix(1000, 0)
	s := NewScheduler(start)
	ctx := context.Background()

	var got []string
	s.After(200*time.Millisecond, func(context.Context) { got = append(got, "b") })
	s.After(100*time.Millisecond, func(context.Context) { got = append(got, "a") })
	s.After(200*time.Millisecond, func(context.Context) { got = append(got, "c") })

	s.Run(ctx, start.Add(50*time.Millisecond))
	if len(got) != 0 {
		t.Fatalf("ran %v before due", got)
	}

	s.Run(ctx, start.Add(100*time.Millisecond))
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("got = %v, want [a]", got)
	}

	s.Run(ctx, start.Add(time.Second))
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
}

func TestScheduler_TimeDoesNotGoBackwards(t *testing.T) {
	start := time.Unix(1000, 0)
	s := NewScheduler(start)
	s.Run(context.Background(), start.Add(time.Second))
	s.Run(context.Background(), start)

	if !s.Now().Equal(start.Add(time.Second)) {
		t.Errorf("Now() = %v, want %v", s.Now(), start.Add(time.Second))
	}
}

func TestScheduler_TaskScheduledDuringRunWaitsForItsTime(t *testing.T) {
	start := time.Unix(1000, 0)
	s := NewScheduler(start)
	ctx := context.Background()

	ran := 0
	s.After(0, func(context.Context) {
		s.After(time.Second, func(context.Context) { ran++ })
	})
	s.Run(ctx, start)
	if ran != 0 {
		t.Fatalf("nested task ran immediately")
	}
	s.Run(ctx, start.Add(time.Second))
	if ran != 1 {
		t.Errorf("ran = %d, want 1", ran)
	}
}

func TestScheduler_Clear(t *testing.T) {
	s := NewScheduler(time.Unix(0, 0))
	s.After(time.Millisecond, func(context.Context) { t.Error("cleared task ran") })
	s.Clear()
	s.Run(context.Background(), time.Unix(10, 0))
}
