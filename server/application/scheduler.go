package application

import (
	"cmp"
	"context"
	"slices"
	"time"
)

type scheduledTask struct {
	at  time.Time
	seq uint64
	fn  func(ctx context.Context)
}

// Scheduler はティックの時刻に合わせて遅延処理を実行します。
// Room のループ上でのみ使用し、セッション終了時に破棄されます。
type Scheduler struct {
	now   time.Time
	tasks []scheduledTask
	seq   uint64
}

func NewScheduler(start time.Time) *Scheduler {
	return &Scheduler{now: start}
}

// Now は最後に処理したティックの時刻です。
func (s *Scheduler) Now() time.Time { return s.now }

// After は d 経過後の最初のティックで fn を実行するよう予約します。
func (s *Scheduler) After(d time.Duration, fn func(ctx context.Context)) {
	s.seq++
	task := scheduledTask{at: s.now.Add(d), seq: s.seq, fn: fn}
	i, _ := slices.BinarySearchFunc(s.tasks, task, compareTasks)
	s.tasks = slices.Insert(s.tasks, i, task)
}

// Run は now までに期限が来た処理を予約順に実行します。
func (s *Scheduler) Run(ctx context.Context, now time.Time) {
	if now.After(s.now) {
		s.now = now
	}
	for len(s.tasks) > 0 && !s.tasks[0].at.After(s.now) {
		task := s.tasks[0]
		s.tasks = s.tasks[1:]
		task.fn(ctx)
	}
}

func (s *Scheduler) Pending() int { return len(s.tasks) }

func (s *Scheduler) Clear() { s.tasks = nil }

func compareTasks(a, b scheduledTask) int {
	if c := a.at.Compare(b.at); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}
