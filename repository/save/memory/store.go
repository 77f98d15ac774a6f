package memory

import (
	"context"
	"sync"

	"gallery/repository/save"
)

// Store はプロセス内だけで保持するスコア保存先です。保存先パスが無い場合に使います。
type Store struct {
	mu      sync.Mutex
	records []save.Record
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Save(ctx context.Context, r save.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *Store) Load(ctx context.Context) (save.Record, error) {
	if err := ctx.Err(); err != nil {
		return save.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return save.Record{}, save.ErrNoRecord
	}
	return s.records[len(s.records)-1], nil
}

func (s *Store) HighScore(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	best := 0
	for _, r := range s.records {
		best = max(best, r.Score)
	}
	return best, nil
}

func (s *Store) Close() error { return nil }
