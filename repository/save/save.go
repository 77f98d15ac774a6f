package save

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNoRecord = errors.New("save: no saved game")

// Record は1セッション終了時に保存するスコアです。
type Record struct {
	Score          int
	SavedAt        time.Time
	SessionID      string
	PlayerUsername string
}

func NewRecord(score int, username string, now time.Time) Record {
	return Record{
		Score:          score,
		SavedAt:        now.UTC(),
		SessionID:      uuid.NewString(),
		PlayerUsername: username,
	}
}

// Store はスコアの永続化先です。
type Store interface {
	Save(ctx context.Context, r Record) error
	// Load は最後に保存したレコードを返します。無い場合は ErrNoRecord です。
	Load(ctx context.Context) (Record, error)
	HighScore(ctx context.Context) (int, error)
	Close() error
}
