// Package sqlite はスコアを SQLite に保存します。
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gallery/repository/save"
	"gallery/repository/save/sqlite/migrations"

	_ "modernc.org/sqlite"
)

type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open はデータベースを開き、埋め込みのマイグレーションを適用します。
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func applyMigrations(db *sql.DB, fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	slices.Sort(names)
	for _, name := range names {
		stmt, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := db.Exec(string(stmt)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Save(ctx context.Context, r save.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	savedAt := r.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO saves (session_id, player_username, score, saved_at) VALUES (?, ?, ?, ?)`,
		r.SessionID, r.PlayerUsername, r.Score, toMillis(savedAt),
	)
	if err != nil {
		return fmt.Errorf("insert save: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (save.Record, error) {
	if err := ctx.Err(); err != nil {
		return save.Record{}, err
	}
	var (
		r       save.Record
		savedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT session_id, player_username, score, saved_at FROM saves ORDER BY id DESC LIMIT 1`,
	).Scan(&r.SessionID, &r.PlayerUsername, &r.Score, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return save.Record{}, save.ErrNoRecord
	}
	if err != nil {
		return save.Record{}, fmt.Errorf("load save: %w", err)
	}
	r.SavedAt = fromMillis(savedAt)
	return r, nil
}

func (s *Store) HighScore(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var best int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COALESCE(MAX(score), 0) FROM saves`).Scan(&best); err != nil {
		return 0, fmt.Errorf("query high score: %w", err)
	}
	return best, nil
}
