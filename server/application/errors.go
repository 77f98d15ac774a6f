package application

import "errors"

var (
	// 権限エラー
	ErrNotOwner         = errors.New("requester is not the session owner")
	ErrNotAuthoritative = errors.New("score is not owned by this participant")
	ErrSelfRequest      = errors.New("server must not request score from itself")
	ErrNoPlayer         = errors.New("requester has no spawned player")

	// 状態エラー
	ErrAlreadyStarted = errors.New("game already started")
	ErrWrongMode      = errors.New("operation not available in this mode")
	ErrNotConnected   = errors.New("participant not assigned yet")

	// プロトコルエラー
	ErrUnexpectedMessage = errors.New("unexpected message")
	ErrSlotOutOfRange    = errors.New("target slot index out of range")
	ErrSlotInactive      = errors.New("target slot is not active")
	ErrSlotActive        = errors.New("target slot is already active")

	// スコア
	ErrInvalidPoints = errors.New("points must be positive")
	ErrScoreOverflow = errors.New("score would overflow")

	// 設定エラー
	ErrPoolDisabled = errors.New("target pool is disabled")
)
