package domain

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrBackpressure は書き込みチャネルが満杯の場合に返されるエラーです。
	ErrBackpressure = errors.New("write channel is full, apply backpressure")
	// ErrInitializationFailed はセッションエンドポイントの初期化に失敗した場合に返されるエラーです。
	ErrInitializationFailed = errors.New("failed to initialize session endpoint")
	// ErrEndpointClosed は閉じたエンドポイントへ送信しようとした場合に返されるエラーです。
	ErrEndpointClosed = errors.New("endpoint is closed")
)

// Inbox は接続から読み込んだフレームの配送先です。
type Inbox interface {
	Deliver(ctx context.Context, from ParticipantID, data []byte) error
}

// EndpointConfig はエンドポイントの向きと監視設定です。
type EndpointConfig struct {
	// Remote は接続の向こう側の参加者ID。クライアント側では常に ServerParticipantID。
	Remote ParticipantID
	// Local は自分の参加者ID。クライアント側では Assign を受信するまで未確定。
	Local ParticipantID
	// Assign が true のとき、起動直後に Remote へ Assign を送信する (サーバー側)。
	Assign bool

	HeartbeatInterval time.Duration
	IdleTimeout       time.Duration
}

type SessionEndpoint struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg        EndpointConfig
	local      atomic.Uint64
	presence   *Presence
	connection *Connection
	inbox      Inbox

	ctrlCh  chan endpointEvent // 制御用チャネル
	writeCh chan []byte        // 書き込み用チャネル

	// lifecycle
	closed atomic.Bool
}

func NewSessionEndpoint(cfg EndpointConfig, connection *Connection, inbox Inbox) (*SessionEndpoint, error) {
	if connection == nil {
		return nil, ErrInitializationFailed
	}
	if inbox == nil {
		return nil, ErrInitializationFailed
	}
	ctx, cancel := context.WithCancel(context.Background())
	se := &SessionEndpoint{
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		presence:   NewPresence(cfg.HeartbeatInterval > 0),
		connection: connection,
		inbox:      inbox,
		ctrlCh:     make(chan endpointEvent, 16),
		writeCh:    make(chan []byte, 1024),
	}
	se.local.Store(uint64(cfg.Local))
	// Assign は他のどのメッセージよりも先に届く必要がある
	if cfg.Assign {
		se.writeCh <- EncodeAssignMessage(cfg.Remote)
	}
	return se, nil
}

func (se *SessionEndpoint) Remote() ParticipantID { return se.cfg.Remote }

func (se *SessionEndpoint) Local() ParticipantID { return ParticipantID(se.local.Load()) }

func (se *SessionEndpoint) ConnectionID() ConnectionID { return se.connection.ID }

// Done は接続が閉じられると close されます。
func (se *SessionEndpoint) Done() <-chan struct{} { return se.ctx.Done() }

func (se *SessionEndpoint) Run() error {
	eg, ctx := errgroup.WithContext(se.ctx)
	eg.Go(func() error {
		se.ownerLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.readLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.writeLoop(ctx)
		return nil
	})
	if se.cfg.HeartbeatInterval > 0 {
		hb := NewHeartbeat(se.cfg.HeartbeatInterval, se.Local(), se.Send)
		eg.Go(func() error {
			hb.Run(ctx)
			return nil
		})
	}

	err := eg.Wait()
	se.close()
	return err
}

func (se *SessionEndpoint) Send(_ context.Context, data []byte) error {
	if se.closed.Load() {
		return ErrEndpointClosed
	}
	select {
	case se.writeCh <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close は所有ループに正常終了を依頼します。完了は Done で待ちます。
func (se *SessionEndpoint) Close(ctx context.Context) {
	if se.closed.Load() {
		return
	}
	se.sendCtrlEvent(ctx, endpointEvent{kind: evClose})
}

func (se *SessionEndpoint) ForceClose() {
	se.close()
}

// ownerLoop は接続の状態を監視し、必要に応じて接続を閉じます。
func (se *SessionEndpoint) ownerLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-se.ctrlCh:
			se.handleControlEvent(ctx, ev)
		case <-ticker.C:
			if ok, reason := se.presence.IsIdle(se.cfg.IdleTimeout); ok {
				se.handleControlEvent(ctx, endpointEvent{
					kind: evClose,
					err:  errors.New("idle: " + reason.String()),
				})
			}
		}
	}
}

func (se *SessionEndpoint) readLoop(ctx context.Context) {
	for {
		data, err := se.connection.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				se.sendCtrlEvent(ctx, endpointEvent{kind: evReadError, err: err})
			}
			return
		}
		se.handleData(ctx, data)
	}
}

func (se *SessionEndpoint) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-se.writeCh:
			if err := se.connection.Write(ctx, data); err != nil {
				if ctx.Err() == nil {
					se.sendCtrlEvent(ctx, endpointEvent{kind: evWriteError, err: err})
				}
				return
			}
			se.presence.TouchWrite()
		}
	}
}

func (se *SessionEndpoint) close() {
	if !se.closed.CompareAndSwap(false, true) {
		return
	}
	se.cancel()
	se.connection.Close()
}

func (se *SessionEndpoint) handleData(ctx context.Context, data []byte) {
	se.presence.TouchRead()

	msg, err := ParseMessage(data)
	if err != nil {
		slog.WarnContext(ctx, "failed to parse message", "remote", se.cfg.Remote, "err", err)
		return
	}
	if msg.Header.ParticipantID != se.cfg.Remote {
		slog.WarnContext(ctx, "participant ID mismatch", "expected", se.cfg.Remote, "got", msg.Header.ParticipantID)
		return
	}

	if msg.Kind.DataType == DataTypeControl {
		if !se.handleControlMessage(ctx, msg) {
			return
		}
	}

	if err := se.inbox.Deliver(ctx, se.cfg.Remote, data); err != nil {
		slog.WarnContext(ctx, "failed to deliver message", "remote", se.cfg.Remote, "err", err)
	}
}

// handleControlMessage は接続レベルの制御メッセージを処理します。
// true を返した場合はメッセージを Inbox にも配送します。
func (se *SessionEndpoint) handleControlMessage(ctx context.Context, msg *Message) bool {
	switch ControlSubType(msg.Kind.SubType) {
	case ControlSubTypePing:
		if err := se.Send(ctx, EncodePongMessage(se.Local())); err != nil {
			slog.WarnContext(ctx, "failed to send pong", "err", err)
		}
		return false
	case ControlSubTypePong:
		se.sendCtrlEvent(ctx, endpointEvent{kind: evPong})
		return false
	case ControlSubTypeLeave:
		se.sendCtrlEvent(ctx, endpointEvent{kind: evClose})
		return false
	case ControlSubTypeAssign:
		if se.cfg.Assign {
			slog.WarnContext(ctx, "unexpected assign from client", "remote", se.cfg.Remote)
			return false
		}
		id, err := ParseAssignPayload(msg.Payload)
		if err != nil {
			slog.WarnContext(ctx, "failed to parse assign message", "err", err)
			return false
		}
		se.local.Store(uint64(id))
		slog.InfoContext(ctx, "participant assigned", "participantID", id)
		return true
	default:
		slog.WarnContext(ctx, "unknown control subtype", "subType", msg.Kind.SubType)
		return false
	}
}

// handleControlEvent は制御チャネルからのイベントを処理し接続の状態を更新する唯一の関数です。
func (se *SessionEndpoint) handleControlEvent(ctx context.Context, ev endpointEvent) {
	switch ev.kind {
	case evClose:
		if ev.err != nil {
			slog.InfoContext(ctx, "closing endpoint", "remote", se.cfg.Remote, "reason", ev.err)
		}
		se.close()
	case evPong:
		se.presence.TouchPong()
	case evReadError, evWriteError:
		slog.InfoContext(ctx, "connection lost", "remote", se.cfg.Remote, "event", ev.kind, "err", ev.err)
		se.close()
	default:
		slog.WarnContext(ctx, "unknown endpoint event kind", "kind", ev.kind)
	}
}

func (se *SessionEndpoint) sendCtrlEvent(ctx context.Context, ev endpointEvent) {
	select {
	case se.ctrlCh <- ev:
	case <-ctx.Done():
	}
}
