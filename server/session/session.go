package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"gallery/repository/save"
	"gallery/server"
	adapterwebsocket "gallery/server/adapter/websocket"
	"gallery/server/application"
	"gallery/server/config"
	"gallery/server/content"
	"gallery/server/domain"
	"gallery/server/handler"
)

var (
	ErrAlreadyRunning   = errors.New("session: already running")
	ErrNotRunning       = errors.New("session: not running")
	ErrNotListening     = errors.New("session: not accepting connections")
	ErrNotAuthenticated = errors.New("session: login required")
	ErrDisconnected     = errors.New("session: disconnected from server")
)

const (
	shutdownTimeout      = 10 * time.Second
	endpointCloseTimeout = time.Second
)

// Role はプロセスのネットワーク上の役割です。
type Role uint8

const (
	RoleNone Role = iota
	RoleOffline
	RoleHost
	RoleClient
	RoleServer
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleOffline:
		return "offline"
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	default:
		return "unknown"
	}
}

// OwnsScore はスコアの書き込み権を持つ役割かどうかを返します。
func (r Role) OwnsScore() bool {
	return r == RoleOffline || r == RoleHost || r == RoleServer
}

// Authenticator はホスト・クライアント開始前のログイン確認に使います。
type Authenticator interface {
	IsAuthenticated() bool
	Username() string
}

type Options struct {
	Config  config.Config
	Content *content.Content
	// Store が nil の場合はスコアを保存しない
	Store save.Store
	// Auth が nil の場合はホスト・クライアントを開始できない
	Auth Authenticator
	Rand *rand.Rand
}

// Session は1プロセスにつき1つのネットワークセッションです。
// 役割ごとの Room と Application を組み立て、終了時に破棄します。
type Session struct {
	opts Options

	mu        sync.Mutex
	role      Role
	room      *domain.Room
	game      *application.Game
	mirror    *application.Mirror
	view      *application.Mirror
	http      *server.Server
	endpoints map[domain.ParticipantID]*domain.SessionEndpoint
	cancel    context.CancelFunc
	eg        *errgroup.Group

	nextID    atomic.Uint64
	self      atomic.Uint64
	connected *latch
	lost      *latch

	// Health は HTTP ハンドラから呼ばれるため mu を取らずに読む
	healthRole   atomic.Uint32
	participants atomic.Int32
}

func New(opts Options) *Session {
	if opts.Content == nil {
		opts.Content = content.Default()
	}
	return &Session{
		opts:      opts,
		endpoints: make(map[domain.ParticipantID]*domain.SessionEndpoint),
	}
}

func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Addr は待ち受け中のアドレスを返します。
func (s *Session) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http == nil {
		return ""
	}
	return s.http.Addr()
}

// StartOffline はシングルプレイを開始します。
func (s *Session) StartOffline(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role != RoleNone {
		return ErrAlreadyRunning
	}
	room := domain.NewRoom(s.opts.Config.TickInterval())
	game := s.newGame(application.ModeOffline, room)
	room.SetApplication(game)
	if err := s.startLoop(ctx, RoleOffline, room, nil); err != nil {
		return err
	}
	s.game = game
	return s.open(ctx)
}

// StartHost は待ち受けを開始し、自身を参加者 0 として登録します。
func (s *Session) StartHost(ctx context.Context, addr string, port int) error {
	if !s.authenticated() {
		return ErrNotAuthenticated
	}
	if err := s.leaveOffline(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role != RoleNone {
		return ErrAlreadyRunning
	}

	room := domain.NewRoom(s.opts.Config.TickInterval())
	game := s.newGame(application.ModeHost, room)
	view := application.NewMirror(0, room, application.MirrorHooks{})
	room.SetApplication(game)
	room.SetLocal(localSender{view: view})

	srv, err := s.listen(net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	if err := s.startLoop(ctx, RoleHost, room, srv); err != nil {
		return err
	}
	s.game = game
	s.view = view
	return s.open(ctx)
}

// StartServer はローカル参加者を持たない専用サーバーとして待ち受けます。
func (s *Session) StartServer(ctx context.Context, port int) error {
	if err := s.leaveOffline(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role != RoleNone {
		return ErrAlreadyRunning
	}

	room := domain.NewRoom(s.opts.Config.TickInterval())
	game := s.newGame(application.ModeDedicated, room)
	room.SetApplication(game)

	srv, err := s.listen(s.opts.Config.ListenAddr(port))
	if err != nil {
		return err
	}
	if err := s.startLoop(ctx, RoleServer, room, srv); err != nil {
		return err
	}
	s.game = game
	return s.open(ctx)
}

// StartClient はサーバーへ接続します。Assign を受信するまでは接続待ちの状態です。
func (s *Session) StartClient(ctx context.Context, addr string, port int) error {
	if !s.authenticated() {
		return ErrNotAuthenticated
	}
	if err := s.leaveOffline(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role != RoleNone {
		return ErrAlreadyRunning
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.opts.Config.ConnectTimeout)
	defer cancel()
	url := fmt.Sprintf("ws://%s/ws", net.JoinHostPort(addr, strconv.Itoa(port)))
	transport, err := adapterwebsocket.Dial(dialCtx, url)
	if err != nil {
		slog.WarnContext(ctx, "failed to connect", "url", url, "err", err)
		return fmt.Errorf("dial %s: %w", url, err)
	}

	connected, lost := newLatch(), newLatch()
	s.connected, s.lost = connected, lost

	room := domain.NewRoom(s.opts.Config.TickInterval())
	mirror := application.NewMirror(s.opts.Content.PoolSize, room, application.MirrorHooks{
		OnConnected: func(_ context.Context, id domain.ParticipantID) {
			s.self.Store(uint64(id))
			connected.fire()
		},
		OnDisconnected: func(context.Context) {
			lost.fire()
		},
	})
	room.SetApplication(mirror)

	endpoint, err := domain.NewSessionEndpoint(domain.EndpointConfig{
		Remote:      domain.ServerParticipantID,
		IdleTimeout: s.opts.Config.IdleTimeout,
	}, domain.NewConnection(transport), room)
	if err != nil {
		_ = transport.Close(1000, "")
		return err
	}
	if err := s.startLoop(ctx, RoleClient, room, nil); err != nil {
		endpoint.ForceClose()
		return err
	}
	s.mirror = mirror
	s.endpoints[domain.ServerParticipantID] = endpoint

	if err := room.Join(ctx, domain.ServerParticipantID, endpoint); err != nil {
		endpoint.ForceClose()
		return err
	}
	s.eg.Go(func() error {
		err := endpoint.Run()
		_ = room.Leave(context.Background(), domain.ServerParticipantID)
		lost.fire()
		return err
	})
	slog.InfoContext(ctx, "connecting to server", "url", url)
	return nil
}

// Join はサーバーへ接続し、参加者IDが割り当てられるまで ConnectTimeout だけ待ちます。
// 割り当てが届かなければセッションを閉じるので、そのまま再試行できます。
func (s *Session) Join(ctx context.Context, addr string, port int) (domain.ParticipantID, error) {
	if err := s.StartClient(ctx, addr, port); err != nil {
		return 0, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.Config.ConnectTimeout)
	defer cancel()
	id, err := s.WaitConnected(waitCtx)
	if err != nil {
		if shutdownErr := s.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			slog.WarnContext(ctx, "failed to close unassigned client", "err", shutdownErr)
		}
		return 0, fmt.Errorf("wait assign: %w", err)
	}
	return id, nil
}

// WaitConnected はクライアントが参加者IDを割り当てられるまで待ちます。
func (s *Session) WaitConnected(ctx context.Context) (domain.ParticipantID, error) {
	s.mu.Lock()
	connected, lost := s.connected, s.lost
	s.mu.Unlock()
	if connected == nil {
		return 0, ErrNotRunning
	}
	select {
	case <-connected.done():
		return domain.ParticipantID(s.self.Load()), nil
	case <-lost.done():
		return 0, ErrDisconnected
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Disconnected はクライアントがサーバーとの接続を失うと close されます。
// クライアント以外では nil を返します。
func (s *Session) Disconnected() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lost == nil {
		return nil
	}
	return s.lost.done()
}

// Accept は受け入れた接続に参加者IDを割り当て、切断まで処理します。
// 接続は常に承認し、プレイヤーの生成は Game 側で行います。
func (s *Session) Accept(ctx context.Context, transport domain.Transport) error {
	s.mu.Lock()
	if s.role != RoleHost && s.role != RoleServer {
		s.mu.Unlock()
		return ErrNotListening
	}
	room := s.room
	id := domain.ParticipantID(s.nextID.Add(1))
	endpoint, err := domain.NewSessionEndpoint(domain.EndpointConfig{
		Remote:            id,
		Local:             domain.ServerParticipantID,
		Assign:            true,
		HeartbeatInterval: s.opts.Config.HeartbeatInterval,
		IdleTimeout:       s.opts.Config.IdleTimeout,
	}, domain.NewConnection(transport), room)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.endpoints[id] = endpoint
	n := s.participants.Add(1)
	// 接続は拒否しない
	if limit := s.opts.Config.MaxPlayers; limit > 0 && int(n) >= limit {
		slog.WarnContext(ctx, "participant count exceeds max players", "participants", n+1, "maxPlayers", limit)
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.endpoints[id] == endpoint {
			delete(s.endpoints, id)
			s.participants.Add(-1)
		}
		s.mu.Unlock()
	}()

	if err := room.Join(ctx, id, endpoint); err != nil {
		endpoint.ForceClose()
		return err
	}
	slog.InfoContext(ctx, "participant connected", "participantID", id, "connectionID", endpoint.ConnectionID())

	err = endpoint.Run()
	if leaveErr := room.Leave(context.WithoutCancel(ctx), id); leaveErr != nil && !errors.Is(leaveErr, domain.ErrRoomClosed) {
		slog.WarnContext(ctx, "failed to leave room", "participantID", id, "err", leaveErr)
	}
	slog.InfoContext(ctx, "participant disconnected", "participantID", id)
	return err
}

func (s *Session) Health() handler.HealthStatus {
	role := Role(s.healthRole.Load())
	n := int(s.participants.Load())
	if role == RoleHost || role == RoleOffline {
		n++
	}
	return handler.HealthStatus{Role: role.String(), Participants: n}
}

// StartGame はロビーを閉じてゲームを開始します。クライアントはサーバーへ要求を送るだけです。
func (s *Session) StartGame(ctx context.Context) error {
	return s.call(ctx, func(ctx context.Context, game *application.Game, mirror *application.Mirror) error {
		if mirror != nil {
			return mirror.RequestStart(ctx)
		}
		return game.StartGame(ctx, domain.ServerParticipantID)
	})
}

// Hit はローカルプレイヤーの命中を報告します。
func (s *Session) Hit(ctx context.Context, slot int) error {
	return s.call(ctx, func(ctx context.Context, game *application.Game, mirror *application.Mirror) error {
		if mirror != nil {
			return mirror.RequestHit(ctx, slot)
		}
		return game.ResolveHit(ctx, domain.ServerParticipantID, slot)
	})
}

// AddScore は得点を加算します。クライアントでは加算要求になります。
func (s *Session) AddScore(ctx context.Context, points int) error {
	return s.call(ctx, func(ctx context.Context, game *application.Game, mirror *application.Mirror) error {
		if mirror != nil {
			return mirror.AddScore(ctx, points)
		}
		return game.Ledger().Add(ctx, points)
	})
}

// Snapshot は表示用の状態です。
type Snapshot struct {
	Role         Role
	Self         domain.ParticipantID
	Score        int
	LobbyVisible bool
	Roster       []domain.ParticipantID
	Players      map[domain.ParticipantID]domain.Position
	Targets      []application.TargetSlot
	// Connected はループに参加中の接続です。クライアントではサーバー (0) のみです。
	Connected []domain.ParticipantID
}

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.role == RoleNone {
		s.mu.Unlock()
		return Snapshot{Role: RoleNone}, ErrNotRunning
	}
	snap := Snapshot{Role: s.role}
	room, game, mirror, view := s.room, s.game, s.mirror, s.view
	s.mu.Unlock()

	err := room.Do(ctx, func(context.Context) {
		snap.Connected = room.Members()
		if mirror != nil {
			snap.Self = mirror.Self()
			snap.Score = mirror.Score()
			snap.LobbyVisible = mirror.LobbyVisible()
			snap.Roster = mirror.Roster()
			snap.Players = mirror.Players()
			snap.Targets = mirror.ActiveSlots()
			return
		}
		snap.Score = game.Score()
		snap.Targets = game.Pool().ActiveSlots()
		snap.Players = make(map[domain.ParticipantID]domain.Position)
		for _, p := range game.Field().All() {
			snap.Players[p.Owner] = p.Position
		}
		if view != nil {
			snap.LobbyVisible = view.LobbyVisible()
			snap.Roster = view.Roster()
		}
	})
	return snap, err
}

// Shutdown はセッションを終了し、スコアを所有する役割では最終スコアを保存します。
// 何度呼んでも同じ状態になります。
func (s *Session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teardown(ctx)
}

func (s *Session) teardown(ctx context.Context) error {
	if s.role == RoleNone {
		return nil
	}
	role := s.role
	slog.InfoContext(ctx, "session shutting down", "role", role)

	var score int
	if game := s.game; game != nil {
		doCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		if err := s.room.Do(doCtx, func(context.Context) { score = game.Score() }); err != nil {
			slog.WarnContext(ctx, "failed to read final score", "err", err)
		}
		cancel()
	}

	closeCtx, cancelClose := context.WithTimeout(context.WithoutCancel(ctx), endpointCloseTimeout)
	for _, endpoint := range s.endpoints {
		endpoint.Close(closeCtx)
	}
	for id, endpoint := range s.endpoints {
		select {
		case <-endpoint.Done():
		case <-closeCtx.Done():
			endpoint.ForceClose()
		}
		delete(s.endpoints, id)
	}
	cancelClose()
	s.participants.Store(0)

	var errs []error
	if s.http != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(ctx, "graceful shutdown failed", "err", err)
			if err := s.http.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close http: %w", err))
			}
		}
		cancel()
	}

	s.cancel()
	if err := s.eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.WarnContext(ctx, "session goroutine ended with error", "err", err)
	}

	if s.game != nil {
		s.game.Close(ctx)
	}
	if role.OwnsScore() && s.opts.Store != nil {
		if err := s.saveScore(ctx, score); err != nil {
			errs = append(errs, err)
		}
	}

	s.setRole(RoleNone)
	s.room = nil
	s.game = nil
	s.mirror = nil
	s.view = nil
	s.http = nil
	s.cancel = nil
	s.eg = nil
	s.connected = nil
	s.lost = nil
	s.self.Store(0)
	slog.InfoContext(ctx, "session shutdown complete", "role", role)
	return errors.Join(errs...)
}

func (s *Session) saveScore(ctx context.Context, score int) error {
	username := ""
	if s.opts.Auth != nil {
		username = s.opts.Auth.Username()
	}
	record := save.NewRecord(score, username, time.Now())
	if err := s.opts.Store.Save(context.WithoutCancel(ctx), record); err != nil {
		return fmt.Errorf("save score: %w", err)
	}
	slog.InfoContext(ctx, "score saved", "score", score, "sessionID", record.SessionID)
	return nil
}

// leaveOffline はシングルプレイからマルチプレイへ切り替える前にシーン内のプレイヤーを片付けます。
func (s *Session) leaveOffline(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role != RoleOffline {
		return nil
	}
	game := s.game
	if err := s.room.Do(ctx, game.RemoveLocalPlayers); err != nil {
		return err
	}
	return s.teardown(ctx)
}

func (s *Session) authenticated() bool {
	return s.opts.Auth != nil && s.opts.Auth.IsAuthenticated()
}

func (s *Session) newGame(mode application.Mode, out domain.Outbox) *application.Game {
	return application.NewGame(application.GameConfig{
		Mode:       mode,
		Content:    s.opts.Content,
		SpawnDelay: s.opts.Config.SpawnDelay,
		Rand:       s.opts.Rand,
	}, out)
}

func (s *Session) listen(addr string) (*server.Server, error) {
	srv := server.NewServer(addr, server.Route(s))
	if err := srv.Listen(); err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return srv, nil
}

// startLoop は Room と (あれば) HTTP サーバーを起動します。s.mu を保持して呼び出します。
func (s *Session) startLoop(ctx context.Context, role Role, room *domain.Room, srv *server.Server) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	eg := &errgroup.Group{}
	eg.Go(func() error {
		return room.Run(runCtx)
	})
	if srv != nil {
		eg.Go(func() error {
			if err := srv.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.ErrorContext(runCtx, "http server error", "err", err)
				return err
			}
			return nil
		})
		slog.InfoContext(ctx, "server listening", "addr", srv.Addr(), "role", role)
	}

	s.setRole(role)
	s.room = room
	s.http = srv
	s.cancel = cancel
	s.eg = eg
	return nil
}

// open は Application をループ上で開始します。s.mu を保持して呼び出します。
func (s *Session) open(ctx context.Context) error {
	game := s.game
	err := s.room.Do(ctx, func(ctx context.Context) {
		game.Open(ctx, time.Now())
	})
	if err != nil {
		_ = s.teardown(ctx)
		return err
	}
	slog.InfoContext(ctx, "session started", "role", s.role)
	return nil
}

// call は fn を Room のループ上で実行します。
func (s *Session) call(ctx context.Context, fn func(context.Context, *application.Game, *application.Mirror) error) error {
	s.mu.Lock()
	if s.role == RoleNone {
		s.mu.Unlock()
		return ErrNotRunning
	}
	room, game, mirror := s.room, s.game, s.mirror
	s.mu.Unlock()

	var result error
	if err := room.Do(ctx, func(ctx context.Context) {
		result = fn(ctx, game, mirror)
	}); err != nil {
		return err
	}
	return result
}

// localSender はホスト自身 (参加者 0) 宛てのメッセージを手元の表示状態へ反映します。
type localSender struct {
	view *application.Mirror
}

func (l localSender) Send(ctx context.Context, data []byte) error {
	if err := l.view.HandleMessage(ctx, domain.ServerParticipantID, data); err != nil {
		slog.DebugContext(ctx, "local message ignored", "err", err)
	}
	return nil
}

func (s *Session) setRole(role Role) {
	s.role = role
	s.healthRole.Store(uint32(role))
}

// latch は一度だけ close されるチャネルです。
type latch struct {
	ch   chan struct{}
	once sync.Once
}

func newLatch() *latch { return &latch{ch: make(chan struct{})} }

func (l *latch) fire() { l.once.Do(func() { close(l.ch) }) }

func (l *latch) done() <-chan struct{} { return l.ch }
