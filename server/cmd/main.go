package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gallery/repository/save"
	"gallery/repository/save/memory"
	"gallery/repository/save/sqlite"
	"gallery/server/auth"
	"gallery/server/bootstrap"
	"gallery/server/config"
	"gallery/server/content"
	"gallery/server/session"
	"gallery/server/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	decision := bootstrap.Decide(os.Args[1:], cfg)
	cfg.TickRate = decision.TickRate

	fs := flag.NewFlagSet("gallery", flag.ContinueOnError)
	host := fs.Bool("host", false, "host a LAN game")
	connect := fs.String("connect", "", "join a LAN game at this address")
	port := fs.Int("port", cfg.Port, "listen or connect port")
	user := fs.String("user", "", "login username")
	password := fs.String("password", "", "login password")
	if err := fs.Parse(decision.Remaining); err != nil {
		return err
	}
	cfg.Port = *port

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	shutdownLogging, err := telemetry.SetupLogging(ctx, os.Stderr, level, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownLogging(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "log shutdown: %v\n", err)
		}
	}()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("trace shutdown failed", "err", err)
		}
	}()

	gameContent, err := loadContent(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg.SavePath)
	if err != nil {
		return err
	}
	defer store.Close()
	if best, err := store.HighScore(ctx); err == nil {
		slog.InfoContext(ctx, "high score loaded", "score", best)
	}

	authenticator, err := auth.New(cfg.AuthSecret, cfg.AuthTTL)
	if err != nil {
		return err
	}
	if *user != "" {
		if _, err := authenticator.Login(*user, *password); err != nil {
			slog.WarnContext(ctx, "login failed", "err", err)
		}
	}

	sess := session.New(session.Options{
		Config:  cfg,
		Content: gameContent,
		Store:   store,
		Auth:    authenticator,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sess.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "session shutdown failed", "err", err)
		}
		slog.InfoContext(shutdownCtx, "shutdown complete")
	}()

	started, err := bootstrap.Run(ctx, decision, cfg, sess)
	if err != nil {
		return err
	}
	if started {
		<-ctx.Done()
		slog.InfoContext(ctx, "shutdown initiated")
		return nil
	}

	switch {
	case *host:
		err = sess.StartHost(ctx, cfg.Addr, cfg.Port)
	case *connect != "":
		err = joinGame(ctx, sess, *connect, cfg.Port)
	default:
		err = sess.StartOffline(ctx)
	}
	if err != nil {
		// 開始に失敗してもプロセスは残し、コマンドから再試行できるようにする
		slog.ErrorContext(ctx, "failed to start session", "err", err)
	}

	return commandLoop(ctx, sess, authenticator, cfg)
}

func loadContent(cfg config.Config) (*content.Content, error) {
	c := content.Default()
	if cfg.ContentPath != "" {
		loaded, err := content.Load(cfg.ContentPath)
		if err != nil {
			return nil, fmt.Errorf("load content: %w", err)
		}
		c = loaded
	}
	mod, err := content.LoadMod(cfg.ModPath)
	if err != nil {
		slog.Warn("mod config unavailable", "path", cfg.ModPath, "err", err)
		return c, nil
	}
	return c.ApplyMod(mod), nil
}

func openStore(path string) (save.Store, error) {
	if path == "" {
		return memory.NewStore(), nil
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open save store: %w", err)
	}
	return store, nil
}

func joinGame(ctx context.Context, sess *session.Session, addr string, port int) error {
	id, err := sess.Join(ctx, addr, port)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "joined game", "participantID", id)
	return nil
}

// commandLoop は標準入力のコマンドでセッションを操作します。
func commandLoop(ctx context.Context, sess *session.Session, authenticator *auth.Authenticator, cfg config.Config) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "shutdown initiated")
			return nil
		case <-sess.Disconnected():
			slog.WarnContext(ctx, "disconnected from server")
			if err := sess.Shutdown(ctx); err != nil {
				slog.WarnContext(ctx, "session shutdown failed", "err", err)
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleCommand(ctx, sess, authenticator, cfg, strings.Fields(line)); quit {
				return nil
			}
		}
	}
}

func handleCommand(ctx context.Context, sess *session.Session, authenticator *auth.Authenticator, cfg config.Config, args []string) bool {
	if len(args) == 0 {
		return false
	}
	var err error
	switch strings.ToLower(args[0]) {
	case "quit", "exit":
		return true
	case "login":
		if len(args) != 3 {
			err = errors.New("usage: login <user> <password>")
			break
		}
		_, err = authenticator.Login(args[1], args[2])
	case "offline":
		err = sess.StartOffline(ctx)
	case "host":
		err = sess.StartHost(ctx, cfg.Addr, cfg.Port)
	case "join":
		if len(args) < 2 {
			err = errors.New("usage: join <addr> [port]")
			break
		}
		port := cfg.Port
		if len(args) > 2 {
			if port, err = strconv.Atoi(args[2]); err != nil {
				break
			}
		}
		err = joinGame(ctx, sess, args[1], port)
	case "start":
		err = sess.StartGame(ctx)
	case "hit":
		if len(args) != 2 {
			err = errors.New("usage: hit <slot>")
			break
		}
		var slot int
		if slot, err = strconv.Atoi(args[1]); err != nil {
			break
		}
		err = sess.Hit(ctx, slot)
	case "leave":
		err = sess.Shutdown(ctx)
	case "status":
		var snap session.Snapshot
		if snap, err = sess.Snapshot(ctx); err != nil {
			break
		}
		fmt.Printf("role=%s self=%d score=%d lobby=%v roster=%v\n", snap.Role, snap.Self, snap.Score, snap.LobbyVisible, snap.Roster)
		for _, t := range snap.Targets {
			fmt.Printf("  target slot=%d type=%d at (%.1f, %.1f, %.1f)\n", t.Index, t.TypeIndex, t.Position.X, t.Position.Y, t.Position.Z)
		}
	default:
		err = fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		slog.WarnContext(ctx, "command failed", "command", args[0], "err", err)
	}
	return false
}
