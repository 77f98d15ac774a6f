package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gallery/server/application"
	"gallery/server/auth"
	"gallery/server/config"
	"gallery/server/domain"
	"gallery/server/session"
	"gallery/server/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}
	addr := flag.String("connect", "localhost", "server address")
	port := flag.Int("port", cfg.Port, "server port")
	botCount := flag.Int("count", 3, "number of bots")
	flag.Parse()

	level, _ := cfg.SlogLevel()
	shutdownLogging, err := telemetry.SetupLogging(ctx, os.Stdout, level, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to set up logging", "err", err)
		os.Exit(1)
	}
	defer shutdownLogging(context.Background())

	slog.Info("starting bots", "count", *botCount, "server", fmt.Sprintf("%s:%d", *addr, *port))

	var wg sync.WaitGroup
	for i := range *botCount {
		wg.Go(func() {
			runBot(ctx, cfg, *addr, *port, i)
		})
	}

	wg.Wait()
	slog.Info("all bots stopped")
}

func runBot(ctx context.Context, cfg config.Config, addr string, port, id int) {
	logger := slog.With("botID", id)

	for {
		if ctx.Err() != nil {
			return
		}
		err := botSession(ctx, cfg, addr, port, id, logger)
		if err != nil && ctx.Err() == nil {
			logger.Warn("bot session ended, reconnecting", "err", err)
			time.Sleep(2 * time.Second)
		}
	}
}

func botSession(ctx context.Context, cfg config.Config, addr string, port, id int, logger *slog.Logger) error {
	authenticator, err := auth.New(cfg.AuthSecret, cfg.AuthTTL)
	if err != nil {
		return err
	}
	if _, err := authenticator.Login(fmt.Sprintf("bot-%d", id), "botpass"); err != nil {
		return err
	}

	sess := session.New(session.Options{Config: cfg, Auth: authenticator})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sess.Shutdown(shutdownCtx)
	}()

	self, err := sess.Join(ctx, addr, port)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	logger.Info("connected", "participantID", self)

	controller := application.NewRuleBotController(rand.New(rand.NewPCG(rand.Uint64(), uint64(id))))
	return drive(ctx, sess, self, controller, cfg.TickInterval(), logger)
}

// drive は接続中のセッションをコントローラーの判断で操作し続けます。
func drive(ctx context.Context, sess *session.Session, self domain.ParticipantID, controller application.BotController, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Disconnected():
			return session.ErrDisconnected
		case <-ticker.C:
			snap, err := sess.Snapshot(ctx)
			if err != nil {
				return err
			}
			pos, ok := snap.Players[self]
			if !ok {
				continue
			}
			action := controller.Decide(pos, snap.Targets)
			if !action.Shoot {
				continue
			}
			if err := sess.Hit(ctx, action.Slot); err != nil {
				logger.Warn("hit failed", "slot", action.Slot, "err", err)
			}
		}
	}
}
