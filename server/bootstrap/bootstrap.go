package bootstrap

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"gallery/server/config"
)

// Decision は起動時に一度だけ決まるプロセスの役割です。
type Decision struct {
	Dedicated bool
	// Headless のときは音声と描画に関わる処理を無効にする
	Headless bool
	Audio    bool
	Graphics bool
	TickRate int
	// Remaining は無人起動の引数を取り除いた残りの引数
	Remaining []string
}

// interactiveTickRate は画面を持つ起動でのティックレートです。
const interactiveTickRate = 60

// headlessFlags は無人起動を示す引数です。大文字小文字は区別しません。
var headlessFlags = []string{"-server", "--server", "-batchmode", "-nographics"}

// Decide は起動引数と設定からプロセスの役割を決めます。
func Decide(args []string, cfg config.Config) Decision {
	dedicated := cfg.Headless
	remaining := make([]string, 0, len(args))
	for _, arg := range args {
		if isHeadlessFlag(arg) {
			dedicated = true
			continue
		}
		remaining = append(remaining, arg)
	}
	if !dedicated {
		return Decision{Audio: true, Graphics: true, TickRate: interactiveTickRate, Remaining: remaining}
	}
	return Decision{
		Dedicated: true,
		Headless:  true,
		TickRate:  cfg.TickRate,
		Remaining: remaining,
	}
}

func isHeadlessFlag(arg string) bool {
	return slices.ContainsFunc(headlessFlags, func(flag string) bool {
		return strings.EqualFold(arg, flag)
	})
}

// Server は専用サーバーとして待ち受けを開始できるセッションです。
type Server interface {
	StartServer(ctx context.Context, port int) error
}

// Run は専用サーバーと判定された場合にサーバーを開始します。
// 対話的な起動では何もせず false を返します。
func Run(ctx context.Context, d Decision, cfg config.Config, srv Server) (bool, error) {
	if !d.Dedicated {
		return false, nil
	}
	slog.InfoContext(ctx, "starting dedicated server",
		"port", cfg.Port,
		"tickRate", d.TickRate,
		"maxPlayers", cfg.MaxPlayers,
		"audio", d.Audio,
		"graphics", d.Graphics,
	)
	if err := srv.StartServer(ctx, cfg.Port); err != nil {
		slog.ErrorContext(ctx, "failed to start dedicated server", "port", cfg.Port, "err", err)
		return true, err
	}
	return true, nil
}
