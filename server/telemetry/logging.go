package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "gallery"

// Shutdown はログ出力をフラッシュして終了します。
type Shutdown func(ctx context.Context) error

// SetupLogging は既定の slog ロガーを設定します。
// endpoint が空でなければ OTLP/gRPC へのエクスポートも有効にします。
func SetupLogging(ctx context.Context, w io.Writer, level slog.Level, endpoint string) (Shutdown, error) {
	console := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	if endpoint == "" {
		slog.SetDefault(slog.New(console))
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlploggrpc.New(ctx,
		otlploggrpc.WithEndpoint(endpoint),
		otlploggrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp log exporter: %w", err)
	}
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	otel := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))

	slog.SetDefault(slog.New(slog.NewMultiHandler(console, otel)))
	slog.InfoContext(ctx, "otlp log export enabled", "endpoint", endpoint)
	return provider.Shutdown, nil
}
