package server

import (
	"net/http"

	"gallery/server/handler"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Session は HTTP 層から見たトランスポートセッションです。
type Session interface {
	handler.Acceptor
	handler.HealthReporter
}

func Route(session Session) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", handler.NewAcceptHandler(session))
	mux.Handle("/healthz", handler.NewHealthHandler(session))
	return otelhttp.NewHandler(mux, "gallery",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
