package server

import (
	"context"
	"net"
	"net/http"
)

type Server struct {
	HTTP     *http.Server
	listener net.Listener
}

func NewServer(addr string, handler http.Handler) *Server {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	return &Server{
		HTTP: httpServer,
	}
}

// Listen はポートを確保します。ここでの失敗は呼び出し元へ同期的に返されます。
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.HTTP.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Serve は Listen 済みのリスナーで待ち受けます。
func (s *Server) Serve() error                       { return s.HTTP.Serve(s.listener) }
func (s *Server) Shutdown(ctx context.Context) error { return s.HTTP.Shutdown(ctx) }
func (s *Server) Close() error                       { return s.HTTP.Close() }

// Addr は実際に確保したアドレスを返します。
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.HTTP.Addr
}
