package adapterwebsocket

import (
	"context"
	"errors"
	"math"

	"gallery/server/domain"

	"github.com/coder/websocket"
)

// maxFrameSize はヘッダーと最大長ペイロードを合わせたフレームの上限です。
const maxFrameSize = domain.HeaderSize + math.MaxUint16

var ErrTextFrame = errors.New("websocket: text frames are not part of the protocol")

type wsTransport struct {
	conn *websocket.Conn
}

func NewTransportFrom(conn *websocket.Conn) domain.Transport {
	conn.SetReadLimit(maxFrameSize)
	return &wsTransport{conn: conn}
}

// Dial はサーバーへ接続して Transport を返します。
func Dial(ctx context.Context, url string) (domain.Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewTransportFrom(conn), nil
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageBinary {
		_ = t.conn.Close(websocket.StatusUnsupportedData, "binary frames only")
		return nil, ErrTextFrame
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageBinary, data)
}

func (t *wsTransport) Close(code int32, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}
