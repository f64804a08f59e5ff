package api

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// wsTransport 通过 websocket 中继接收传感器数据流
// 每个 frame 是一段原始字节，不保证按行对齐
type wsTransport struct {
	conn      *websocket.Conn
	pending   []byte // 上一个 frame 中超出 maxBytes 的部分
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// DialWebsocket 连接中继
func DialWebsocket(ctx context.Context, wsURL string) (Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to WS %s", wsURL)
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) Send(p []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, p)
}

func (t *wsTransport) Receive(maxBytes int) ([]byte, error) {
	if len(t.pending) == 0 {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		t.pending = message
	}
	n := min(maxBytes, len(t.pending))
	chunk := t.pending[:n:n]
	t.pending = t.pending[n:]
	return chunk, nil
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() { t.closeErr = t.conn.Close() })
	return t.closeErr
}
