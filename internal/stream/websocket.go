package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vmunix/reeldl/internal/transport"
)

// WebSocketDialer connects to /ws/events/:id. Each text message carries one
// event payload in the same JSON shape as the SSE stream.
type WebSocketDialer struct {
	baseURL string
	dialer  *websocket.Dialer
}

// NewWebSocketDialer creates a dialer from an http(s) or ws(s) base URL.
func NewWebSocketDialer(baseURL string) *WebSocketDialer {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return &WebSocketDialer{
		baseURL: base,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
		},
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, jobID string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.baseURL+"/ws/events/"+url.PathEscape(jobID), nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, transport.NewStatusError(resp.StatusCode, "", nil)
		}
		return nil, transport.NewNetworkError("connect event socket", err)
	}
	_ = resp.Body.Close()
	conn.SetReadLimit(maxEventBytes)

	c := &wsConn{conn: conn}
	// A blocked ReadMessage only returns once the socket is closed.
	c.stop = context.AfterFunc(ctx, func() { _ = conn.Close() })
	return c, nil
}

type wsConn struct {
	conn *websocket.Conn
	stop func() bool
}

func (c *wsConn) Next(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrStreamEnded
			}
			return nil, fmt.Errorf("read event socket: %w", err)
		}
		if typ == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	c.stop()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	// The socket may already be closed by the context hook.
	_ = c.conn.Close()
	return nil
}
