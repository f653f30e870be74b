package gorilla

import (
	"net/http"
	"time"

	gwebsocket "github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultReadLimit        = 655350
)

type ConnOption func(*GorillaWebSocketConn)

// WithHandshakeTimeout 握手超时, 默认 10s
func WithHandshakeTimeout(d time.Duration) ConnOption {
	return func(c *GorillaWebSocketConn) {
		c.handshakeTimeout = d
	}
}

// WithReadLimit 单帧读取上限
func WithReadLimit(n int64) ConnOption {
	return func(c *GorillaWebSocketConn) {
		c.readLimit = n
	}
}

func NewGorillaWebSocketConn(opts ...ConnOption) *GorillaWebSocketConn {
	c := &GorillaWebSocketConn{
		handshakeTimeout: defaultHandshakeTimeout,
		readLimit:        defaultReadLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type GorillaWebSocketConn struct {
	conn             *gwebsocket.Conn
	handshakeTimeout time.Duration
	readLimit        int64
}

func (g *GorillaWebSocketConn) Dial(endpoint string, requestHeader http.Header) error {
	dialer := gwebsocket.Dialer{
		HandshakeTimeout: g.handshakeTimeout,
	}
	conn, _, err := dialer.Dial(endpoint, requestHeader)
	if err != nil {
		return err
	}
	conn.SetReadLimit(g.readLimit)
	g.conn = conn
	return nil
}

func (g *GorillaWebSocketConn) ReadMessage() (int, []byte, error) {
	return g.conn.ReadMessage()
}

func (g *GorillaWebSocketConn) WriteMessage(messageType int, data []byte) error {
	return g.conn.WriteMessage(messageType, data)
}

func (g *GorillaWebSocketConn) SetPingHandler(h func(appData string) error) {
	g.conn.SetPingHandler(h)
}

func (g *GorillaWebSocketConn) SetPongHandler(h func(appData string) error) {
	g.conn.SetPongHandler(h)
}

func (g *GorillaWebSocketConn) Close() error {
	return g.conn.Close()
}
