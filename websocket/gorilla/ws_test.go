package gorilla

import (
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-gotop/deltex/websocket"
)

// fakeConn 用读队列模拟服务端推送
type fakeConn struct {
	mux      sync.Mutex
	dialErr  error
	inbound  chan []byte
	written  [][]byte
	closed   bool
	closeCh  chan struct{}
	closeOne sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closeCh: make(chan struct{}),
	}
}

func (f *fakeConn) Dial(endpoint string, requestHeader http.Header) error {
	return f.dialErr
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-f.inbound:
		return websocket.TextMessage, msg, nil
	case <-f.closeCh:
		return 0, nil, io.ErrUnexpectedEOF
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) SetPingHandler(h func(appData string) error) {}
func (f *fakeConn) SetPongHandler(h func(appData string) error) {}

func (f *fakeConn) Close() error {
	f.mux.Lock()
	f.closed = true
	f.mux.Unlock()
	f.closeOne.Do(func() { close(f.closeCh) })
	return nil
}

func TestConnectAndReceive(t *testing.T) {
	conn := newFakeConn()
	ws := NewGorillaWebsocket(conn, &websocket.WebsocketConfig{})

	received := make(chan []byte, 1)
	err := ws.Connect(&websocket.WebsocketRequest{
		Endpoint: "wss://test",
		ID:       "test",
		MessageHandler: func(message []byte) error {
			received <- message
			return nil
		},
	})
	require.NoError(t, err)
	assert.True(t, ws.IsConnected())

	conn.inbound <- []byte(`{"type":"v2/ticker"}`)
	select {
	case msg := <-received:
		assert.Equal(t, `{"type":"v2/ticker"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	require.NoError(t, ws.Disconnect())
	assert.False(t, ws.IsConnected())
}

func TestDisconnectIdempotent(t *testing.T) {
	conn := newFakeConn()
	ws := NewGorillaWebsocket(conn, &websocket.WebsocketConfig{})

	require.NoError(t, ws.Connect(&websocket.WebsocketRequest{
		Endpoint:       "wss://test",
		ID:             "test",
		MessageHandler: func([]byte) error { return nil },
	}))

	require.NoError(t, ws.Disconnect())
	// 重复断开不报错不阻塞
	require.NoError(t, ws.Disconnect())
}

// 从未连接过的实例断开也不能阻塞
func TestDisconnectBeforeConnect(t *testing.T) {
	conn := newFakeConn()
	ws := NewGorillaWebsocket(conn, &websocket.WebsocketConfig{})

	done := make(chan struct{})
	go func() {
		ws.Disconnect()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disconnect blocked")
	}
}

func TestReadErrorInvokesErrorHandler(t *testing.T) {
	conn := newFakeConn()
	ws := NewGorillaWebsocket(conn, &websocket.WebsocketConfig{})

	errCh := make(chan error, 1)
	require.NoError(t, ws.Connect(&websocket.WebsocketRequest{
		Endpoint:       "wss://test",
		ID:             "test",
		MessageHandler: func([]byte) error { return nil },
		ErrorHandler: func(id string, err error) {
			errCh <- err
		},
	}))

	// 直接关闭底层连接, 读协程报错
	conn.closeOne.Do(func() { close(conn.closeCh) })

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("error handler not invoked")
	}
	assert.False(t, ws.IsConnected())
}
