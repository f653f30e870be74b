package manager

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/go-gotop/deltex/limiter"
	"github.com/go-gotop/deltex/websocket"
)

type ConnConfig func(*connConfig)

type connConfig struct {
	logger   *log.Helper // 日志记录器
	endpoint string      // websocket 服务器地址

	heartbeatInterval    time.Duration   // 心跳间隔
	staleThreshold       time.Duration   // 超过该时长无消息视为连接僵死
	reconnectDelay       time.Duration   // 重连前等待
	maxReconnectAttempts int             // 最大重连次数, 超过进入 FAULTED
	autoReconnect        bool            // 关闭后连接失效只断开不重连
	handshakeTimeout     time.Duration   // websocket 握手超时
	connLimiter          limiter.Limiter // 连接限流器

	// connFactory 每个连接周期创建一条新的底层连接
	connFactory func() websocket.WebSocketConn

	// authenticator 非空时在 CONNECTING 与 CONNECTED 之间执行鉴权
	authenticator func(ctx context.Context, ws websocket.Websocket) error

	// onEstablished 连接就绪后回调, reconnected 标识是否为重连周期
	onEstablished func(ctx context.Context, reconnected bool) error

	// onMessage 消息回调, 携带读取时的连接纪元
	onMessage func(epoch uint64, message []byte)

	pingHandler func(appData string, conn websocket.WebSocketConn) error
	pongHandler func(appData string, conn websocket.WebSocketConn) error
}

func WithLogger(logger log.Logger) ConnConfig {
	return func(c *connConfig) {
		c.logger = log.NewHelper(logger)
	}
}

func WithEndpoint(endpoint string) ConnConfig {
	return func(c *connConfig) {
		c.endpoint = endpoint
	}
}

func WithHeartbeatInterval(d time.Duration) ConnConfig {
	return func(c *connConfig) {
		c.heartbeatInterval = d
	}
}

func WithStaleThreshold(d time.Duration) ConnConfig {
	return func(c *connConfig) {
		c.staleThreshold = d
	}
}

func WithReconnectDelay(d time.Duration) ConnConfig {
	return func(c *connConfig) {
		c.reconnectDelay = d
	}
}

func WithMaxReconnectAttempts(n int) ConnConfig {
	return func(c *connConfig) {
		c.maxReconnectAttempts = n
	}
}

func WithAutoReconnect(enabled bool) ConnConfig {
	return func(c *connConfig) {
		c.autoReconnect = enabled
	}
}

func WithHandshakeTimeout(d time.Duration) ConnConfig {
	return func(c *connConfig) {
		c.handshakeTimeout = d
	}
}

func WithConnLimiter(connLimiter limiter.Limiter) ConnConfig {
	return func(c *connConfig) {
		c.connLimiter = connLimiter
	}
}

func WithConnFactory(f func() websocket.WebSocketConn) ConnConfig {
	return func(c *connConfig) {
		c.connFactory = f
	}
}

func WithAuthenticator(f func(ctx context.Context, ws websocket.Websocket) error) ConnConfig {
	return func(c *connConfig) {
		c.authenticator = f
	}
}

func WithOnEstablished(f func(ctx context.Context, reconnected bool) error) ConnConfig {
	return func(c *connConfig) {
		c.onEstablished = f
	}
}

func WithOnMessage(f func(epoch uint64, message []byte)) ConnConfig {
	return func(c *connConfig) {
		c.onMessage = f
	}
}

func WithPingHandler(f func(appData string, conn websocket.WebSocketConn) error) ConnConfig {
	return func(c *connConfig) {
		c.pingHandler = f
	}
}

func WithPongHandler(f func(appData string, conn websocket.WebSocketConn) error) ConnConfig {
	return func(c *connConfig) {
		c.pongHandler = f
	}
}
