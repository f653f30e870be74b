package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"

	"github.com/go-gotop/deltex/websocket"
	"github.com/go-gotop/deltex/websocket/gorilla"
	"github.com/go-gotop/deltex/wsmanager"
)

var (
	ErrInvalidState = errors.New("connection manager in invalid state for this operation")
	ErrFaulted      = errors.New("connection manager faulted, reset required")
	ErrLimitExceed  = errors.New("websocket request too frequent, please try again later")
	ErrNotConnected = errors.New("websocket not connected")
)

var _ wsmanager.ConnectionManager = (*Manager)(nil)

type Manager struct {
	config *connConfig

	state         atomic.Int32
	epoch         atomic.Uint64
	reconnecting  atomic.Bool
	attempts      atomic.Uint64
	reconnections atomic.Uint64
	errCount      atomic.Uint64
	lastMessageAt atomic.Int64

	mux       sync.Mutex // 保护 ws 与 runCtx
	ws        websocket.Websocket
	runCtx    context.Context
	runCancel context.CancelFunc
}

func NewManager(opts ...ConnConfig) *Manager {
	config := &connConfig{
		logger:               log.NewHelper(log.DefaultLogger),
		heartbeatInterval:    30 * time.Second,
		staleThreshold:       60 * time.Second,
		reconnectDelay:       5 * time.Second,
		maxReconnectAttempts: 10,
		autoReconnect:        true,
		handshakeTimeout:     10 * time.Second,
	}

	for _, opt := range opts {
		opt(config)
	}

	if config.connFactory == nil {
		config.connFactory = func() websocket.WebSocketConn {
			return gorilla.NewGorillaWebSocketConn(gorilla.WithHandshakeTimeout(config.handshakeTimeout))
		}
	}

	m := &Manager{
		config: config,
	}
	m.state.Store(int32(wsmanager.Disconnected))
	return m
}

func (m *Manager) Connect(ctx context.Context) error {
	cur := m.State()
	if cur == wsmanager.Connected {
		// 已连接时幂等
		return nil
	}
	if cur == wsmanager.Faulted {
		return ErrFaulted
	}
	if !m.state.CompareAndSwap(int32(wsmanager.Disconnected), int32(wsmanager.Connecting)) {
		return ErrInvalidState
	}

	if m.config.connLimiter != nil && !m.config.connLimiter.WsAllow() {
		m.state.Store(int32(wsmanager.Disconnected))
		return ErrLimitExceed
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	m.mux.Lock()
	m.runCtx = runCtx
	m.runCancel = runCancel
	m.mux.Unlock()

	m.attempts.Add(1)
	if err := m.establish(ctx); err != nil {
		// 建连或鉴权失败进入 FAULTED, 需 Reset 后重试
		m.errCount.Add(1)
		m.state.Store(int32(wsmanager.Faulted))
		runCancel()
		return err
	}

	// 恢复回调完成前不对外宣告 CONNECTED
	if m.config.onEstablished != nil {
		if err := m.config.onEstablished(ctx, false); err != nil {
			m.errCount.Add(1)
			m.state.Store(int32(wsmanager.Faulted))
			m.Disconnect()
			return err
		}
	}
	m.state.Store(int32(wsmanager.Connected))

	go m.healthLoop(runCtx)
	return nil
}

// establish 建立一条新的底层连接并推进纪元。
// 由 Connect 与重连循环串行调用, 不存在并发建连。
func (m *Manager) establish(ctx context.Context) error {
	conn := m.config.connFactory()

	pingh := func(appData string) error {
		return nil
	}
	pongh := func(appData string) error {
		return nil
	}
	if m.config.pingHandler != nil {
		pingh = func(appData string) error {
			return m.config.pingHandler(appData, conn)
		}
	}
	if m.config.pongHandler != nil {
		pongh = func(appData string) error {
			return m.config.pongHandler(appData, conn)
		}
	}

	ws := gorilla.NewGorillaWebsocket(conn, &websocket.WebsocketConfig{
		PingHandler: pingh,
		PongHandler: pongh,
	})

	// 本周期的纪元, 成功后生效。旧周期读到的消息直接丢弃。
	e := m.epoch.Load() + 1

	req := &websocket.WebsocketRequest{
		Endpoint: m.config.endpoint,
		ID:       uuid.NewString(),
		MessageHandler: func(message []byte) error {
			if m.epoch.Load() != e {
				return nil
			}
			m.lastMessageAt.Store(time.Now().UnixNano())
			if m.config.onMessage != nil {
				m.config.onMessage(e, message)
			}
			return nil
		},
		ErrorHandler: func(id string, err error) {
			if m.epoch.Load() != e {
				return
			}
			m.config.logger.Warnf("websocket %s read error: %v", id, err)
			m.SignalReconnect()
		},
	}

	if err := ws.Connect(req); err != nil {
		return err
	}

	if m.config.authenticator != nil {
		m.state.Store(int32(wsmanager.Authenticating))
		if err := m.config.authenticator(ctx, ws); err != nil {
			ws.Disconnect()
			return err
		}
	}

	m.mux.Lock()
	m.ws = ws
	m.mux.Unlock()
	m.epoch.Store(e)
	m.lastMessageAt.Store(time.Now().UnixNano())
	return nil
}

func (m *Manager) Disconnect() error {
	m.mux.Lock()
	if m.runCancel != nil {
		m.runCancel()
		m.runCancel = nil
	}
	ws := m.ws
	m.ws = nil
	m.mux.Unlock()

	var err error
	if ws != nil {
		err = ws.Disconnect()
	}
	// 推进纪元, 在途消息作废
	m.epoch.Add(1)

	// FAULTED 只能通过 Reset 退出
	if m.State() != wsmanager.Faulted {
		m.state.Store(int32(wsmanager.Disconnected))
	}
	return err
}

func (m *Manager) Reset() error {
	cur := m.State()
	if cur != wsmanager.Disconnected && cur != wsmanager.Faulted {
		return ErrInvalidState
	}
	m.attempts.Store(0)
	m.reconnections.Store(0)
	m.errCount.Store(0)
	m.state.Store(int32(wsmanager.Disconnected))
	return nil
}

func (m *Manager) State() wsmanager.ConnectionState {
	return wsmanager.ConnectionState(m.state.Load())
}

func (m *Manager) IsConnected() bool {
	return m.State() == wsmanager.Connected
}

func (m *Manager) Epoch() uint64 {
	return m.epoch.Load()
}

func (m *Manager) WriteMessage(messageType int, data []byte) error {
	m.mux.Lock()
	ws := m.ws
	m.mux.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	return ws.WriteMessage(messageType, data)
}

// SignalReconnect 单飞: 已有重连在途时为空操作。
// 未开启自动重连时直接断开, 不进入 RECONNECTING。
func (m *Manager) SignalReconnect() {
	if !m.config.autoReconnect {
		m.config.logger.Warnf("reconnect requested but auto-reconnect disabled, dropping connection")
		// 可能由读协程触发, 异步断开避免等待自身退出
		go m.Disconnect()
		return
	}
	if !m.reconnecting.CompareAndSwap(false, true) {
		return
	}
	cur := m.State()
	if cur == wsmanager.Disconnected || cur == wsmanager.Faulted {
		m.reconnecting.Store(false)
		return
	}

	m.mux.Lock()
	runCtx := m.runCtx
	m.mux.Unlock()
	if runCtx == nil {
		m.reconnecting.Store(false)
		return
	}

	go m.reconnectLoop(runCtx)
}

func (m *Manager) reconnectLoop(ctx context.Context) {
	defer m.reconnecting.Store(false)

	m.state.Store(int32(wsmanager.Reconnecting))

	m.mux.Lock()
	ws := m.ws
	m.ws = nil
	m.mux.Unlock()
	if ws != nil {
		ws.Disconnect()
	}

	for attempt := 1; m.config.maxReconnectAttempts <= 0 || attempt <= m.config.maxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.config.reconnectDelay):
		}

		if m.config.connLimiter != nil && !m.config.connLimiter.WsAllow() {
			m.config.logger.Warnf("reconnect attempt %d throttled by connection limiter", attempt)
			continue
		}

		m.attempts.Add(1)
		if err := m.establish(ctx); err != nil {
			m.errCount.Add(1)
			m.config.logger.Warnf("reconnect attempt %d failed: %v", attempt, err)
			continue
		}

		// 先回放订阅与对账, 再对外宣告 CONNECTED
		if m.config.onEstablished != nil {
			if err := m.config.onEstablished(ctx, true); err != nil {
				m.errCount.Add(1)
				m.config.logger.Errorf("post-reconnect restore failed: %v", err)
			}
		}
		m.state.Store(int32(wsmanager.Connected))
		m.reconnections.Add(1)
		m.config.logger.Infof("reconnected after %d attempt(s), epoch %d", attempt, m.epoch.Load())
		return
	}

	m.config.logger.Errorf("reconnect attempts exhausted, connection faulted")
	m.state.Store(int32(wsmanager.Faulted))
}

func (m *Manager) Stats() wsmanager.Stats {
	return wsmanager.Stats{
		ConnectionAttempts: m.attempts.Load(),
		Reconnections:      m.reconnections.Load(),
		Errors:             m.errCount.Load(),
	}
}

// healthLoop 周期性发送 ping 并检查消息新鲜度。
// 检查失败只发出重连信号, 不自行重试。
func (m *Manager) healthLoop(ctx context.Context) {
	if m.config.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.config.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.State() != wsmanager.Connected {
				continue
			}
			if err := m.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.config.logger.Warnf("health check ping failed: %v", err)
				m.SignalReconnect()
				continue
			}
			if m.config.staleThreshold > 0 {
				last := time.Unix(0, m.lastMessageAt.Load())
				if time.Since(last) > m.config.staleThreshold {
					m.config.logger.Warnf("no message within %s, requesting reconnect", m.config.staleThreshold)
					m.SignalReconnect()
				}
			}
		}
	}
}
