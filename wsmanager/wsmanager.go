package wsmanager

import (
	"context"
)

// ConnectionState 连接生命周期状态
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Authenticating
	Connected
	Reconnecting
	Faulted
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Authenticating:
		return "AUTHENTICATING"
	case Connected:
		return "CONNECTED"
	case Reconnecting:
		return "RECONNECTING"
	case Faulted:
		return "FAULTED"
	}
	return "UNKNOWN"
}

// Stats 连接计数快照
type Stats struct {
	ConnectionAttempts uint64
	Reconnections      uint64
	Errors             uint64
}

// ConnectionManager 管理一条逻辑连接的完整生命周期:
// 建连、鉴权、健康检查、断线重连与纪元推进。
type ConnectionManager interface {
	// Connect 建立连接。已连接时幂等返回 nil,
	// 初次建连失败直接返回错误, 不触发自动重试。
	Connect(ctx context.Context) error

	// Disconnect 主动断开, 取消在途重连, 任意状态下可调用且幂等。
	Disconnect() error

	// Reset 清零计数, 是离开 FAULTED 的唯一途径。仅断开状态下有效。
	Reset() error

	State() ConnectionState

	IsConnected() bool

	// Epoch 连接纪元, 每次成功建连(含重连)后递增。
	// 旧纪元读取的消息会被丢弃。
	Epoch() uint64

	// WriteMessage 向当前连接写入一帧
	WriteMessage(messageType int, data []byte) error

	// SignalReconnect 请求一次重连。重连已在进行时为空操作。
	SignalReconnect()

	Stats() Stats
}
