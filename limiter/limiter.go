package limiter

import "context"

type LimitType string

const (
	CreateOrderLimit   LimitType = "CREATE_ORDER"   // 创建订单
	UpdateOrderLimit   LimitType = "UPDATE_ORDER"   // 更新订单
	CancelOrderLimit   LimitType = "CANCEL_ORDER"   // 取消订单
	SearchOrderLimit   LimitType = "SEARCH_ORDER"   // 查询订单
	NormalRequestLimit LimitType = "NORMAL_REQUEST" // 普通请求
)

// Limiter 固定窗口限流。Acquire 在窗口额度耗尽时阻塞到下一个窗口开始,
// ctx 取消则提前返回 ctx.Err()。
type Limiter interface {
	Acquire(ctx context.Context) error
	// WsAllow websocket 连接频率限制
	WsAllow() bool
}
