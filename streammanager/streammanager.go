package streammanager

import (
	"context"

	"github.com/go-gotop/deltex/exchange"
	"github.com/go-gotop/deltex/wsmanager"
)

// Stats 执行客户端计数快照
type Stats struct {
	MessagesReceived   uint64
	MessagesProcessed  uint64
	ConnectionAttempts uint64
	Reconnections      uint64
	Errors             uint64
	Subscriptions      uint64
	Unsubscriptions    uint64

	OrdersSubmitted uint64
	OrdersModified  uint64
	OrdersCancelled uint64
	OrdersFilled    uint64
	OrdersRejected  uint64
	PositionsOpened uint64
	PositionsClosed uint64
	APICalls        uint64
}

// ReconcileReport 对账结果。三段抓取相互独立, 单段失败不影响其余。
type ReconcileReport struct {
	// SyncedOrders 与本地状态对齐的订单数
	SyncedOrders int
	// ExternalOrders 交易所存在但本地未知的订单号
	ExternalOrders []string
	// CorrectedPositions 按交易所数据修正过的交易对
	CorrectedPositions []string
	Balances           []exchange.Balance

	OrdersErr    error
	PositionsErr error
	BalancesErr  error
}

// StreamManager 私有流执行客户端: 订单生命周期、持仓跟踪与对账
type StreamManager interface {
	Name() string

	Connect(ctx context.Context) error
	Disconnect() error
	Reset() error
	State() wsmanager.ConnectionState

	SubmitOrder(ctx context.Context, req *exchange.CreateOrderRequest) (*exchange.CreateOrderResponse, error)
	// BatchSubmitOrders 单请求提交同一标的下的多笔订单, 任一风控拒绝则整批不触达交易所
	BatchSubmitOrders(ctx context.Context, reqs []*exchange.CreateOrderRequest) ([]*exchange.CreateOrderResponse, error)
	ModifyOrder(ctx context.Context, req *exchange.ModifyOrderRequest) error
	CancelOrder(ctx context.Context, req *exchange.CancelOrderRequest) error
	CancelAllOrders(ctx context.Context, req *exchange.CancelAllOrdersRequest) error
	BatchCancelOrders(ctx context.Context, symbol string, clientOrderIDs []string) error

	// QueryAccount 钱包余额
	QueryAccount(ctx context.Context) ([]exchange.Balance, error)
	// OrderStatusReports 拉取挂单列表, symbol 为空则不过滤
	OrderStatusReports(ctx context.Context, symbol string) ([]exchange.Order, error)
	FillReports(ctx context.Context, symbol string) ([]exchange.Fill, error)
	PositionReports(ctx context.Context) ([]exchange.Position, error)

	// Reconcile 以交易所为准对齐本地状态, 每次建连后自动执行一次
	Reconcile(ctx context.Context) (*ReconcileReport, error)

	Stats() Stats
}
