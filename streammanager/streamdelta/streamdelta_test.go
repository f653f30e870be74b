package streamdelta

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-gotop/deltex/exchange"
	"github.com/go-gotop/deltex/limiter/dxlimiter"
	"github.com/go-gotop/deltex/requests/dehttp"
	"github.com/go-gotop/deltex/wsmanager"
)

// fakeManager 记录写出的帧, 不做真实连接
type fakeManager struct {
	mux       sync.Mutex
	connected bool
	written   [][]byte
	stats     wsmanager.Stats
}

func (f *fakeManager) Connect(ctx context.Context) error {
	f.connected = true
	return nil
}

func (f *fakeManager) Disconnect() error {
	f.connected = false
	return nil
}

func (f *fakeManager) Reset() error { return nil }

func (f *fakeManager) State() wsmanager.ConnectionState {
	if f.connected {
		return wsmanager.Connected
	}
	return wsmanager.Disconnected
}

func (f *fakeManager) IsConnected() bool { return f.connected }
func (f *fakeManager) Epoch() uint64     { return 1 }

func (f *fakeManager) WriteMessage(messageType int, data []byte) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeManager) SignalReconnect()       {}
func (f *fakeManager) Stats() wsmanager.Stats { return f.stats }

func (f *fakeManager) frames() []string {
	f.mux.Lock()
	defer f.mux.Unlock()
	out := make([]string, 0, len(f.written))
	for _, w := range f.written {
		out = append(out, string(w))
	}
	return out
}

type stubResponse struct {
	status int
	body   string
}

// fakeTransport 按路径返回预置响应
type fakeTransport struct {
	mux       sync.Mutex
	responses map[string]stubResponse
	requests  []*http.Request
	bodies    []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{responses: make(map[string]stubResponse)}
}

func (f *fakeTransport) respond(path, body string) {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.responses[path] = stubResponse{status: http.StatusOK, body: body}
}

func (f *fakeTransport) fail(path string, status int, body string) {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.responses[path] = stubResponse{status: status, body: body}
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.requests = append(f.requests, req)
	body := ""
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		body = string(data)
	}
	f.bodies = append(f.bodies, body)

	resp, ok := f.responses[req.URL.Path]
	if !ok {
		resp = stubResponse{status: http.StatusNotFound, body: `{"error":{"code":"not_found"}}`}
	}
	return &http.Response{
		StatusCode: resp.status,
		Body:       io.NopCloser(strings.NewReader(resp.body)),
		Header:     http.Header{},
	}, nil
}

func (f *fakeTransport) lastBody() string {
	f.mux.Lock()
	defer f.mux.Unlock()
	if len(f.bodies) == 0 {
		return ""
	}
	return f.bodies[len(f.bodies)-1]
}

func newTestStream(t *testing.T, opts ...Option) (*stream, *fakeManager, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	client := dehttp.NewClient(
		dehttp.APIKey("test-key"),
		dehttp.SecretKey("test-secret"),
		dehttp.HttpClient(&http.Client{Transport: ft}),
	)
	sm := NewDeltaStream(client, dxlimiter.NewDeltaLimiter(), opts...)
	s, ok := sm.(*stream)
	require.True(t, ok)
	fm := &fakeManager{connected: true}
	s.mgr = fm
	return s, fm, ft
}

func limitOrder(clientID string, size, price int64) *exchange.CreateOrderRequest {
	return &exchange.CreateOrderRequest{
		Symbol:        "BTCUSD",
		ClientOrderID: clientID,
		Side:          exchange.SideTypeBuy,
		OrderType:     exchange.OrderTypeLimit,
		TimeInForce:   exchange.TimeInForceGTC,
		Size:          decimal.NewFromInt(size),
		Price:         decimal.NewFromInt(price),
	}
}

func TestSubmitOrder(t *testing.T) {
	s, _, ft := newTestStream(t)
	ft.respond("/v2/orders", `{"success":true,"result":
		{"id":42,"product_symbol":"BTCUSD","client_order_id":"c-1","size":10,"unfilled_size":10,
		 "side":"buy","order_type":"limit_order","limit_price":"100","state":"open"}}`)

	resp, err := s.SubmitOrder(context.Background(), limitOrder("c-1", 10, 100))
	require.NoError(t, err)
	assert.Equal(t, "42", resp.OrderID)
	assert.Equal(t, exchange.OrderStateAccepted, resp.State)

	o, ok := s.tracker.Get("c-1")
	require.True(t, ok)
	assert.Equal(t, "42", o.OrderID)
	assert.Equal(t, exchange.OrderStateAccepted, o.State)
	assert.Equal(t, uint64(1), s.Stats().OrdersSubmitted)

	body := ft.lastBody()
	assert.Contains(t, body, `"product_symbol":"BTCUSD"`)
	assert.Contains(t, body, `"order_type":"limit_order"`)
	assert.Contains(t, body, `"limit_price":"100"`)
	assert.Contains(t, body, `"time_in_force":"gtc"`)
}

func TestSubmitOrderVenueRejection(t *testing.T) {
	s, _, ft := newTestStream(t)
	ft.fail("/v2/orders", 400, `{"error":{"code":"insufficient_margin","context":"wallet"}}`)

	_, err := s.SubmitOrder(context.Background(), limitOrder("c-1", 10, 100))
	require.Error(t, err)
	assert.True(t, dehttp.IsAPIError(err))

	o, ok := s.tracker.Get("c-1")
	require.True(t, ok)
	assert.Equal(t, exchange.OrderStateRejected, o.State)
	assert.Equal(t, uint64(1), s.Stats().OrdersRejected)
}

// 风控拒绝不触达交易所, 本地直接回报 REJECTED
func TestSubmitOrderRiskRejected(t *testing.T) {
	var events []*exchange.OrderResultEvent
	s, _, ft := newTestStream(t,
		WithMaxOrderSize(decimal.NewFromInt(5)),
		WithOrderResultHandler(func(event *exchange.OrderResultEvent) {
			events = append(events, event)
		}),
	)

	_, err := s.SubmitOrder(context.Background(), limitOrder("c-1", 10, 100))
	assert.ErrorIs(t, err, exchange.ErrRiskCheckFailed)
	assert.Empty(t, ft.requests)

	require.Len(t, events, 1)
	assert.Equal(t, "c-1", events[0].ClientOrderID)
	assert.Equal(t, exchange.OrderStateRejected, events[0].State)
	assert.Equal(t, exchange.ExecutionStateRejected, events[0].ExecutionType)
	assert.Contains(t, events[0].RejectReason, "exceeds maximum")
	assert.Equal(t, uint64(1), s.Stats().OrdersRejected)

	_, ok := s.tracker.Get("c-1")
	assert.False(t, ok)
}

func TestSubmitOrderMaxPosition(t *testing.T) {
	s, _, _ := newTestStream(t, WithMaxPositionSize(decimal.NewFromInt(100)))
	s.tracker.SetPosition("BTCUSD", decimal.NewFromInt(95), decimal.NewFromInt(100))

	_, err := s.SubmitOrder(context.Background(), limitOrder("c-1", 10, 100))
	assert.ErrorIs(t, err, exchange.ErrRiskCheckFailed)
}

func TestCancelOrder(t *testing.T) {
	s, _, ft := newTestStream(t)
	ft.respond("/v2/orders", `{"success":true,"result":
		{"id":42,"product_symbol":"BTCUSD","client_order_id":"c-1","size":10,"unfilled_size":10,
		 "side":"buy","order_type":"limit_order","limit_price":"100","state":"open"}}`)

	_, err := s.SubmitOrder(context.Background(), limitOrder("c-1", 10, 100))
	require.NoError(t, err)

	require.NoError(t, s.CancelOrder(context.Background(), &exchange.CancelOrderRequest{
		ClientOrderID: "c-1",
		Symbol:        "BTCUSD",
	}))
	assert.Equal(t, uint64(1), s.Stats().OrdersCancelled)

	o, _ := s.tracker.Get("c-1")
	assert.Equal(t, exchange.OrderStatePendingCancel, o.State)
	assert.Contains(t, ft.lastBody(), `"id":42`)
}

func TestCancelUnknownOrder(t *testing.T) {
	s, _, _ := newTestStream(t)
	err := s.CancelOrder(context.Background(), &exchange.CancelOrderRequest{ClientOrderID: "missing"})
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)
}

func TestBatchSubmitOrders(t *testing.T) {
	s, _, ft := newTestStream(t)
	ft.respond("/v2/orders/batch", `{"success":true,"result":[
		{"id":1,"product_symbol":"BTCUSD","client_order_id":"c-1","size":10,"unfilled_size":10,
		 "side":"buy","order_type":"limit_order","limit_price":"100","state":"open"},
		{"id":2,"product_symbol":"BTCUSD","client_order_id":"c-2","size":20,"unfilled_size":20,
		 "side":"buy","order_type":"limit_order","limit_price":"99","state":"open"}
	]}`)

	resps, err := s.BatchSubmitOrders(context.Background(), []*exchange.CreateOrderRequest{
		limitOrder("c-1", 10, 100),
		limitOrder("c-2", 20, 99),
	})
	require.NoError(t, err)
	require.Len(t, resps, 2)
	assert.Equal(t, "1", resps[0].OrderID)
	assert.Equal(t, "2", resps[1].OrderID)
	assert.Equal(t, uint64(2), s.Stats().OrdersSubmitted)
	// 整批一次 REST 调用
	assert.Equal(t, uint64(1), s.Stats().APICalls)

	o, ok := s.tracker.Get("c-2")
	require.True(t, ok)
	assert.Equal(t, exchange.OrderStateAccepted, o.State)
}

// 任一风控拒绝则整批不触达交易所, 被拒订单本地回报 REJECTED
func TestBatchSubmitRiskRejected(t *testing.T) {
	var events []*exchange.OrderResultEvent
	s, _, ft := newTestStream(t,
		WithMaxOrderSize(decimal.NewFromInt(15)),
		WithOrderResultHandler(func(event *exchange.OrderResultEvent) {
			events = append(events, event)
		}),
	)

	_, err := s.BatchSubmitOrders(context.Background(), []*exchange.CreateOrderRequest{
		limitOrder("c-1", 10, 100),
		limitOrder("c-2", 20, 99),
	})
	assert.ErrorIs(t, err, exchange.ErrRiskCheckFailed)
	assert.Empty(t, ft.requests)

	require.Len(t, events, 1)
	assert.Equal(t, "c-2", events[0].ClientOrderID)
	assert.Equal(t, exchange.OrderStateRejected, events[0].State)
}

func TestBatchCancelOrders(t *testing.T) {
	s, _, ft := newTestStream(t)
	ft.respond("/v2/orders", `{"success":true,"result":
		{"id":1,"product_symbol":"BTCUSD","size":10,"unfilled_size":10,"state":"open",
		 "side":"buy","order_type":"limit_order","limit_price":"100"}}`)

	_, err := s.SubmitOrder(context.Background(), limitOrder("c-1", 10, 100))
	require.NoError(t, err)

	ft.respond("/v2/orders/batch", `{"success":true,"result":[]}`)
	require.NoError(t, s.BatchCancelOrders(context.Background(), "BTCUSD", []string{"c-1"}))
	assert.Equal(t, uint64(1), s.Stats().OrdersCancelled)
	assert.Contains(t, ft.lastBody(), `"client_order_id":"c-1"`)
}

func TestConnectSubscribesPrivateChannels(t *testing.T) {
	s, fm, _ := newTestStream(t, WithReconcileDisabled())

	require.NoError(t, s.onEstablished(context.Background(), false))
	frames := fm.frames()
	require.Len(t, frames, 1)
	assert.Contains(t, frames[0], `"orders"`)
	assert.Contains(t, frames[0], `"user_trades"`)
	assert.Contains(t, frames[0], `"positions"`)
	assert.Contains(t, frames[0], `"margins"`)
}

func TestRouteOrderEvent(t *testing.T) {
	var events []*exchange.OrderResultEvent
	s, _, ft := newTestStream(t, WithOrderResultHandler(func(e *exchange.OrderResultEvent) {
		events = append(events, e)
	}))
	ft.respond("/v2/orders", `{"success":true,"result":
		{"id":42,"product_symbol":"BTCUSD","client_order_id":"c-1","size":10,"unfilled_size":10,
		 "side":"buy","order_type":"limit_order","limit_price":"100","state":"pending"}}`)
	_, err := s.SubmitOrder(context.Background(), limitOrder("c-1", 10, 100))
	require.NoError(t, err)

	s.route(1, []byte(`{"type":"order","symbol":"BTCUSD"}`))

	s.route(1, []byte(`{"type":"orders","symbol":"BTCUSD","order_id":42,
		"client_order_id":"c-1","size":10,"unfilled_size":10,"side":"buy",
		"order_type":"limit_order","limit_price":"100","state":"open","timestamp":1700000000000000}`))

	o, _ := s.tracker.Get("c-1")
	assert.Equal(t, exchange.OrderStateAccepted, o.State)
	require.Len(t, events, 1)
	assert.Equal(t, exchange.OrderStateAccepted, events[0].State)
	assert.Equal(t, int64(1700000000000), events[0].TransactionTime)
}

func TestRouteUserTradeFillsOrder(t *testing.T) {
	s, _, ft := newTestStream(t)
	ft.respond("/v2/orders", `{"success":true,"result":
		{"id":42,"product_symbol":"BTCUSD","client_order_id":"c-1","size":10,"unfilled_size":10,
		 "side":"buy","order_type":"limit_order","limit_price":"100","state":"open"}}`)
	_, err := s.SubmitOrder(context.Background(), limitOrder("c-1", 10, 100))
	require.NoError(t, err)

	s.route(1, []byte(`{"type":"user_trades","symbol":"BTCUSD","fill_id":"f-1","order_id":42,
		"client_order_id":"c-1","side":"buy","size":10,"price":"100","role":"taker",
		"commission":"0.05","timestamp":1700000000000000}`))

	o, _ := s.tracker.Get("c-1")
	assert.Equal(t, exchange.OrderStateFilled, o.State)
	assert.True(t, o.FilledSize.Equal(decimal.NewFromInt(10)))

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.OrdersFilled)
	assert.Equal(t, uint64(1), stats.PositionsOpened)

	pos, ok := s.tracker.Position("BTCUSD")
	require.True(t, ok)
	assert.True(t, pos.Size.Equal(decimal.NewFromInt(10)))
}

// 归属未知的成交暂存, 不计持仓
func TestRouteUnknownFillDeferred(t *testing.T) {
	s, _, _ := newTestStream(t)

	s.route(1, []byte(`{"type":"user_trades","symbol":"BTCUSD","fill_id":"f-1","order_id":99,
		"side":"buy","size":10,"price":"100","timestamp":1700000000000000}`))

	assert.Equal(t, 1, s.tracker.PendingFillCount())
	_, ok := s.tracker.Position("BTCUSD")
	assert.False(t, ok)
}

func TestRoutePositionEvent(t *testing.T) {
	var events []*exchange.PositionEvent
	s, _, _ := newTestStream(t, WithPositionHandler(func(e *exchange.PositionEvent) {
		events = append(events, e)
	}))

	s.route(1, []byte(`{"type":"positions","symbol":"BTCUSD","size":-50,
		"entry_price":"200","margin":"10","realized_pnl":"3","timestamp":1700000000000000}`))

	require.Len(t, events, 1)
	assert.Equal(t, exchange.PositionSideShort, events[0].Side)
	assert.True(t, events[0].Size.Equal(decimal.NewFromInt(50)))

	pos, ok := s.tracker.Position("BTCUSD")
	require.True(t, ok)
	assert.True(t, pos.Size.Equal(decimal.NewFromInt(-50)))
}

func TestRouteMarginEvent(t *testing.T) {
	var events []*exchange.MarginEvent
	s, _, _ := newTestStream(t, WithMarginHandler(func(e *exchange.MarginEvent) {
		events = append(events, e)
	}))

	s.route(1, []byte(`{"type":"margins","asset_symbol":"USDT","balance":"1000",
		"available_balance":"800","blocked_margin":"200","timestamp":1700000000000000}`))

	require.Len(t, events, 1)
	assert.Equal(t, "USDT", events[0].Asset)
	assert.True(t, events[0].Available.Equal(decimal.NewFromInt(800)))
}

// 解析失败只计数, 不影响后续消息
func TestRouteMalformed(t *testing.T) {
	s, _, _ := newTestStream(t)

	s.route(1, []byte(`{broken`))
	assert.Equal(t, uint64(1), s.Stats().Errors)

	s.route(1, []byte(`{"type":"margins","asset_symbol":"USDT","balance":"1"}`))
	assert.Equal(t, uint64(2), s.Stats().MessagesReceived)
	assert.Equal(t, uint64(1), s.Stats().MessagesProcessed)
}

func TestDisconnectClearsTracker(t *testing.T) {
	s, fm, ft := newTestStream(t)
	ft.respond("/v2/orders", `{"success":true,"result":
		{"id":42,"product_symbol":"BTCUSD","client_order_id":"c-1","size":10,"unfilled_size":10,
		 "side":"buy","order_type":"limit_order","limit_price":"100","state":"open"}}`)
	_, err := s.SubmitOrder(context.Background(), limitOrder("c-1", 10, 100))
	require.NoError(t, err)

	require.NoError(t, s.Disconnect())
	assert.False(t, fm.connected)
	_, ok := s.tracker.Get("c-1")
	assert.False(t, ok)
}
