package dxlimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/go-gotop/deltex/limiter"
)

var _ limiter.Limiter = (*DeltaLimiter)(nil)

const (
	// DefaultMaxRequests 交易所要求每秒不超过 10 次请求
	DefaultMaxRequests = 10
	DefaultWindow      = time.Second

	defaultWsConnectTimes  = 5
	defaultWsConnectPeriod = time.Minute
)

// DeltaLimiter 固定窗口计数限流器。检查与计数在同一把锁下完成,
// 并发 Acquire 不会超发。
type DeltaLimiter struct {
	opts limiter.Options

	mux         sync.Mutex
	count       int
	windowStart time.Time

	wsLimiter *rate.Limiter

	// 测试注入
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDeltaLimiter(opts ...limiter.Option) *DeltaLimiter {
	o := limiter.Options{
		MaxRequests:     DefaultMaxRequests,
		Window:          DefaultWindow,
		WsConnectTimes:  defaultWsConnectTimes,
		WsConnectPeriod: defaultWsConnectPeriod,
	}
	for _, opt := range opts {
		opt(&o)
	}
	l := &DeltaLimiter{
		opts:      o,
		wsLimiter: rate.NewLimiter(rate.Every(o.WsConnectPeriod/time.Duration(o.WsConnectTimes)), o.WsConnectTimes),
		now:       time.Now,
		sleep:     sleepCtx,
	}
	return l
}

// Acquire 占用一个窗口额度, 额度耗尽时阻塞到下一个窗口开始。
func (l *DeltaLimiter) Acquire(ctx context.Context) error {
	for {
		l.mux.Lock()
		now := l.now()
		if now.Sub(l.windowStart) >= l.opts.Window {
			l.windowStart = now
			l.count = 0
		}
		if l.count < l.opts.MaxRequests {
			l.count++
			l.mux.Unlock()
			return nil
		}
		wait := l.opts.Window - now.Sub(l.windowStart)
		l.mux.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *DeltaLimiter) WsAllow() bool {
	return l.wsLimiter.Allow()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
