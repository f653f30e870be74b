package limiter

import (
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

type Option func(*Options)

type Options struct {
	// MaxRequests 每个窗口允许的请求数
	MaxRequests int
	// Window 窗口长度
	Window time.Duration
	// WsConnectTimes 每个 WsConnectPeriod 允许的连接次数
	WsConnectTimes  int
	WsConnectPeriod time.Duration
	Logger          log.Logger
}

func WithMaxRequests(n int) Option {
	return func(o *Options) {
		o.MaxRequests = n
	}
}

func WithWindow(d time.Duration) Option {
	return func(o *Options) {
		o.Window = d
	}
}

func WithWsConnectLimit(times int, period time.Duration) Option {
	return func(o *Options) {
		o.WsConnectTimes = times
		o.WsConnectPeriod = period
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
