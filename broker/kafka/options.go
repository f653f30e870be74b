package kafka

import (
	"github.com/go-kratos/kratos/v2/log"
)

type Option func(*options)

type options struct {
	addr   string
	async  bool
	logger *log.Helper
}

func WithAddr(addr string) Option {
	return func(o *options) {
		o.addr = addr
	}
}

// WithAsync 异步写入, 行情类高频事件建议开启
func WithAsync(async bool) Option {
	return func(o *options) {
		o.async = async
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = log.NewHelper(logger)
	}
}
