package kafka

import "github.com/go-kratos/kratos/v2/log"

// infoLogger 将 kafka-go 的运行日志接入 kratos 日志
type infoLogger struct {
	logger *log.Helper
}

func newInfoLogger(logger *log.Helper) *infoLogger {
	return &infoLogger{logger: logger}
}

func (l *infoLogger) Printf(msg string, args ...interface{}) {
	l.logger.Infof(msg, args...)
}

type errorLogger struct {
	logger *log.Helper
}

func newErrorLogger(logger *log.Helper) *errorLogger {
	return &errorLogger{logger: logger}
}

func (l *errorLogger) Printf(msg string, args ...interface{}) {
	l.logger.Errorf(msg, args...)
}
