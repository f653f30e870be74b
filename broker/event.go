package broker

import (
	"context"
)

const (
	QuoteTopicType       string = "MD.QUOTE"
	TradeTopicType       string = "MD.TRADE"
	BookTopicType        string = "MD.BOOK"
	BarTopicType         string = "MD.BAR"
	MarkPriceTopicType   string = "MD.MARK_PRICE"
	FundingRateTopicType string = "MD.FUNDING_RATE"

	OrderResultTopicType string = "EXEC.ORDER.RESULT"
	PositionTopicType    string = "EXEC.POSITION"
	MarginTopicType      string = "EXEC.MARGIN"
	AccountTopicType     string = "EXEC.ACCOUNT"

	StreamErrorTopicType string = "STREAM.ERROR"
)

type Headers map[string]string

type Message struct {
	Headers Headers
	// Key 分区键, 通常为交易对
	Key   string
	Value []byte
}

// Publisher 向消息总线发布规整化后的领域事件
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *Message) error
	Close() error
}

type Event interface {
	Topic() string

	Message() *Message
	RawMessage() interface{}

	Ack() error

	Error() error
}

type Handler func(ctx context.Context, evt Event) error
