package kafka

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/go-gotop/deltex/broker"
)

var _ broker.Publisher = (*Publisher)(nil)

type Publisher struct {
	opts   *options
	writer *kafkaGo.Writer
}

func NewPublisher(opts ...Option) *Publisher {
	o := &options{
		addr:   defaultAddr,
		logger: log.NewHelper(log.DefaultLogger),
	}
	for _, opt := range opts {
		opt(o)
	}

	writer := &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(o.addr),
		Balancer:               &kafkaGo.Hash{},
		Async:                  o.async,
		AllowAutoTopicCreation: true,
		Logger:                 newInfoLogger(o.logger),
		ErrorLogger:            newErrorLogger(o.logger),
	}

	return &Publisher{
		opts:   o,
		writer: writer,
	}
}

func (p *Publisher) Publish(ctx context.Context, topic string, msg *broker.Message) error {
	kmsg := kafkaGo.Message{
		Topic:   topic,
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: mapToKafkaHeader(msg.Headers),
	}
	return p.writer.WriteMessages(ctx, kmsg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
