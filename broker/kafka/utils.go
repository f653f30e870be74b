package kafka

import (
	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/go-gotop/deltex/broker"
)

func kafkaHeaderToMap(h []kafkaGo.Header) broker.Headers {
	m := broker.Headers{}
	for _, v := range h {
		m[v.Key] = string(v.Value)
	}
	return m
}

func mapToKafkaHeader(m broker.Headers) []kafkaGo.Header {
	headers := make([]kafkaGo.Header, 0, len(m))
	for k, v := range m {
		headers = append(headers, kafkaGo.Header{Key: k, Value: []byte(v)})
	}
	return headers
}
