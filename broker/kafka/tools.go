package kafka

import (
	"net"
	"strconv"

	kafkaGo "github.com/segmentio/kafka-go"
)

const defaultAddr = "localhost:9092"

// CreateTopic 运维辅助, 建主题
func CreateTopic(addr string, topic string, numPartitions, replicationFactor int) error {
	conn, err := kafkaGo.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafkaGo.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	return controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     numPartitions,
		ReplicationFactor: replicationFactor,
	})
}

// DeleteTopic 运维辅助, 删主题
func DeleteTopic(addr string, topic string) error {
	conn, err := kafkaGo.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.DeleteTopics(topic)
}
