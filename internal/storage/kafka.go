package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dinanjanan/cryostat-probe/pkg/protocol"
)

// KafkaBackend 写入 Kafka topic, 以运行编号为 key 保证同一运行有序
type KafkaBackend struct {
	writer *kafka.Writer
}

// NewKafkaBackend 创建 Kafka 写入端
func NewKafkaBackend(brokers []string, topic string) *KafkaBackend {
	return &KafkaBackend{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (k *KafkaBackend) Name() string {
	return "kafka"
}

func (k *KafkaBackend) Publish(ctx context.Context, msg *protocol.Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.RunID),
		Value: data,
		Time:  msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("写入Kafka失败: %w", err)
	}
	return nil
}

func (k *KafkaBackend) Close() error {
	return k.writer.Close()
}
