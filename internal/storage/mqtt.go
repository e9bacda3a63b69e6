package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dinanjanan/cryostat-probe/pkg/protocol"
)

// ErrPublishTimeout MQTT 未在期限内确认
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// MQTTBackend 发布到 <prefix>/<run_id>/<type>
type MQTTBackend struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
}

// NewMQTTBackend 连接 MQTT broker
func NewMQTTBackend(broker, clientID, prefix string, qos byte, timeout time.Duration) (*MQTTBackend, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)
	c := mqtt.NewClient(opts)

	token := c.Connect()
	if timeout > 0 {
		if !token.WaitTimeout(timeout) {
			return nil, fmt.Errorf("连接MQTT超时: %s", broker)
		}
	} else {
		token.Wait()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("连接MQTT失败: %w", err)
	}
	return &MQTTBackend{client: c, prefix: prefix, qos: qos, timeout: timeout}, nil
}

func (m *MQTTBackend) Name() string {
	return "mqtt"
}

// Topic 消息所属主题
func Topic(prefix string, msg *protocol.Message) string {
	return fmt.Sprintf("%s/%s/%s", prefix, msg.RunID, msg.Type)
}

func (m *MQTTBackend) Publish(ctx context.Context, msg *protocol.Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}

	token := m.client.Publish(Topic(m.prefix, msg), m.qos, msg.Type == protocol.MessageTypeState, data)
	// timeout <= 0 时只受 ctx 限制
	var expired <-chan time.Time
	if m.timeout > 0 {
		timer := time.NewTimer(m.timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("发布MQTT消息失败: %w", err)
	}
	return nil
}

func (m *MQTTBackend) Close() error {
	m.client.Disconnect(250)
	return nil
}
