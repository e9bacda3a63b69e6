package storage

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/dinanjanan/cryostat-probe/pkg/protocol"
)

// LogBackend 只把采样写进日志, 用于离线调试
type LogBackend struct {
	log *logrus.Logger
}

// NewLogBackend 创建日志后端
func NewLogBackend(log *logrus.Logger) *LogBackend {
	return &LogBackend{log: log}
}

func (l *LogBackend) Name() string {
	return "log"
}

func (l *LogBackend) Publish(_ context.Context, msg *protocol.Message) error {
	entry := l.log.WithFields(logrus.Fields{"run_id": msg.RunID, "type": msg.Type})
	switch msg.Type {
	case protocol.MessageTypeSample:
		s := msg.Sample
		entry.Infof("[%d] B=%.5f T  I=%.4e A  V=%.6e V  R=%.6e Ω", msg.Index, s.Field, s.Current, s.Voltage, s.Resistance)
	case protocol.MessageTypeProgress:
		entry.Debugf("进度 %.1f%%", msg.Progress)
	case protocol.MessageTypeState:
		if msg.Error != "" {
			entry.Warnf("状态 %s: %s", msg.State, msg.Error)
		} else {
			entry.Infof("状态 %s", msg.State)
		}
	}
	return nil
}

func (l *LogBackend) Close() error {
	return nil
}
