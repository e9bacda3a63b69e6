// Package storage 把扫场数据发布到外部消息系统
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dinanjanan/cryostat-probe/pkg/protocol"
)

// Backend 消息发布后端
type Backend interface {
	Name() string
	Publish(ctx context.Context, msg *protocol.Message) error
	Close() error
}

func encode(msg *protocol.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("序列化数据失败: %w", err)
	}
	return data, nil
}

// Multi 同时发布到多个后端, 单个后端失败不影响其它后端
type Multi []Backend

func (m Multi) Name() string {
	return "multi"
}

func (m Multi) Publish(ctx context.Context, msg *protocol.Message) error {
	var errs []error
	for _, b := range m {
		if err := b.Publish(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, b := range m {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	return errors.Join(errs...)
}
