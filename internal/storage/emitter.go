package storage

import (
	"context"
	"time"

	"github.com/dinanjanan/cryostat-probe/internal/procedure"
	"github.com/dinanjanan/cryostat-probe/pkg/protocol"
)

// Emitter 把扫场输出转换为消息并交给后端, 实现 procedure.Sink 与 procedure.StateSink
type Emitter struct {
	backend    Backend
	runID      string
	sampleName string
	timeout    time.Duration
	now        func() time.Time
}

// NewEmitter 创建输出适配器, timeout 为单条消息的发布期限
func NewEmitter(backend Backend, runID, sampleName string, timeout time.Duration) *Emitter {
	return &Emitter{
		backend:    backend,
		runID:      runID,
		sampleName: sampleName,
		timeout:    timeout,
		now:        time.Now,
	}
}

func (e *Emitter) EmitSample(index int, s protocol.Sample) error {
	msg := e.message(protocol.MessageTypeSample)
	msg.Index = index
	msg.Sample = &s
	return e.publish(msg)
}

func (e *Emitter) EmitProgress(percent float64) error {
	msg := e.message(protocol.MessageTypeProgress)
	msg.Progress = percent
	return e.publish(msg)
}

func (e *Emitter) EmitState(state procedure.State, cause error) error {
	msg := e.message(protocol.MessageTypeState)
	msg.State = state.String()
	if cause != nil {
		msg.Error = cause.Error()
	}
	return e.publish(msg)
}

func (e *Emitter) message(kind string) *protocol.Message {
	return &protocol.Message{
		RunID:      e.runID,
		SampleName: e.sampleName,
		Type:       kind,
		Timestamp:  e.now(),
	}
}

func (e *Emitter) publish(msg *protocol.Message) error {
	ctx := context.Background()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.backend.Publish(ctx, msg)
}
