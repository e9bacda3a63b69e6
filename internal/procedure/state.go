package procedure

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dinanjanan/cryostat-probe/pkg/protocol"
)

// State 扫场流程状态
type State int32

const (
	Idle State = iota
	Startup
	Stabilizing
	Ready
	Sweeping
	Completed
	Aborted
	ShuttingDown
	Terminated
)

var stateNames = [...]string{
	Idle:         "idle",
	Startup:      "startup",
	Stabilizing:  "stabilizing",
	Ready:        "ready",
	Sweeping:     "sweeping",
	Completed:    "completed",
	Aborted:      "aborted",
	ShuttingDown: "shutting_down",
	Terminated:   "terminated",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Clock 物理等待. 等待不可被中断, 停止请求只在检查点处理.
type Clock interface {
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// RealClock 返回真实时钟
func RealClock() Clock {
	return realClock{}
}

// Stopper 停止请求来源
type Stopper interface {
	ShouldStop() bool
}

// StopFlag 可由任意 goroutine 设置的停止标志
type StopFlag struct {
	stopped atomic.Bool
}

// NewStopFlag 创建停止标志
func NewStopFlag() *StopFlag {
	return &StopFlag{}
}

// Stop 请求停止
func (f *StopFlag) Stop() {
	f.stopped.Store(true)
}

// ShouldStop 是否已请求停止
func (f *StopFlag) ShouldStop() bool {
	return f.stopped.Load()
}

type contextStopper struct {
	ctx context.Context
}

func (c contextStopper) ShouldStop() bool {
	return c.ctx.Err() != nil
}

// ContextStopper 把 context 取消当作停止请求
func ContextStopper(ctx context.Context) Stopper {
	return contextStopper{ctx: ctx}
}

type never struct{}

func (never) ShouldStop() bool { return false }

// Sink 采样输出
type Sink interface {
	EmitSample(index int, s protocol.Sample) error
	EmitProgress(percent float64) error
}

type discardSink struct{}

func (discardSink) EmitSample(int, protocol.Sample) error { return nil }
func (discardSink) EmitProgress(float64) error          { return nil }
