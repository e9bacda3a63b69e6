// Package runner 组装仪器, 输出与监控, 执行一次实验
package runner

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dinanjanan/cryostat-probe/internal/config"
	"github.com/dinanjanan/cryostat-probe/internal/driver"
	"github.com/dinanjanan/cryostat-probe/internal/instrument"
	"github.com/dinanjanan/cryostat-probe/internal/monitor"
	"github.com/dinanjanan/cryostat-probe/internal/procedure"
	"github.com/dinanjanan/cryostat-probe/internal/scpi"
	"github.com/dinanjanan/cryostat-probe/internal/sim"
	"github.com/dinanjanan/cryostat-probe/internal/storage"
)

// Runner 一次实验运行
type Runner struct {
	config  *config.Config
	log     *logrus.Logger
	monitor *monitor.Monitor
	runID   string
	stop    *procedure.StopFlag

	registry *instrument.Registry
	dialer   *scpi.Dialer
	backend  storage.Backend
	proc     procedure.Procedure
	server   *monitor.Server
}

// NewRunner 校验参数并准备输出后端, 此时不接触仪器
func NewRunner(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*Runner, error) {
	r := &Runner{
		config:  cfg,
		log:     log,
		monitor: monitor.NewMonitor(log),
		runID:   uuid.NewString(),
		stop:    procedure.NewStopFlag(),
	}

	addrs, err := cfg.Addresses()
	if err != nil {
		return nil, err
	}
	r.registry = instrument.NewRegistry(addrs, r.dial(), log)

	backend, err := r.openBackends(ctx)
	if err != nil {
		r.close()
		return nil, err
	}
	r.backend = backend

	emitter := storage.NewEmitter(backend, r.runID, cfg.SampleName(), cfg.Sink.PublishTimeout)
	opts := []procedure.Option{
		procedure.WithStopper(r.stop),
		procedure.WithSink(emitter),
		procedure.WithLogger(log),
		procedure.WithRunID(r.runID),
	}
	if cfg.Instruments.Simulate {
		opts = append(opts, procedure.WithClock(scaledClock{speedup: cfg.Instruments.SimSpeedup}))
	}
	proc, err := r.newProcedure(opts)
	if err != nil {
		r.close()
		return nil, err
	}
	r.proc = proc

	if cfg.Monitor.Enabled {
		r.server = monitor.NewServer(cfg.Monitor.Addr, r.monitor, r.Status, r.Stop, log)
	}
	return r, nil
}

func (r *Runner) newProcedure(opts []procedure.Option) (procedure.Procedure, error) {
	cfg := r.config
	exp, err := procedure.ParseExperiment(string(cfg.Experiment))
	if err != nil {
		return nil, err
	}
	switch exp {
	case procedure.SetTemperature:
		return procedure.NewTemperatureHold(cfg.SetTemperature, r.registry, opts...)
	case procedure.SetCurrent:
		return procedure.NewCurrentHold(cfg.SetCurrent, r.registry, opts...)
	case procedure.IVCurve:
		return procedure.NewIVSweep(cfg.IV, r.registry, opts...)
	default:
		return procedure.NewSweep(cfg.Sweep, r.registry, opts...)
	}
}

func (r *Runner) dial() instrument.DialFunc {
	if r.config.Instruments.Simulate {
		r.log.Warn("使用模拟仪器运行")
		return sim.NewRig(sim.DefaultConfig()).Dial
	}
	r.dialer = scpi.NewDialer(r.config.Instruments.GPIBPort, r.config.Instruments.Timeout, r.log)
	return driver.NewDialer(r.dialer, r.log).Dial
}

func (r *Runner) openBackends(ctx context.Context) (storage.Backend, error) {
	cfg := r.config
	var multi storage.Multi
	for _, name := range cfg.Sink.Backends {
		var (
			b   storage.Backend
			err error
		)
		switch strings.ToLower(name) {
		case config.BackendLog:
			b = storage.NewLogBackend(r.log)
		case config.BackendRedis:
			b, err = storage.NewRedisBackend(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.Channel,
				cfg.Redis.DB, cfg.Redis.PoolSize, cfg.Redis.Keep, r.log)
		case config.BackendKafka:
			b = storage.NewKafkaBackend(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		case config.BackendMQTT:
			b, err = storage.NewMQTTBackend(cfg.MQTT.Broker, cfg.MQTT.ClientID+"-"+r.runID[:8],
				cfg.MQTT.TopicPrefix, cfg.MQTT.QoS, cfg.Sink.PublishTimeout)
		default:
			err = fmt.Errorf("unknown sink backend %q", name)
		}
		if err != nil {
			_ = multi.Close()
			return nil, fmt.Errorf("创建发布后端 %s 失败: %w", name, err)
		}
		r.log.Infof("发布后端已启用: %s", b.Name())
		multi = append(multi, b)
	}
	return multi, nil
}

// RunID 本次运行编号
func (r *Runner) RunID() string {
	return r.runID
}

// Stop 请求停止, 可在任意 goroutine 调用
func (r *Runner) Stop() {
	r.stop.Stop()
}

// Status 当前运行快照
func (r *Runner) Status() monitor.Status {
	connected := r.registry.Connected()
	inst := make(map[string]bool, len(connected))
	for role, ok := range connected {
		inst[role.String()] = ok
	}
	return monitor.Status{
		RunID:       r.runID,
		SampleName:  r.config.SampleName(),
		State:       r.proc.State().String(),
		Progress:    r.proc.Progress(),
		Points:      r.proc.Points(),
		Instruments: inst,
	}
}

// Run 执行实验, ctx 取消或收到 SIGINT/SIGTERM 时请求停止
func (r *Runner) Run(ctx context.Context) error {
	defer r.close()

	done := make(chan struct{})
	defer close(done)

	if r.server != nil {
		r.monitor.StartRuntimeMonitor(done)
		r.server.Start()
	}
	go r.handleSignals(ctx, done)

	r.log.WithFields(logrus.Fields{
		"run_id":     r.runID,
		"experiment": string(r.config.Experiment),
		"sample":     r.config.SampleName(),
	}).Info("实验开始")

	err := r.proc.Run()
	if err != nil {
		r.log.Errorf("实验异常结束: %v", err)
		return err
	}
	r.log.Infof("实验结束, 状态 %s, 进度 %.1f%%", r.proc.State(), r.proc.Progress())
	return nil
}

func (r *Runner) handleSignals(ctx context.Context, done <-chan struct{}) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		r.log.Warnf("收到信号: %v, 在下一个检查点停止", sig)
		r.Stop()
	case <-ctx.Done():
		r.log.Warn("运行被取消, 在下一个检查点停止")
		r.Stop()
	case <-done:
	}
}

func (r *Runner) close() {
	if r.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.Warnf("关闭监控服务失败: %v", err)
		}
		cancel()
		r.server = nil
	}
	if r.backend != nil {
		if err := r.backend.Close(); err != nil {
			r.log.Errorf("关闭发布后端失败: %v", err)
		}
		r.backend = nil
	}
	if r.dialer != nil {
		if err := r.dialer.Close(); err != nil {
			r.log.Warnf("关闭 GPIB 适配器失败: %v", err)
		}
		r.dialer = nil
	}
}

// scaledClock 模拟运行时按倍率缩短等待
type scaledClock struct {
	speedup float64
}

func (c scaledClock) Sleep(d time.Duration) {
	time.Sleep(time.Duration(float64(d) / c.speedup))
}
