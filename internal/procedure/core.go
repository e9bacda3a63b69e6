package procedure

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/dinanjanan/cryostat-probe/internal/instrument"
	"github.com/dinanjanan/cryostat-probe/internal/monitor"
	"github.com/dinanjanan/cryostat-probe/pkg/protocol"
)

// Procedure 一次可运行的实验
type Procedure interface {
	Run() error
	State() State
	Progress() float64
	RunID() string
	// Points 计划记录的采样点数, 不采样的实验为 0
	Points() int
}

// Option 实验选项, 所有实验通用
type Option func(*core)

// WithClock 设置等待使用的时钟
func WithClock(c Clock) Option {
	return func(p *core) { p.clock = c }
}

// WithStopper 设置停止请求来源
func WithStopper(st Stopper) Option {
	return func(p *core) { p.stop = st }
}

// WithSink 设置采样输出
func WithSink(sink Sink) Option {
	return func(p *core) { p.sink = sink }
}

// WithLogger 设置日志
func WithLogger(log *logrus.Logger) Option {
	return func(p *core) { p.logger = log }
}

// WithRunID 设置运行编号
func WithRunID(id string) Option {
	return func(p *core) { p.runID = id }
}

// core 各实验共用的状态机, 输出与温控步骤
type core struct {
	inst Instruments

	clock  Clock
	stop   Stopper
	sink   Sink
	logger *logrus.Logger
	log    *logrus.Entry
	runID  string

	state    atomic.Int32
	progress atomic.Uint64
}

func (c *core) init(inst Instruments, opts []Option, fields logrus.Fields) {
	c.inst = inst
	c.clock = RealClock()
	c.stop = never{}
	c.sink = discardSink{}
	c.logger = logrus.StandardLogger()
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	fields["run_id"] = c.runID
	c.log = c.logger.WithFields(fields)
}

// State 当前状态
func (c *core) State() State {
	return State(c.state.Load())
}

// Progress 已完成的记录点百分比
func (c *core) Progress() float64 {
	return math.Float64frombits(c.progress.Load())
}

// RunID 运行编号
func (c *core) RunID() string {
	return c.runID
}

// run 执行 body, 无论结果如何都会调用 shutdown. 用户停止不算错误.
func (c *core) run(body func() error, shutdown func() error) (err error) {
	if st := c.State(); st != Idle {
		return fmt.Errorf("%w: run from %s", ErrInvalidState, st)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("实验流程 panic: %v", p)
		}
		if err != nil {
			c.log.Errorf("实验流程失败: %v", err)
			if st := c.State(); st != Aborted && st != Completed {
				c.setState(Aborted, err)
			}
		}
		_ = shutdown()
	}()

	return body()
}

// shutdown 只执行一次 release, 失败只记录不上抛
func (c *core) shutdown(release func() error) error {
	if st := c.State(); st == ShuttingDown || st == Terminated {
		return nil
	}
	c.setState(ShuttingDown, nil)
	c.log.Info("正在关闭仪器")

	err := release()
	if err != nil {
		c.log.Warnf("部分仪器关闭失败: %v", err)
	} else {
		c.log.Info("仪器已全部关闭")
	}
	c.setState(Terminated, nil)
	return err
}

func (c *core) deviceErr(role instrument.Role, op string, err error) error {
	return &instrument.DeviceError{Role: role, Address: c.inst.Address(role), Op: op, Err: err}
}

func (c *core) unavailable(role instrument.Role) error {
	return fmt.Errorf("%w: %s at %s", ErrRoleUnavailable, role, c.inst.Address(role))
}

// configureHeater 设置样品加热回路并给出目标温度
func (c *core) configureHeater(tctrl instrument.TemperatureControllerDevice, tp TemperatureParameters) error {
	out := instrument.SampleHeaterOutput
	pid := tp.HeaterSetting.PID()
	steps := []struct {
		op string
		fn func() error
	}{
		{"pid", func() error { return tctrl.SetHeaterPID(out, pid.P, pid.I, pid.D) }},
		{"heater_setup", func() error {
			return tctrl.SetHeaterSetup(out, instrument.Heater25Ohm, tp.HeaterPower, instrument.UnitsPower)
		}},
		{"output_mode", func() error {
			return tctrl.SetHeaterOutputMode(out, instrument.OutputClosedLoop, instrument.ChannelA, true)
		}},
		{"setpoint_ramp", func() error { return tctrl.SetSetpointRampParameter(out, false, 0) }},
		{"setpoint", func() error { return tctrl.SetControlSetpoint(out, tp.Temperature) }},
		{"heater_range", func() error { return tctrl.SetHeaterRange(out, tp.HeaterSetting.Range()) }},
	}
	for _, st := range steps {
		if err := st.fn(); err != nil {
			return c.deviceErr(instrument.TemperatureController, st.op, err)
		}
	}
	return nil
}

func (c *core) temperatures(tctrl instrument.TemperatureControllerDevice) ([]float64, error) {
	temps, err := tctrl.KelvinReadings()
	if err != nil {
		return nil, c.deviceErr(instrument.TemperatureController, "kelvin_readings", err)
	}
	if len(temps) <= instrument.MagnetStageIndex {
		return nil, c.deviceErr(instrument.TemperatureController, "kelvin_readings",
			fmt.Errorf("expected at least %d channels, got %d", instrument.MagnetStageIndex+1, len(temps)))
	}
	monitor.StageTemperature.WithLabelValues("sample").Set(temps[instrument.SampleStageIndex])
	monitor.StageTemperature.WithLabelValues("magnet").Set(temps[instrument.MagnetStageIndex])
	return temps, nil
}

// stabilize 等待样品温度进入容差, 再静置 SettleDuration. onReached 在到温后, 静置前调用.
func (c *core) stabilize(tctrl instrument.TemperatureControllerDevice, target float64, onReached func() error) (bool, error) {
	for {
		if c.stop.ShouldStop() {
			return false, nil
		}
		temps, err := c.temperatures(tctrl)
		if err != nil {
			return false, err
		}
		if math.Abs(temps[instrument.SampleStageIndex]-target) < TemperatureTolerance {
			c.log.Infof("已达到设定温度 %.3f K, 等待 %s 稳定", target, SettleDuration)
			break
		}
		c.log.Infof("当前温度: %.3f K", temps[instrument.SampleStageIndex])
		c.clock.Sleep(StabilizePollInterval)
	}

	if onReached != nil {
		if err := onReached(); err != nil {
			return false, err
		}
	}

	if c.stop.ShouldStop() {
		return false, nil
	}
	c.clock.Sleep(SettleDuration)
	if c.stop.ShouldStop() {
		return false, nil
	}
	return true, nil
}

// checkMagnet 磁体过热时立即切断所有输出并关闭仪器, source 可以为 nil
func (c *core) checkMagnet(tctrl instrument.TemperatureControllerDevice, magnet instrument.MagnetSupplyDevice,
	source instrument.CurrentSourceDevice) error {
	temps, err := c.temperatures(tctrl)
	if err != nil {
		return err
	}
	magnetT := temps[instrument.MagnetStageIndex]
	if magnetT <= MagnetTemperatureLimit {
		c.log.Infof("磁体已冷却, 温度 %.3f K", magnetT)
		return nil
	}

	c.log.Errorf("磁体温度 %.3f K 超过 %.2f K, 紧急关闭", magnetT, MagnetTemperatureLimit)
	var f instrument.Faults
	if source != nil {
		f.Do(instrument.CurrentSource, c.inst.Address(instrument.CurrentSource), "zero_level",
			func() error { return source.SetLevel(0) })
	}
	f.Do(instrument.TemperatureController, c.inst.Address(instrument.TemperatureController), "heaters_off",
		tctrl.AllHeatersOff)
	f.Do(instrument.MagnetSupply, c.inst.Address(instrument.MagnetSupply), "zero_current",
		func() error { return magnet.SetCurrent(0) })
	if err := f.Err(); err != nil {
		c.log.Errorf("紧急关闭时出现错误: %v", err)
	}
	if err := c.inst.CloseAll(); err != nil {
		c.log.Errorf("紧急关闭仪器时出现错误: %v", err)
	}

	ierr := &InterlockError{MagnetTemperature: magnetT, Limit: MagnetTemperatureLimit}
	c.setState(Aborted, ierr)
	return ierr
}

func (c *core) emit(index int, sample protocol.Sample, percent float64) {
	monitor.Voltage.Set(sample.Voltage)
	monitor.SamplesEmitted.Inc()
	c.setProgress(percent)

	if err := c.sink.EmitSample(index, sample); err != nil {
		monitor.SinkErrors.Inc()
		c.log.Warnf("发布采样失败 [%d]: %v", index, err)
	}
	if err := c.sink.EmitProgress(percent); err != nil {
		monitor.SinkErrors.Inc()
		c.log.Warnf("发布进度失败: %v", err)
	}
}

func (c *core) abort(reason string) {
	c.log.Warn(reason)
	c.setState(Aborted, nil)
}

func (c *core) complete(msg string) {
	c.setProgress(100)
	c.setState(Completed, nil)
	c.log.Info(msg)
}

func (c *core) setProgress(percent float64) {
	c.progress.Store(math.Float64bits(percent))
	monitor.Progress.Set(percent)
}

func (c *core) setState(st State, cause error) {
	prev := State(c.state.Swap(int32(st)))
	monitor.RunState.Set(float64(st))
	c.log.Debugf("状态: %s -> %s", prev, st)

	if ss, ok := c.sink.(StateSink); ok {
		if err := ss.EmitState(st, cause); err != nil {
			monitor.SinkErrors.Inc()
			c.log.Warnf("发布状态失败: %v", err)
		}
	}
}
