package procedure

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dinanjanan/cryostat-probe/internal/instrument"
	"github.com/dinanjanan/cryostat-probe/internal/monitor"
	"github.com/dinanjanan/cryostat-probe/internal/waveform"
	"github.com/dinanjanan/cryostat-probe/pkg/protocol"
)

var (
	// ErrRoleUnavailable 实验必需的仪器未连接
	ErrRoleUnavailable = errors.New("required instrument unavailable")
	// ErrMagnetOverheated 磁体温度超过安全上限
	ErrMagnetOverheated = errors.New("magnet stage overheated")
	// ErrInvalidState 当前状态下不允许该操作
	ErrInvalidState = errors.New("invalid procedure state")
)

// 流程常量
const (
	TemperatureTolerance   = 0.05
	MagnetTemperatureLimit = 5.1
	FieldZeroTolerance     = 4e-4
	VoltmeterChannel       = 1

	StabilizePollInterval = time.Second
	SettleDuration        = 10 * time.Second
	PointSettle           = 5 * time.Millisecond
	FieldZeroPollInterval = 5 * time.Second
)

// InterlockError 磁体过热联锁触发, 不可恢复
type InterlockError struct {
	MagnetTemperature float64
	Limit             float64
}

func (e *InterlockError) Error() string {
	return fmt.Sprintf("magnet stage at %.3f K exceeds %.2f K", e.MagnetTemperature, e.Limit)
}

func (e *InterlockError) Unwrap() error {
	return ErrMagnetOverheated
}

// Instruments 扫场流程需要的仪器集合, 由 instrument.Registry 实现
type Instruments interface {
	ConnectAll()
	Voltmeter() (instrument.VoltmeterDevice, bool)
	CurrentSource() (instrument.CurrentSourceDevice, bool)
	TemperatureController() (instrument.TemperatureControllerDevice, bool)
	MagnetSupply() (instrument.MagnetSupplyDevice, bool)
	Address(role instrument.Role) string
	ResetAll() error
	CloseAll() error
	Release() error
}

// StateSink 可选接口, 接收状态变化
type StateSink interface {
	EmitState(state State, err error) error
}

// Sweep 恒温下的回线扫场流程: 启动 -> 执行 -> 关闭
type Sweep struct {
	core

	params Parameters
	wave   waveform.Waveform

	meter  instrument.VoltmeterDevice
	source instrument.CurrentSourceDevice
	tctrl  instrument.TemperatureControllerDevice
	magnet instrument.MagnetSupplyDevice
}

// NewSweep 校验参数并生成波形, 此时不接触任何仪器
func NewSweep(params Parameters, inst Instruments, opts ...Option) (*Sweep, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	wave, err := waveform.Generate(params.MinField, params.MaxField, params.FieldStep, params.Topology)
	if err != nil {
		return nil, fmt.Errorf("生成扫场波形失败: %w", err)
	}

	s := &Sweep{params: params, wave: wave}
	s.init(inst, opts, logrus.Fields{"sample": params.SampleName})
	return s, nil
}

// Waveform 本次运行的设定点
func (s *Sweep) Waveform() waveform.Waveform {
	return s.wave
}

// Points 记录的采样点数
func (s *Sweep) Points() int {
	return len(s.wave.Sweep)
}

// Run 依次执行启动与测量, 无论结果如何都会关闭仪器
//
// 用户停止不算错误, 返回 nil 且状态为 Aborted.
func (s *Sweep) Run() error {
	return s.run(func() error {
		if err := s.Startup(); err != nil {
			return err
		}
		return s.Execute()
	}, s.Shutdown)
}

// Startup 连接并配置仪器, 稳定样品温度, 检查磁体温度
func (s *Sweep) Startup() error {
	if st := s.State(); st != Idle {
		return fmt.Errorf("%w: startup from %s", ErrInvalidState, st)
	}
	s.setState(Startup, nil)

	if err := s.acquire(); err != nil {
		return err
	}
	if err := s.inst.ResetAll(); err != nil {
		s.log.Warnf("复位仪器时出现错误: %v", err)
	}
	s.log.Info("仪器已连接并复位")

	if err := s.configure(); err != nil {
		return err
	}

	s.setState(Stabilizing, nil)
	reached, err := s.stabilize(s.tctrl, s.params.Temperature, s.readInitialVoltage)
	if err != nil {
		return err
	}
	if !reached {
		s.abort("稳温阶段收到停止请求")
		return nil
	}

	if err := s.checkMagnet(s.tctrl, s.magnet, s.source); err != nil {
		return err
	}
	s.setState(Ready, nil)
	return nil
}

func (s *Sweep) acquire() error {
	s.inst.ConnectAll()
	var ok bool
	if s.meter, ok = s.inst.Voltmeter(); !ok {
		return s.unavailable(instrument.Voltmeter)
	}
	if s.tctrl, ok = s.inst.TemperatureController(); !ok {
		return s.unavailable(instrument.TemperatureController)
	}
	if s.magnet, ok = s.inst.MagnetSupply(); !ok {
		return s.unavailable(instrument.MagnetSupply)
	}
	if s.source, ok = s.inst.CurrentSource(); !ok {
		s.source = nil
		s.log.WithField("address", s.inst.Address(instrument.CurrentSource)).
			Warn("电流源不可用, 跳过激励电流配置")
	}
	return nil
}

func (s *Sweep) configure() error {
	p := s.params

	if err := s.meter.Configure(VoltmeterChannel, true, p.NPLC); err != nil {
		return s.deviceErr(instrument.Voltmeter, "configure", err)
	}

	if s.source != nil {
		steps := []struct {
			op string
			fn func() error
		}{
			{"set_mode", func() error { return s.source.SetMode(instrument.ModeCurrent) }},
			{"set_range", func() error { return s.source.SetRange(p.CurrentLimit) }},
			{"set_level", func() error { return s.source.SetLevel(p.SetCurrent) }},
			{"set_limit", func() error { return s.source.SetCurrentLimit(p.CurrentLimit) }},
			{"enable", func() error { return s.source.SetEnabled(true) }},
		}
		for _, st := range steps {
			if err := st.fn(); err != nil {
				return s.deviceErr(instrument.CurrentSource, st.op, err)
			}
		}
	}

	if err := s.configureHeater(s.tctrl, p.Thermal()); err != nil {
		return err
	}

	if err := s.magnet.SetRampRate(p.MagnetRampRate); err != nil {
		return s.deviceErr(instrument.MagnetSupply, "set_ramp_rate", err)
	}

	s.log.WithFields(logrus.Fields{
		"temperature": p.Temperature,
		"heater":      string(p.HeaterSetting),
		"ramp_rate":   p.MagnetRampRate,
	}).Info("仪器配置完成")
	return nil
}

func (s *Sweep) readInitialVoltage() error {
	voltage, err := s.meter.ReadVoltage()
	if err != nil {
		return s.deviceErr(instrument.Voltmeter, "read_voltage", err)
	}
	s.log.Infof("初始电压: %g V", voltage)
	return nil
}

// Execute 按波形扫场并采样
func (s *Sweep) Execute() error {
	switch st := s.State(); st {
	case Aborted:
		return nil
	case Ready:
	default:
		return fmt.Errorf("%w: execute from %s", ErrInvalidState, st)
	}
	if s.stop.ShouldStop() {
		s.abort("执行前收到停止请求")
		return nil
	}

	s.setState(Sweeping, nil)
	s.log.WithFields(logrus.Fields{
		"topology": string(s.params.Topology),
		"points":   len(s.wave.Sweep),
	}).Info("开始执行扫场")

	if len(s.wave.PrePassover) > 0 {
		s.log.Info("把磁场带到起点, 暂不记录数据")
		stopped, err := s.ramp(s.wave.PrePassover)
		if err != nil {
			return err
		}
		if stopped {
			return s.cancel()
		}
		s.log.Info("已到达起点, 开始测量")
	}

	total := len(s.wave.Sweep)
	for i, setpoint := range s.wave.Sweep {
		if err := s.command(setpoint); err != nil {
			return err
		}

		voltage, err := s.meter.ReadVoltage()
		if err != nil {
			return s.deviceErr(instrument.Voltmeter, "read_voltage", err)
		}
		s.log.Debugf("电压测量: %g V", voltage)
		field, err := s.measuredField()
		if err != nil {
			return err
		}

		sample := protocol.Sample{
			Field:      field,
			Current:    s.params.SetCurrent,
			Voltage:    voltage,
			Resistance: voltage / s.params.SetCurrent,
		}
		s.emit(i, sample, 100*float64(i)/float64(total))
		s.clock.Sleep(PointSettle)

		if s.stop.ShouldStop() {
			return s.cancel()
		}
	}

	if len(s.wave.PostPassover) > 0 {
		s.log.Info("测量完成, 把磁场送回终点")
		stopped, err := s.ramp(s.wave.PostPassover)
		if err != nil {
			return err
		}
		if stopped {
			return s.cancel()
		}
	}

	s.complete("扫场执行完毕")
	return nil
}

// ramp 只移动磁场不采样, 返回是否收到停止请求
func (s *Sweep) ramp(points []float64) (bool, error) {
	for _, setpoint := range points {
		if err := s.command(setpoint); err != nil {
			return false, err
		}
		if _, err := s.measuredField(); err != nil {
			return false, err
		}
		s.clock.Sleep(PointSettle)
		if s.stop.ShouldStop() {
			return true, nil
		}
	}
	return false, nil
}

// command 设定磁场并等待电源按电流斜率爬升到位
func (s *Sweep) command(field float64) error {
	if err := s.magnet.SetMagneticField(field); err != nil {
		return s.deviceErr(instrument.MagnetSupply, "set_field", err)
	}
	wait, err := s.rampDuration()
	if err != nil {
		return err
	}
	s.clock.Sleep(wait)
	return nil
}

// rampDuration 一步磁场对应的电流变化除以电流斜率
func (s *Sweep) rampDuration() (time.Duration, error) {
	rate, err := s.magnet.RampRate()
	if err != nil {
		return 0, s.deviceErr(instrument.MagnetSupply, "ramp_rate", err)
	}
	if !(rate > 0) {
		rate = s.params.MagnetRampRate
	}
	secs := s.params.FieldStep * s.params.FieldToCurrent / rate
	return time.Duration(secs * float64(time.Second)), nil
}

func (s *Sweep) measuredField() (float64, error) {
	field, err := s.magnet.MeasuredMagneticField()
	if err != nil {
		return 0, s.deviceErr(instrument.MagnetSupply, "measured_field", err)
	}
	monitor.MagneticField.Set(field)
	return field, nil
}

// cancel 用户停止: 复位仪器并等待磁场真正回零
func (s *Sweep) cancel() error {
	s.abort("测量中收到停止请求")
	if err := s.inst.ResetAll(); err != nil {
		s.log.Warnf("复位仪器时出现错误: %v", err)
	}

	s.log.Info("等待磁场回到零")
	for {
		field, err := s.measuredField()
		if err != nil {
			return fmt.Errorf("等待磁场回零失败: %w", err)
		}
		if math.Abs(field) < FieldZeroTolerance {
			break
		}
		s.log.Infof("当前磁场 %.5f T", field)
		s.clock.Sleep(FieldZeroPollInterval)
	}
	s.log.Info("磁场已成功回零")
	return nil
}

// Shutdown 关闭全部仪器, 可重复调用, 失败只记录不上抛
func (s *Sweep) Shutdown() error {
	return s.shutdown(s.inst.CloseAll)
}
