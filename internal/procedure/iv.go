package procedure

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dinanjanan/cryostat-probe/internal/instrument"
	"github.com/dinanjanan/cryostat-probe/internal/waveform"
	"github.com/dinanjanan/cryostat-probe/pkg/protocol"
)

const (
	// ZeroCurrentThreshold 低于该电流时电阻记为 NaN
	ZeroCurrentThreshold = 1e-10
	IVSetupSettle        = time.Second
)

// IVSweep 电流回线 IV 测量: 0 -> max -> min -> 0, 每点读取电压
type IVSweep struct {
	core

	params   IVParameters
	currents []float64

	meter  instrument.VoltmeterDevice
	source instrument.CurrentSourceDevice
}

// NewIVSweep 校验参数并生成电流序列
func NewIVSweep(params IVParameters, inst Instruments, opts ...Option) (*IVSweep, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	wave, err := waveform.Generate(params.MinCurrent, params.MaxCurrent, params.CurrentStep, waveform.B1)
	if err != nil {
		return nil, fmt.Errorf("生成电流序列失败: %w", err)
	}

	v := &IVSweep{params: params, currents: wave.Sweep}
	v.init(inst, opts, logrus.Fields{"experiment": string(IVCurve), "sample": params.SampleName})
	return v, nil
}

// Currents 本次运行的电流设定点
func (v *IVSweep) Currents() []float64 {
	return v.currents
}

func (v *IVSweep) Points() int {
	return len(v.currents)
}

// Run 配置电压表和电流源后逐点测量
func (v *IVSweep) Run() error {
	return v.run(func() error {
		if err := v.startup(); err != nil {
			return err
		}
		return v.execute()
	}, v.Shutdown)
}

func (v *IVSweep) startup() error {
	v.setState(Startup, nil)
	v.inst.ConnectAll()
	var ok bool
	if v.meter, ok = v.inst.Voltmeter(); !ok {
		return v.unavailable(instrument.Voltmeter)
	}
	if v.source, ok = v.inst.CurrentSource(); !ok {
		return v.unavailable(instrument.CurrentSource)
	}

	if err := v.meter.Reset(); err != nil {
		return v.deviceErr(instrument.Voltmeter, "reset", err)
	}
	if err := v.meter.Configure(VoltmeterChannel, true, v.params.NPLC); err != nil {
		return v.deviceErr(instrument.Voltmeter, "configure", err)
	}

	maxI := v.params.MaxCurrent
	steps := []struct {
		op string
		fn func() error
	}{
		{"reset", v.source.Reset},
		{"enable", func() error { return v.source.SetEnabled(true) }},
		{"set_mode", func() error { return v.source.SetMode(instrument.ModeCurrent) }},
		{"set_range", func() error { return v.source.SetRange(maxI * 5) }},
		{"set_limit", func() error { return v.source.SetCurrentLimit(maxI * 1.2) }},
	}
	for _, st := range steps {
		if err := st.fn(); err != nil {
			return v.deviceErr(instrument.CurrentSource, st.op, err)
		}
	}

	v.log.Info("IV 测量仪器配置完成")
	v.clock.Sleep(IVSetupSettle)
	v.setState(Ready, nil)
	return nil
}

func (v *IVSweep) execute() error {
	if v.stop.ShouldStop() {
		v.abort("执行前收到停止请求")
		return nil
	}
	v.setState(Sweeping, nil)
	v.log.Infof("开始电流扫描, 共 %d 点", len(v.currents))

	total := len(v.currents)
	for i, current := range v.currents {
		if err := v.drive(current); err != nil {
			return err
		}
		v.clock.Sleep(v.params.Delay)

		voltage, err := v.meter.ReadVoltage()
		if err != nil {
			return v.deviceErr(instrument.Voltmeter, "read_voltage", err)
		}
		v.emit(i, protocol.Sample{
			Current:    current,
			Voltage:    voltage,
			Resistance: Resistance(voltage, current),
		}, 100*float64(i)/float64(total))

		if v.stop.ShouldStop() {
			v.abort("测量中收到停止请求")
			return nil
		}
	}

	v.complete("IV 测量完成")
	return nil
}

func (v *IVSweep) drive(current float64) error {
	if err := v.source.SetRange(v.params.MaxCurrent * 1.2); err != nil {
		return v.deviceErr(instrument.CurrentSource, "set_range", err)
	}
	if err := v.source.SetLevel(current); err != nil {
		return v.deviceErr(instrument.CurrentSource, "set_level", err)
	}
	if err := v.source.SetEnabled(true); err != nil {
		return v.deviceErr(instrument.CurrentSource, "enable", err)
	}
	return nil
}

// Resistance 电压除以电流, 电流接近 0 时为 NaN
func Resistance(voltage, current float64) float64 {
	if math.Abs(current) <= ZeroCurrentThreshold {
		return math.NaN()
	}
	return voltage / current
}

// Shutdown 电流归零并关闭全部仪器
func (v *IVSweep) Shutdown() error {
	return v.shutdown(v.inst.CloseAll)
}
