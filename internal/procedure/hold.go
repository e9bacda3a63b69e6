package procedure

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/dinanjanan/cryostat-probe/internal/instrument"
)

// TemperatureHold 把样品稳定在设定温度后断开连接, 加热回路保持工作
type TemperatureHold struct {
	core
	params TemperatureParameters
}

// NewTemperatureHold 校验参数, 此时不接触任何仪器
func NewTemperatureHold(params TemperatureParameters, inst Instruments, opts ...Option) (*TemperatureHold, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	h := &TemperatureHold{params: params}
	h.init(inst, opts, logrus.Fields{"experiment": string(SetTemperature)})
	return h, nil
}

func (h *TemperatureHold) Points() int { return 0 }

// Run 稳温并检查磁体温度, 过热时按联锁处理
func (h *TemperatureHold) Run() error {
	return h.run(h.hold, h.Shutdown)
}

func (h *TemperatureHold) hold() error {
	h.setState(Startup, nil)
	h.inst.ConnectAll()
	tctrl, ok := h.inst.TemperatureController()
	if !ok {
		return h.unavailable(instrument.TemperatureController)
	}
	magnet, ok := h.inst.MagnetSupply()
	if !ok {
		return h.unavailable(instrument.MagnetSupply)
	}

	if err := tctrl.ResetInstrument(); err != nil {
		return h.deviceErr(instrument.TemperatureController, "reset", err)
	}
	if err := magnet.SetMagneticField(0); err != nil {
		return h.deviceErr(instrument.MagnetSupply, "zero_field", err)
	}
	if err := h.configureHeater(tctrl, h.params); err != nil {
		return err
	}

	h.setState(Stabilizing, nil)
	reached, err := h.stabilize(tctrl, h.params.Temperature, nil)
	if err != nil {
		return err
	}
	if !reached {
		h.abort("稳温阶段收到停止请求")
		return nil
	}
	if err := h.checkMagnet(tctrl, magnet, nil); err != nil {
		return err
	}

	h.complete("样品温度已稳定, 加热回路保持工作")
	return nil
}

// Shutdown 完成时磁场归零后断开连接, 不关闭加热器; 未完成时关闭全部仪器
func (h *TemperatureHold) Shutdown() error {
	completed := h.State() == Completed
	return h.shutdown(func() error {
		if !completed {
			return h.inst.CloseAll()
		}
		var f instrument.Faults
		if magnet, ok := h.inst.MagnetSupply(); ok {
			f.Do(instrument.MagnetSupply, h.inst.Address(instrument.MagnetSupply), "zero_field",
				func() error { return magnet.SetMagneticField(0) })
		}
		return errors.Join(f.Err(), h.inst.Release())
	})
}

// CurrentHold 让电流源保持恒流输出后断开连接
type CurrentHold struct {
	core
	params CurrentParameters
}

// NewCurrentHold 校验参数, 此时不接触任何仪器
func NewCurrentHold(params CurrentParameters, inst Instruments, opts ...Option) (*CurrentHold, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	h := &CurrentHold{params: params}
	h.init(inst, opts, logrus.Fields{"experiment": string(SetCurrent)})
	return h, nil
}

func (h *CurrentHold) Points() int { return 0 }

// Run 配置电流源输出, 完成后输出保持开启
func (h *CurrentHold) Run() error {
	return h.run(h.hold, h.Shutdown)
}

func (h *CurrentHold) hold() error {
	h.setState(Startup, nil)
	if h.stop.ShouldStop() {
		h.abort("启动前收到停止请求")
		return nil
	}
	h.inst.ConnectAll()
	source, ok := h.inst.CurrentSource()
	if !ok {
		return h.unavailable(instrument.CurrentSource)
	}

	p := h.params
	steps := []struct {
		op string
		fn func() error
	}{
		{"reset", source.Reset},
		{"set_mode", func() error { return source.SetMode(instrument.ModeCurrent) }},
		{"set_range", func() error { return source.SetRange(p.CurrentLimit) }},
		{"set_level", func() error { return source.SetLevel(p.Current) }},
		{"set_limit", func() error { return source.SetCurrentLimit(p.CurrentLimit) }},
		{"enable", func() error { return source.SetEnabled(true) }},
	}
	for _, st := range steps {
		if err := st.fn(); err != nil {
			return h.deviceErr(instrument.CurrentSource, st.op, err)
		}
	}

	h.complete("电流源已输出设定电流")
	h.log.Infof("输出电流 %g A, 限流 %g A", p.Current, p.CurrentLimit)
	return nil
}

// Shutdown 完成时断开连接, 不改变电流源输出; 未完成时关闭全部仪器
func (h *CurrentHold) Shutdown() error {
	release := h.inst.CloseAll
	if h.State() == Completed {
		release = h.inst.Release
	}
	return h.shutdown(release)
}
