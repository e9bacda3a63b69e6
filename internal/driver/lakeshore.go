package driver

import (
	"github.com/dinanjanan/cryostat-probe/internal/instrument"
	"github.com/dinanjanan/cryostat-probe/internal/scpi"
)

// Model336 Lakeshore 温控器, 串口连接
type Model336 struct {
	base
}

// NewModel336 创建温控器驱动
func NewModel336(conn scpi.Conn) *Model336 {
	return &Model336{base{conn}}
}

func (m *Model336) ResetInstrument() error {
	return m.Reset()
}

func (m *Model336) SetHeaterPID(output int, p, i, d float64) error {
	return m.send("PID %d,%s,%s,%s", output, num(p), num(i), num(d))
}

// SetHeaterSetup 最大电流使用用户值, maxPower 作为 max user current 下发
func (m *Model336) SetHeaterSetup(output int, res instrument.HeaterResistance, maxPower float64, units instrument.HeaterOutputUnits) error {
	return m.send("HTRSET %d,%d,0,%s,%d", output, int(res), num(maxPower), int(units))
}

func (m *Model336) SetHeaterOutputMode(output int, mode instrument.HeaterOutputMode, input instrument.InputChannel, persistent bool) error {
	return m.send("OUTMODE %d,%d,%d,%d", output, int(mode), int(input), bit(persistent))
}

func (m *Model336) SetSetpointRampParameter(output int, enabled bool, rate float64) error {
	return m.send("RAMP %d,%d,%s", output, bit(enabled), num(rate))
}

func (m *Model336) SetControlSetpoint(output int, value float64) error {
	return m.send("SETP %d,%s", output, num(value))
}

func (m *Model336) SetHeaterRange(output int, r instrument.HeaterRange) error {
	return m.send("RANGE %d,%d", output, int(r))
}

// KelvinReadings 返回 A-D 四个输入的开尔文读数
func (m *Model336) KelvinReadings() ([]float64, error) {
	return m.queryFloats("KRDG? 0")
}

// AllHeatersOff 关闭两路加热输出
func (m *Model336) AllHeatersOff() error {
	for _, out := range []int{1, 2} {
		if err := m.SetHeaterRange(out, instrument.RangeOff); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model336) Disconnect() error {
	return m.Close()
}

// LS625 超导磁体电源
type LS625 struct {
	base
}

// NewLS625 创建磁体电源驱动
func NewLS625(conn scpi.Conn) *LS625 {
	return &LS625{base{conn}}
}

// SetMagneticField 设定目标磁场, 单位 T
func (l *LS625) SetMagneticField(b float64) error {
	return l.send("SETF %s", num(b))
}

// SetRampRate 电流斜率, 单位 A/s
func (l *LS625) SetRampRate(rate float64) error {
	return l.send("RATE %s", num(rate))
}

func (l *LS625) RampRate() (float64, error) {
	return l.queryFloat("RATE?")
}

// MeasuredMagneticField 读取实测磁场, 不是设定值
func (l *LS625) MeasuredMagneticField() (float64, error) {
	return l.queryFloat("RDGF?")
}

func (l *LS625) SetCurrent(a float64) error {
	return l.send("SETI %s", num(a))
}
