// Package sim 提供不依赖硬件的模拟仪器, 用于离线运行和测试
package sim

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/dinanjanan/cryostat-probe/internal/instrument"
)

// ErrOffline 模拟仪器被配置为离线
var ErrOffline = errors.New("simulated instrument offline")

// Config 模拟台参数
type Config struct {
	SampleTemperature float64 // 初始样品温度 K
	MagnetTemperature float64 // 磁体温度 K, 保持不变
	Resistance        float64 // 零场电阻 Ohm
	Magnetoresistance float64 // R(B) = R0 * (1 + MR * B^2)
	ThermalRate       float64 // 每次读取向设定点靠近的比例, (0, 1]
	MagnetLag         float64 // 每次读取剩余的磁场差比例, 0 表示立即到位
	Offline           map[instrument.Role]bool
	Faults            map[string]error // "role.op" -> 该操作返回的错误
}

// DefaultConfig 典型低温环境
func DefaultConfig() Config {
	return Config{
		SampleTemperature: 4.2,
		MagnetTemperature: 4.0,
		Resistance:        120,
		Magnetoresistance: 0.8,
		ThermalRate:       0.5,
	}
}

// Rig 一组共享物理状态的模拟仪器
type Rig struct {
	cfg Config

	mu         sync.Mutex
	journal    []string
	sampleT    float64
	setpoint   float64
	heaterOn   bool
	field      float64
	target     float64
	rampRate   float64
	level      float64
	enabled    bool
	fieldTrail []float64
}

// NewRig 创建模拟台
func NewRig(cfg Config) *Rig {
	if cfg.ThermalRate <= 0 || cfg.ThermalRate > 1 {
		cfg.ThermalRate = 1
	}
	return &Rig{cfg: cfg, sampleT: cfg.SampleTemperature, setpoint: cfg.SampleTemperature}
}

// Dial 实现 instrument.DialFunc
func (r *Rig) Dial(role instrument.Role, address string) (instrument.Device, error) {
	r.record(role, "dial", address)
	if r.cfg.Offline[role] {
		return nil, fmt.Errorf("%w: %s at %s", ErrOffline, role, address)
	}
	base := device{rig: r, role: role}
	switch role {
	case instrument.Voltmeter:
		return &voltmeter{base}, nil
	case instrument.CurrentSource:
		return &currentSource{base}, nil
	case instrument.TemperatureController:
		return &tempController{base}, nil
	case instrument.MagnetSupply:
		return &magnet{base}, nil
	default:
		return &base, nil
	}
}

// Journal 返回全部已执行命令
func (r *Rig) Journal() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.journal...)
}

// Count 统计以 prefix 开头的命令数
func (r *Rig) Count(prefix string) int {
	n := 0
	for _, c := range r.Journal() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// CommandedFields 返回依次设定过的磁场
func (r *Rig) CommandedFields() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.fieldTrail...)
}

// Field 当前实际磁场
func (r *Rig) Field() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.field
}

func (r *Rig) record(role instrument.Role, op string, args ...any) {
	entry := role.String() + "." + op
	if len(args) > 0 {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a)
		}
		entry += "(" + strings.Join(parts, ",") + ")"
	}
	r.mu.Lock()
	r.journal = append(r.journal, entry)
	r.mu.Unlock()
}

func (r *Rig) fault(role instrument.Role, op string) error {
	return r.cfg.Faults[role.String()+"."+op]
}

func (r *Rig) resistance() float64 {
	return r.cfg.Resistance * (1 + r.cfg.Magnetoresistance*r.field*r.field)
}

type device struct {
	rig  *Rig
	role instrument.Role
}

func (d *device) do(op string, args ...any) error {
	d.rig.record(d.role, op, args...)
	return d.rig.fault(d.role, op)
}

func (d *device) Close() error { return d.do("close") }
func (d *device) Reset() error { return d.do("reset") }

type voltmeter struct{ device }

func (v *voltmeter) Configure(channel int, autoRange bool, nplc float64) error {
	return v.do("configure", channel, autoRange, nplc)
}

func (v *voltmeter) ReadVoltage() (float64, error) {
	if err := v.do("read_voltage"); err != nil {
		return 0, err
	}
	r := v.rig
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return 0, nil
	}
	return r.level * r.resistance(), nil
}

type currentSource struct{ device }

func (c *currentSource) SetMode(mode instrument.SourceMode) error { return c.do("set_mode", mode) }
func (c *currentSource) SetRange(v float64) error                 { return c.do("set_range", v) }
func (c *currentSource) SetCurrentLimit(v float64) error          { return c.do("set_limit", v) }
func (c *currentSource) Shutdown() error                          { return c.do("shutdown") }

func (c *currentSource) SetLevel(v float64) error {
	if err := c.do("set_level", v); err != nil {
		return err
	}
	c.rig.mu.Lock()
	c.rig.level = v
	c.rig.mu.Unlock()
	return nil
}

func (c *currentSource) SetEnabled(on bool) error {
	if err := c.do("set_enabled", on); err != nil {
		return err
	}
	c.rig.mu.Lock()
	c.rig.enabled = on
	c.rig.mu.Unlock()
	return nil
}

type tempController struct{ device }

func (t *tempController) ResetInstrument() error { return t.do("reset_instrument") }
func (t *tempController) Disconnect() error      { return t.do("disconnect") }

func (t *tempController) SetHeaterPID(output int, p, i, d float64) error {
	return t.do("pid", output, p, i, d)
}

func (t *tempController) SetHeaterSetup(output int, res instrument.HeaterResistance, maxPower float64, units instrument.HeaterOutputUnits) error {
	return t.do("heater_setup", output, int(res), maxPower, int(units))
}

func (t *tempController) SetHeaterOutputMode(output int, mode instrument.HeaterOutputMode, input instrument.InputChannel, persistent bool) error {
	return t.do("output_mode", output, int(mode), int(input), persistent)
}

func (t *tempController) SetSetpointRampParameter(output int, enabled bool, rate float64) error {
	return t.do("setpoint_ramp", output, enabled, rate)
}

func (t *tempController) SetControlSetpoint(output int, value float64) error {
	if err := t.do("setpoint", output, value); err != nil {
		return err
	}
	t.rig.mu.Lock()
	t.rig.setpoint = value
	t.rig.mu.Unlock()
	return nil
}

func (t *tempController) SetHeaterRange(output int, rng instrument.HeaterRange) error {
	if err := t.do("heater_range", output, rng); err != nil {
		return err
	}
	t.rig.mu.Lock()
	t.rig.heaterOn = rng != instrument.RangeOff
	t.rig.mu.Unlock()
	return nil
}

func (t *tempController) AllHeatersOff() error {
	if err := t.do("heaters_off"); err != nil {
		return err
	}
	t.rig.mu.Lock()
	t.rig.heaterOn = false
	t.rig.mu.Unlock()
	return nil
}

// KelvinReadings 样品温度每次读取向设定点靠近一步
func (t *tempController) KelvinReadings() ([]float64, error) {
	if err := t.do("kelvin"); err != nil {
		return nil, err
	}
	r := t.rig
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.heaterOn {
		r.sampleT += (r.setpoint - r.sampleT) * r.cfg.ThermalRate
		if math.Abs(r.setpoint-r.sampleT) < 1e-3 {
			r.sampleT = r.setpoint
		}
	}
	return []float64{r.sampleT, r.cfg.MagnetTemperature, 0, 0}, nil
}

type magnet struct{ device }

func (m *magnet) SetMagneticField(b float64) error {
	if err := m.do("set_field", b); err != nil {
		return err
	}
	r := m.rig
	r.mu.Lock()
	r.target = b
	r.fieldTrail = append(r.fieldTrail, b)
	if r.cfg.MagnetLag == 0 {
		r.field = b
	}
	r.mu.Unlock()
	return nil
}

func (m *magnet) SetRampRate(rate float64) error {
	if err := m.do("set_ramp_rate", rate); err != nil {
		return err
	}
	m.rig.mu.Lock()
	m.rig.rampRate = rate
	m.rig.mu.Unlock()
	return nil
}

func (m *magnet) RampRate() (float64, error) {
	if err := m.do("ramp_rate"); err != nil {
		return 0, err
	}
	m.rig.mu.Lock()
	defer m.rig.mu.Unlock()
	return m.rig.rampRate, nil
}

// MeasuredMagneticField 按 MagnetLag 逐步追随设定值
func (m *magnet) MeasuredMagneticField() (float64, error) {
	if err := m.do("measured_field"); err != nil {
		return 0, err
	}
	r := m.rig
	r.mu.Lock()
	defer r.mu.Unlock()
	r.field = r.target + (r.field-r.target)*r.cfg.MagnetLag
	if math.Abs(r.field-r.target) < 1e-6 {
		r.field = r.target
	}
	return r.field, nil
}

func (m *magnet) SetCurrent(a float64) error {
	if err := m.do("set_current", a); err != nil {
		return err
	}
	if a == 0 {
		m.rig.mu.Lock()
		m.rig.target = 0
		m.rig.mu.Unlock()
	}
	return nil
}
