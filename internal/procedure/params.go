package procedure

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dinanjanan/cryostat-probe/internal/instrument"
	"github.com/dinanjanan/cryostat-probe/internal/waveform"
)

// ErrInvalidParameters 参数校验失败
var ErrInvalidParameters = errors.New("invalid experiment parameters")

// Experiment 实验类型
type Experiment string

const (
	FieldSweep     Experiment = "field_sweep"
	SetTemperature Experiment = "set_temperature"
	SetCurrent     Experiment = "set_current"
	IVCurve        Experiment = "iv"
)

// Experiments 返回全部实验类型
func Experiments() []Experiment {
	return []Experiment{FieldSweep, SetTemperature, SetCurrent, IVCurve}
}

// ParseExperiment 解析实验类型, 空字符串视为扫场
func ParseExperiment(s string) (Experiment, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FieldSweep, nil
	}
	for _, e := range Experiments() {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: unknown experiment %q", ErrInvalidParameters, s)
}

// HeaterSetting 加热档位
type HeaterSetting string

const (
	HeaterLow    HeaterSetting = "low"
	HeaterMedium HeaterSetting = "medium"
	HeaterHigh   HeaterSetting = "high"
)

// PID 加热器 PID 参数
type PID struct {
	P, I, D float64
}

type heaterEntry struct {
	pid   PID
	rng   instrument.HeaterRange
	label string
}

var heaterTable = map[HeaterSetting]heaterEntry{
	HeaterLow:    {PID{50, 50, 0}, instrument.RangeLow, "Low (PID: 50, 50, 0 ; Range: Low)"},
	HeaterMedium: {PID{100, 50, 0}, instrument.RangeMedium, "Medium (PID: 100, 50, 0 ; Range: Medium)"},
	HeaterHigh:   {PID{100, 50, 0}, instrument.RangeHigh, "High (PID: 100, 50, 0 ; Range: High)"},
}

// ParseHeaterSetting 解析加热档位, 不区分大小写
func ParseHeaterSetting(s string) (HeaterSetting, error) {
	h := HeaterSetting(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := heaterTable[h]; !ok {
		return "", fmt.Errorf("%w: unknown heater setting %q", ErrInvalidParameters, s)
	}
	return h, nil
}

// PID 返回档位对应的 PID
func (h HeaterSetting) PID() PID {
	return heaterTable[h].pid
}

// Range 返回档位对应的加热功率档
func (h HeaterSetting) Range() instrument.HeaterRange {
	return heaterTable[h].rng
}

func (h HeaterSetting) String() string {
	if e, ok := heaterTable[h]; ok {
		return e.label
	}
	return string(h)
}

// Parameters 一次扫场实验的参数, 运行期间不可修改
type Parameters struct {
	SampleName     string            `yaml:"sample_name"`
	Temperature    float64           `yaml:"temperature"`
	CurrentLimit   float64           `yaml:"current_limit"`
	SetCurrent     float64           `yaml:"set_current"`
	MinField       float64           `yaml:"min_field"`
	MaxField       float64           `yaml:"max_field"`
	FieldStep      float64           `yaml:"field_step"`
	NPLC           float64           `yaml:"nplc"`
	HeaterSetting  HeaterSetting     `yaml:"heater_setting"`
	HeaterPower    float64           `yaml:"heater_power"`
	MagnetRampRate float64           `yaml:"magnet_ramp_rate"`
	FieldToCurrent float64           `yaml:"field_to_current"`
	Topology       waveform.Topology `yaml:"topology"`
}

// DefaultParameters 实验室常用参数
func DefaultParameters() Parameters {
	return Parameters{
		SampleName:     "DefaultSample",
		Temperature:    9,
		CurrentLimit:   1,
		SetCurrent:     1e-3,
		MinField:       -0.1,
		MaxField:       0.1,
		FieldStep:      10e-3,
		NPLC:           5,
		HeaterSetting:  HeaterLow,
		HeaterPower:    1.414,
		MagnetRampRate: 0.1,
		FieldToCurrent: 6.6472 * 2,
		Topology:       waveform.B1,
	}
}

// Validate 校验参数
func (p Parameters) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(strings.TrimSpace(p.SampleName) != "", "sample name is empty")
	check(positive(p.Temperature), "temperature must be > 0: %g", p.Temperature)
	check(positive(p.CurrentLimit), "current limit must be > 0: %g", p.CurrentLimit)
	check(p.SetCurrent != 0 && !math.IsNaN(p.SetCurrent), "set current must be non-zero: %g", p.SetCurrent)
	check(math.Abs(p.SetCurrent) <= p.CurrentLimit, "set current %g exceeds limit %g", p.SetCurrent, p.CurrentLimit)
	check(positive(p.FieldStep), "field step must be > 0: %g", p.FieldStep)
	check(p.MaxField >= p.MinField, "max field %g < min field %g", p.MaxField, p.MinField)
	check(!math.IsNaN(p.MinField) && !math.IsInf(p.MinField, 0), "min field is not finite")
	check(!math.IsNaN(p.MaxField) && !math.IsInf(p.MaxField, 0), "max field is not finite")
	check(positive(p.NPLC), "nplc must be > 0: %g", p.NPLC)
	check(positive(p.HeaterPower), "heater power must be > 0: %g", p.HeaterPower)
	check(positive(p.MagnetRampRate), "magnet ramp rate must be > 0: %g", p.MagnetRampRate)
	check(positive(p.FieldToCurrent), "field to current constant must be > 0: %g", p.FieldToCurrent)
	if _, ok := heaterTable[p.HeaterSetting]; !ok {
		errs = append(errs, fmt.Errorf("unknown heater setting %q", p.HeaterSetting))
	}
	if _, err := waveform.ParseTopology(string(p.Topology)); err != nil {
		errs = append(errs, err)
	}

	return joinInvalid(errs)
}

// Thermal 扫场参数中的温控部分
func (p Parameters) Thermal() TemperatureParameters {
	return TemperatureParameters{
		Temperature:   p.Temperature,
		HeaterSetting: p.HeaterSetting,
		HeaterPower:   p.HeaterPower,
	}
}

// TemperatureParameters 把样品稳定在设定温度
type TemperatureParameters struct {
	Temperature   float64       `yaml:"temperature"`
	HeaterSetting HeaterSetting `yaml:"heater_setting"`
	HeaterPower   float64       `yaml:"heater_power"`
}

// DefaultTemperatureParameters 默认 9 K, 低档加热
func DefaultTemperatureParameters() TemperatureParameters {
	return DefaultParameters().Thermal()
}

// Validate 校验参数
func (p TemperatureParameters) Validate() error {
	var errs []error
	if !positive(p.Temperature) {
		errs = append(errs, fmt.Errorf("temperature must be > 0: %g", p.Temperature))
	}
	if !positive(p.HeaterPower) {
		errs = append(errs, fmt.Errorf("heater power must be > 0: %g", p.HeaterPower))
	}
	if _, ok := heaterTable[p.HeaterSetting]; !ok {
		errs = append(errs, fmt.Errorf("unknown heater setting %q", p.HeaterSetting))
	}
	return joinInvalid(errs)
}

// CurrentParameters 电流源恒流输出
type CurrentParameters struct {
	Current      float64 `yaml:"current"`
	CurrentLimit float64 `yaml:"current_limit"`
}

// DefaultCurrentParameters 默认 1 mA, 限流 10 mA
func DefaultCurrentParameters() CurrentParameters {
	return CurrentParameters{Current: 1e-3, CurrentLimit: 10e-3}
}

// Validate 校验参数
func (p CurrentParameters) Validate() error {
	var errs []error
	if !positive(p.CurrentLimit) {
		errs = append(errs, fmt.Errorf("current limit must be > 0: %g", p.CurrentLimit))
	}
	if math.IsNaN(p.Current) || math.Abs(p.Current) > p.CurrentLimit {
		errs = append(errs, fmt.Errorf("current %g exceeds limit %g", p.Current, p.CurrentLimit))
	}
	return joinInvalid(errs)
}

// IVParameters 电流回线 IV 测量
type IVParameters struct {
	SampleName  string        `yaml:"sample_name"`
	MinCurrent  float64       `yaml:"min_current"`
	MaxCurrent  float64       `yaml:"max_current"`
	CurrentStep float64       `yaml:"current_step"`
	Delay       time.Duration `yaml:"delay"`
	NPLC        float64       `yaml:"nplc"`
}

// DefaultIVParameters ±2 mA, 步长 20 uA
func DefaultIVParameters() IVParameters {
	return IVParameters{
		SampleName:  "YBCO1",
		MinCurrent:  -2e-3,
		MaxCurrent:  2e-3,
		CurrentStep: 2e-5,
		Delay:       20 * time.Millisecond,
		NPLC:        1,
	}
}

// Validate 校验参数
func (p IVParameters) Validate() error {
	var errs []error
	if strings.TrimSpace(p.SampleName) == "" {
		errs = append(errs, errors.New("sample name is empty"))
	}
	if !positive(p.MaxCurrent) {
		errs = append(errs, fmt.Errorf("max current must be > 0: %g", p.MaxCurrent))
	}
	if math.IsNaN(p.MinCurrent) || math.IsInf(p.MinCurrent, 0) || p.MinCurrent > p.MaxCurrent {
		errs = append(errs, fmt.Errorf("min current %g must be finite and <= max current %g", p.MinCurrent, p.MaxCurrent))
	}
	if !positive(p.CurrentStep) {
		errs = append(errs, fmt.Errorf("current step must be > 0: %g", p.CurrentStep))
	}
	if p.Delay < 0 {
		errs = append(errs, fmt.Errorf("delay must be >= 0: %s", p.Delay))
	}
	if !positive(p.NPLC) {
		errs = append(errs, fmt.Errorf("nplc must be > 0: %g", p.NPLC))
	}
	return joinInvalid(errs)
}

func joinInvalid(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidParameters, errors.Join(errs...))
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
