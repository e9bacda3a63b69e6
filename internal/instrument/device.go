package instrument

import "fmt"

// SampleHeaterOutput 样品台加热器所在的温控器输出
const SampleHeaterOutput = 2

// 温控器读数中各通道的下标
const (
	SampleStageIndex = 0
	MagnetStageIndex = 1
)

// Device 所有仪器的公共能力: 释放通信通道
type Device interface {
	Close() error
}

// SourceMode 电流源输出模式
type SourceMode string

const (
	ModeCurrent SourceMode = "current"
	ModeVoltage SourceMode = "voltage"
)

// HeaterResistance 加热器电阻档
type HeaterResistance int

const (
	Heater25Ohm HeaterResistance = 1
	Heater50Ohm HeaterResistance = 2
)

// HeaterOutputUnits 加热器输出显示单位
type HeaterOutputUnits int

const (
	UnitsCurrent HeaterOutputUnits = 1
	UnitsPower   HeaterOutputUnits = 2
)

// HeaterOutputMode 加热器控制模式
type HeaterOutputMode int

const (
	OutputOff        HeaterOutputMode = 0
	OutputClosedLoop HeaterOutputMode = 1
	OutputZone       HeaterOutputMode = 2
	OutputOpenLoop   HeaterOutputMode = 3
)

// InputChannel 温控器输入通道
type InputChannel int

const (
	ChannelNone InputChannel = iota
	ChannelA
	ChannelB
	ChannelC
	ChannelD
)

// HeaterRange 加热器功率档
type HeaterRange int

const (
	RangeOff HeaterRange = iota
	RangeLow
	RangeMedium
	RangeHigh
)

func (r HeaterRange) String() string {
	switch r {
	case RangeOff:
		return "off"
	case RangeLow:
		return "low"
	case RangeMedium:
		return "medium"
	case RangeHigh:
		return "high"
	default:
		return fmt.Sprintf("range(%d)", int(r))
	}
}

// VoltmeterDevice 纳伏表 (Keithley 2182)
type VoltmeterDevice interface {
	Device
	Reset() error
	Configure(channel int, autoRange bool, nplc float64) error
	ReadVoltage() (float64, error)
}

// CurrentSourceDevice 电流源 (Yokogawa GS200)
type CurrentSourceDevice interface {
	Device
	Reset() error
	SetMode(mode SourceMode) error
	SetRange(r float64) error
	SetLevel(level float64) error
	SetCurrentLimit(limit float64) error
	SetEnabled(enabled bool) error
	Shutdown() error
}

// TemperatureControllerDevice 温控器 (Lakeshore 336)
type TemperatureControllerDevice interface {
	Device
	ResetInstrument() error
	SetHeaterPID(output int, p, i, d float64) error
	SetHeaterSetup(output int, resistance HeaterResistance, maxPower float64, units HeaterOutputUnits) error
	SetHeaterOutputMode(output int, mode HeaterOutputMode, input InputChannel, persistent bool) error
	SetSetpointRampParameter(output int, enabled bool, rate float64) error
	SetControlSetpoint(output int, value float64) error
	SetHeaterRange(output int, r HeaterRange) error
	KelvinReadings() ([]float64, error)
	AllHeatersOff() error
	Disconnect() error
}

// MagnetSupplyDevice 磁体电源 (Lakeshore 625)
type MagnetSupplyDevice interface {
	Device
	SetMagneticField(field float64) error
	SetRampRate(rate float64) error
	RampRate() (float64, error)
	MeasuredMagneticField() (float64, error)
	SetCurrent(current float64) error
}

// LockInDevice 锁相放大器 (SR830)
type LockInDevice interface {
	Device
	Reset() error
}

// SecondaryCurrentSourceDevice 备用电流源 (Keithley 6221)
type SecondaryCurrentSourceDevice interface {
	Device
	Reset() error
}

// Implements 检查设备是否具备角色所需的能力
func Implements(role Role, dev Device) bool {
	if dev == nil {
		return false
	}
	switch role {
	case Voltmeter:
		_, ok := dev.(VoltmeterDevice)
		return ok
	case CurrentSource:
		_, ok := dev.(CurrentSourceDevice)
		return ok
	case TemperatureController:
		_, ok := dev.(TemperatureControllerDevice)
		return ok
	case MagnetSupply:
		_, ok := dev.(MagnetSupplyDevice)
		return ok
	case LockIn:
		_, ok := dev.(LockInDevice)
		return ok
	case SecondaryCurrentSource:
		_, ok := dev.(SecondaryCurrentSourceDevice)
		return ok
	default:
		return false
	}
}
