package instrument

import (
	"fmt"
	"strings"
)

// Role 仪器在测量系统中的角色
type Role int

const (
	Voltmeter Role = iota
	CurrentSource
	TemperatureController
	MagnetSupply
	LockIn
	SecondaryCurrentSource
)

var roleNames = map[Role]string{
	Voltmeter:              "voltmeter",
	CurrentSource:          "current_source",
	TemperatureController:  "temperature_controller",
	MagnetSupply:           "magnet_supply",
	LockIn:                 "lock_in",
	SecondaryCurrentSource: "secondary_current_source",
}

// Roles 返回全部角色, 顺序即连接顺序
func Roles() []Role {
	return []Role{Voltmeter, SecondaryCurrentSource, CurrentSource, MagnetSupply, TemperatureController, LockIn}
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ParseRole 按名称解析角色
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown instrument role %q", s)
}

// DefaultAddresses 实验室默认地址
var DefaultAddresses = map[Role]string{
	Voltmeter:              "GPIB::7",
	SecondaryCurrentSource: "GPIB::17",
	CurrentSource:          "GPIB::4",
	MagnetSupply:           "GPIB0::11::INSTR",
	TemperatureController:  "COM4",
	LockIn:                 "GPIB::8::INSTR",
}

// Model 每个角色对应的仪器型号
var Model = map[Role]string{
	Voltmeter:              "Keithley 2182",
	SecondaryCurrentSource: "Keithley 6221",
	CurrentSource:          "Yokogawa GS200",
	MagnetSupply:           "Lakeshore LS625",
	TemperatureController:  "Lakeshore Model 336",
	LockIn:                 "Stanford SR830",
}
