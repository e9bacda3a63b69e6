package driver

import (
	"fmt"

	"github.com/dinanjanan/cryostat-probe/internal/scpi"
)

// Keithley2182 纳伏表
type Keithley2182 struct {
	base
}

// NewKeithley2182 创建纳伏表驱动
func NewKeithley2182(conn scpi.Conn) *Keithley2182 {
	return &Keithley2182{base{conn}}
}

// Configure 直流电压测量, 选择通道并设置积分时间
func (k *Keithley2182) Configure(channel int, autoRange bool, nplc float64) error {
	cmds := []string{
		":SENS:FUNC 'VOLT'",
		fmt.Sprintf(":SENS:CHAN %d", channel),
		fmt.Sprintf(":SENS:VOLT:CHAN%d:RANG:AUTO %s", channel, onOff(autoRange)),
		":SENS:VOLT:NPLC " + num(nplc),
	}
	for _, c := range cmds {
		if err := k.conn.Command(c); err != nil {
			return err
		}
	}
	return nil
}

// ReadVoltage 触发一次测量并读取
func (k *Keithley2182) ReadVoltage() (float64, error) {
	return k.queryFloat(":READ?")
}

// Keithley6221 备用交直流电流源, 本流程只做复位
type Keithley6221 struct {
	base
}

// NewKeithley6221 创建 6221 驱动
func NewKeithley6221(conn scpi.Conn) *Keithley6221 {
	return &Keithley6221{base{conn}}
}
