package driver

import (
	"fmt"

	"github.com/dinanjanan/cryostat-probe/internal/instrument"
	"github.com/dinanjanan/cryostat-probe/internal/scpi"
)

// YokogawaGS200 直流电压/电流源
type YokogawaGS200 struct {
	base
}

// NewYokogawaGS200 创建 GS200 驱动
func NewYokogawaGS200(conn scpi.Conn) *YokogawaGS200 {
	return &YokogawaGS200{base{conn}}
}

func (y *YokogawaGS200) SetMode(mode instrument.SourceMode) error {
	switch mode {
	case instrument.ModeCurrent:
		return y.send(":SOUR:FUNC CURR")
	case instrument.ModeVoltage:
		return y.send(":SOUR:FUNC VOLT")
	}
	return fmt.Errorf("unsupported source mode %q", mode)
}

func (y *YokogawaGS200) SetRange(r float64) error {
	return y.send(":SOUR:RANG %s", num(r))
}

func (y *YokogawaGS200) SetLevel(v float64) error {
	return y.send(":SOUR:LEV %s", num(v))
}

func (y *YokogawaGS200) SetCurrentLimit(v float64) error {
	return y.send(":SOUR:PROT:CURR %s", num(v))
}

func (y *YokogawaGS200) SetEnabled(on bool) error {
	return y.send(":OUTP %s", onOff(on))
}

// Shutdown 输出归零并关闭
func (y *YokogawaGS200) Shutdown() error {
	if err := y.SetLevel(0); err != nil {
		return err
	}
	return y.SetEnabled(false)
}
