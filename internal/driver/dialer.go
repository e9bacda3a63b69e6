package driver

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dinanjanan/cryostat-probe/internal/instrument"
	"github.com/dinanjanan/cryostat-probe/internal/scpi"
)

// Opener 按地址打开命令通道, 由 scpi.Dialer 实现
type Opener interface {
	Open(address string, settings scpi.SerialSettings) (scpi.Conn, error)
}

// Dialer 为每个角色创建对应型号的驱动
type Dialer struct {
	opener Opener
	log    *logrus.Logger
}

// NewDialer 创建驱动工厂
func NewDialer(opener Opener, log *logrus.Logger) *Dialer {
	return &Dialer{opener: opener, log: log}
}

// Dial 实现 instrument.DialFunc
func (d *Dialer) Dial(role instrument.Role, address string) (instrument.Device, error) {
	settings := scpi.SerialSettings{}
	if role == instrument.TemperatureController {
		settings = scpi.LakeshoreSerial
	}
	conn, err := d.opener.Open(address, settings)
	if err != nil {
		return nil, err
	}

	var dev interface {
		instrument.Device
		Identify() (string, error)
	}
	switch role {
	case instrument.Voltmeter:
		dev = NewKeithley2182(conn)
	case instrument.SecondaryCurrentSource:
		dev = NewKeithley6221(conn)
	case instrument.CurrentSource:
		dev = NewYokogawaGS200(conn)
	case instrument.MagnetSupply:
		dev = NewLS625(conn)
	case instrument.TemperatureController:
		dev = NewModel336(conn)
	case instrument.LockIn:
		dev = NewSR830(conn)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("no driver for role %s", role)
	}

	fields := logrus.Fields{"role": role.String(), "address": address}
	if idn, err := dev.Identify(); err != nil {
		d.log.WithFields(fields).Warnf("读取仪器标识失败: %v", err)
	} else {
		d.log.WithFields(fields).Infof("仪器标识: %s", idn)
	}
	return dev, nil
}
