package scpi

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Dialer 按地址类型打开仪器连接, GPIB 适配器在首次使用时打开
type Dialer struct {
	GPIBPort string
	Timeout  time.Duration
	Log      *logrus.Logger

	mu  sync.Mutex
	bus *GPIBBus
}

// NewDialer 创建连接器
func NewDialer(gpibPort string, timeout time.Duration, log *logrus.Logger) *Dialer {
	return &Dialer{GPIBPort: gpibPort, Timeout: timeout, Log: log}
}

// Open 打开地址对应的连接, settings 只对串口生效
func (d *Dialer) Open(address string, settings SerialSettings) (Conn, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	switch addr.Kind {
	case KindGPIB:
		bus, err := d.gpib()
		if err != nil {
			return nil, err
		}
		return bus.Conn(addr.Primary)
	case KindSerial:
		return DialSerial(addr.Port, settings, d.Timeout)
	case KindTCP:
		return DialTCP(addr.Host, d.Timeout)
	}
	return nil, fmt.Errorf("%w: %s", ErrBadAddress, address)
}

func (d *Dialer) gpib() (*GPIBBus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bus != nil && !d.bus.isClosed() {
		return d.bus, nil
	}
	if d.GPIBPort == "" {
		return nil, fmt.Errorf("%w: gpib port not configured", ErrBadAddress)
	}
	bus, err := OpenGPIBBus(d.GPIBPort, d.Log)
	if err != nil {
		return nil, err
	}
	d.bus = bus
	return bus, nil
}

// Close 关闭 GPIB 适配器
func (d *Dialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bus == nil {
		return nil
	}
	return d.bus.Close()
}
