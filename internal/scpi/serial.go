package scpi

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialSettings 串口参数
type SerialSettings struct {
	BaudRate int
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits
}

// LakeshoreSerial Model 336 固定的串口格式 57600 7O1
var LakeshoreSerial = SerialSettings{
	BaudRate: 57600,
	DataBits: 7,
	Parity:   serial.OddParity,
	StopBits: serial.OneStopBit,
}

// DialSerial 打开串口仪器, 命令以 CRLF 结尾
func DialSerial(port string, settings SerialSettings, timeout time.Duration) (Conn, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: settings.BaudRate,
		DataBits: settings.DataBits,
		Parity:   settings.Parity,
		StopBits: settings.StopBits,
	})
	if err != nil {
		return nil, fmt.Errorf("打开串口 %s 失败: %w", port, err)
	}
	if timeout > 0 {
		if err := p.SetReadTimeout(timeout); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("设置串口超时失败: %w", err)
		}
	}
	return newLineConn(p, "\r\n", timeout), nil
}
