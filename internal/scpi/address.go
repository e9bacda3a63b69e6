// Package scpi 提供与仪器交换 ASCII 命令的连接: GPIB (Prologix), 串口和 TCP
package scpi

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrBadAddress 无法识别的仪器地址
var ErrBadAddress = errors.New("unrecognized instrument address")

// Kind 连接类型
type Kind int

const (
	KindGPIB Kind = iota
	KindSerial
	KindTCP
)

func (k Kind) String() string {
	switch k {
	case KindGPIB:
		return "gpib"
	case KindSerial:
		return "serial"
	case KindTCP:
		return "tcp"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Address 解析后的仪器地址
type Address struct {
	Raw     string
	Kind    Kind
	Board   int    // GPIB 板卡号
	Primary int    // GPIB 主地址
	Port    string // 串口名
	Host    string // TCP host:port
}

// ParseAddress 解析 VISA 风格地址
//
// 支持 GPIB::7, GPIB0::11::INSTR, COM4, ASRL3::INSTR, /dev/ttyUSB0, TCPIP::host::port::SOCKET.
func ParseAddress(s string) (Address, error) {
	raw := strings.TrimSpace(s)
	a := Address{Raw: raw}
	if raw == "" {
		return a, fmt.Errorf("%w: empty", ErrBadAddress)
	}
	if strings.HasPrefix(raw, "/") {
		a.Kind, a.Port = KindSerial, raw
		return a, nil
	}

	parts := strings.Split(raw, "::")
	head := strings.ToUpper(parts[0])
	switch {
	case strings.HasPrefix(head, "GPIB"):
		board := 0
		if n := strings.TrimPrefix(head, "GPIB"); n != "" {
			b, err := strconv.Atoi(n)
			if err != nil {
				return a, fmt.Errorf("%w: %q", ErrBadAddress, s)
			}
			board = b
		}
		if len(parts) < 2 {
			return a, fmt.Errorf("%w: %q missing primary address", ErrBadAddress, s)
		}
		primary, err := strconv.Atoi(parts[1])
		if err != nil || primary < 0 || primary > 30 {
			return a, fmt.Errorf("%w: %q bad primary address", ErrBadAddress, s)
		}
		a.Kind, a.Board, a.Primary = KindGPIB, board, primary
		return a, nil

	case strings.HasPrefix(head, "COM") && len(parts) == 1:
		if _, err := strconv.Atoi(head[3:]); err != nil {
			return a, fmt.Errorf("%w: %q", ErrBadAddress, s)
		}
		a.Kind, a.Port = KindSerial, head
		return a, nil

	case strings.HasPrefix(head, "ASRL"):
		n, err := strconv.Atoi(strings.TrimPrefix(head, "ASRL"))
		if err != nil {
			return a, fmt.Errorf("%w: %q", ErrBadAddress, s)
		}
		a.Kind, a.Port = KindSerial, "COM"+strconv.Itoa(n)
		return a, nil

	case strings.HasPrefix(head, "TCPIP"):
		if len(parts) < 4 || !strings.EqualFold(parts[len(parts)-1], "SOCKET") {
			return a, fmt.Errorf("%w: %q only raw sockets are supported", ErrBadAddress, s)
		}
		if _, err := strconv.Atoi(parts[2]); err != nil {
			return a, fmt.Errorf("%w: %q bad port", ErrBadAddress, s)
		}
		a.Kind, a.Host = KindTCP, net.JoinHostPort(parts[1], parts[2])
		return a, nil
	}
	return a, fmt.Errorf("%w: %q", ErrBadAddress, s)
}

func (a Address) String() string {
	return a.Raw
}
