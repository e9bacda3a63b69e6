// Package driver 把各型号仪器的 SCPI 命令映射到 instrument 包的角色接口
package driver

import (
	"fmt"
	"strconv"

	"github.com/dinanjanan/cryostat-probe/internal/parser"
	"github.com/dinanjanan/cryostat-probe/internal/scpi"
)

// base 所有驱动共用的命令收发
type base struct {
	conn scpi.Conn
}

func (b base) send(format string, args ...any) error {
	return b.conn.Command(fmt.Sprintf(format, args...))
}

func (b base) queryFloat(cmd string) (float64, error) {
	resp, err := b.conn.Query(cmd)
	if err != nil {
		return 0, err
	}
	return parser.ParseFloat(resp)
}

func (b base) queryFloats(cmd string) ([]float64, error) {
	resp, err := b.conn.Query(cmd)
	if err != nil {
		return nil, err
	}
	return parser.ParseFloatList(resp)
}

// Identify 查询 *IDN?
func (b base) Identify() (string, error) {
	resp, err := b.conn.Query("*IDN?")
	if err != nil {
		return "", err
	}
	return parser.Clean(resp), nil
}

func (b base) Reset() error {
	return b.conn.Command("*RST")
}

func (b base) Close() error {
	return b.conn.Close()
}

// num 以仪器能接受的最短形式格式化数值
func num(v float64) string {
	return strconv.FormatFloat(v, 'G', -1, 64)
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func bit(on bool) int {
	if on {
		return 1
	}
	return 0
}
