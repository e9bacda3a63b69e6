package driver

import "github.com/dinanjanan/cryostat-probe/internal/scpi"

// SR830 锁相放大器, 本流程只做复位
type SR830 struct {
	base
}

// NewSR830 创建锁相驱动
func NewSR830(conn scpi.Conn) *SR830 {
	return &SR830{base{conn}}
}
