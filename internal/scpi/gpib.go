package scpi

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gotmc/prologix"
	"github.com/gotmc/prologix/driver/vcp"
	"github.com/sirupsen/logrus"
)

// controller Prologix 控制器在总线上需要的操作
type controller interface {
	Command(cmd string) error
	Query(cmd string) (string, error)
	ClearDevice() error
	FrontPanel(local bool) error
}

type prologixController struct {
	c *prologix.Controller
}

func (p prologixController) Command(cmd string) error         { return p.c.Command(cmd) }
func (p prologixController) Query(cmd string) (string, error) { return p.c.Query(cmd) }
func (p prologixController) ClearDevice() error               { return p.c.ClearDevice() }
func (p prologixController) FrontPanel(local bool) error      { return p.c.FrontPanel(local) }

type controllerFactory func(rw io.ReadWriter, addr int) (controller, error)

func newPrologix(rw io.ReadWriter, addr int) (controller, error) {
	c, err := prologix.NewController(rw, addr, false)
	if err != nil {
		return nil, err
	}
	return prologixController{c: c}, nil
}

// GPIBBus 一个 Prologix USB-GPIB 适配器, 由总线上全部仪器共享
//
// 同一时刻只有一个地址处于寻址状态, 切换地址时重建控制器.
type GPIBBus struct {
	mu      sync.Mutex
	port    string
	rw      io.ReadWriteCloser
	factory controllerFactory
	ctrl    controller
	addr    int
	refs    int
	closed  bool
	log     *logrus.Logger
}

// OpenGPIBBus 打开适配器所在的虚拟串口
func OpenGPIBBus(port string, log *logrus.Logger) (*GPIBBus, error) {
	v, err := vcp.NewVCP(port)
	if err != nil {
		return nil, fmt.Errorf("打开 GPIB 适配器 %s 失败: %w", port, err)
	}
	return newGPIBBus(port, v, newPrologix, log), nil
}

func newGPIBBus(port string, rw io.ReadWriteCloser, factory controllerFactory, log *logrus.Logger) *GPIBBus {
	return &GPIBBus{port: port, rw: rw, factory: factory, addr: -1, log: log}
}

// Conn 返回指定主地址的仪器连接
func (b *GPIBBus) Conn(primary int) (Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrNotConnected
	}
	if err := b.selectLocked(primary); err != nil {
		return nil, err
	}
	if err := b.ctrl.ClearDevice(); err != nil {
		b.log.Warnf("GPIB %d 设备清除失败: %v", primary, err)
	}
	b.refs++
	return &gpibConn{bus: b, addr: primary}, nil
}

func (b *GPIBBus) selectLocked(addr int) error {
	if b.ctrl != nil && b.addr == addr {
		return nil
	}
	ctrl, err := b.factory(b.rw, addr)
	if err != nil {
		return fmt.Errorf("切换 GPIB 地址 %d 失败: %w", addr, err)
	}
	b.ctrl, b.addr = ctrl, addr
	b.log.Debugf("GPIB 地址切换到 %d", addr)
	return nil
}

func (b *GPIBBus) command(addr int, cmd string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrNotConnected
	}
	if err := b.selectLocked(addr); err != nil {
		return err
	}
	if err := b.ctrl.Command(cmd); err != nil {
		return fmt.Errorf("GPIB %d 命令 %q 失败: %w", addr, cmd, err)
	}
	return nil
}

func (b *GPIBBus) query(addr int, cmd string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", ErrNotConnected
	}
	if err := b.selectLocked(addr); err != nil {
		return "", err
	}
	resp, err := b.ctrl.Query(cmd)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("GPIB %d 查询 %q 失败: %w", addr, cmd, err)
	}
	return resp, nil
}

// release 最后一个连接关闭时交还前面板并关闭串口
func (b *GPIBBus) release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.refs--
	if b.refs > 0 {
		return nil
	}
	return b.closeLocked()
}

// Close 强制关闭适配器
func (b *GPIBBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	return b.closeLocked()
}

func (b *GPIBBus) closeLocked() error {
	b.closed = true
	var errs []error
	if b.ctrl != nil {
		if err := b.ctrl.FrontPanel(true); err != nil {
			errs = append(errs, fmt.Errorf("恢复前面板控制失败: %w", err))
		}
	}
	if f, ok := b.rw.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("清空串口失败: %w", err))
		}
	}
	if err := b.rw.Close(); err != nil {
		errs = append(errs, fmt.Errorf("关闭串口失败: %w", err))
	}
	b.log.Infof("GPIB 适配器已关闭: %s", b.port)
	return errors.Join(errs...)
}

type gpibConn struct {
	bus    *GPIBBus
	addr   int
	mu     sync.Mutex
	closed bool
}

func (c *gpibConn) Command(cmd string) error {
	if c.isClosed() {
		return ErrNotConnected
	}
	return c.bus.command(c.addr, cmd)
}

func (c *gpibConn) Query(cmd string) (string, error) {
	if c.isClosed() {
		return "", ErrNotConnected
	}
	return c.bus.query(c.addr, cmd)
}

func (c *gpibConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *gpibConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.bus.release()
}

func (b *GPIBBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
