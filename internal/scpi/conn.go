package scpi

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// ErrNotConnected 连接已关闭
var ErrNotConnected = errors.New("instrument connection closed")

// Conn 一台仪器的命令通道, 可被多个 goroutine 共享
type Conn interface {
	Command(cmd string) error
	Query(cmd string) (string, error)
	Close() error
}

// lineConn 以换行分帧的命令通道, 用于 TCP 与串口
type lineConn struct {
	mu       sync.Mutex
	rw       io.ReadWriteCloser
	r        *bufio.Reader
	term     string
	timeout  time.Duration
	deadline func(time.Time) error
	closed   bool
}

func newLineConn(rw io.ReadWriteCloser, term string, timeout time.Duration) *lineConn {
	c := &lineConn{
		rw:      rw,
		r:       bufio.NewReader(rw),
		term:    term,
		timeout: timeout,
	}
	if nc, ok := rw.(net.Conn); ok {
		c.deadline = nc.SetDeadline
	}
	return c
}

// DialTCP 连接以 raw socket 方式提供 SCPI 的仪器
func DialTCP(host string, timeout time.Duration) (Conn, error) {
	nc, err := net.DialTimeout("tcp", host, timeout)
	if err != nil {
		return nil, fmt.Errorf("连接 %s 失败: %w", host, err)
	}
	return newLineConn(nc, "\n", timeout), nil
}

func (c *lineConn) Command(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(cmd)
}

func (c *lineConn) Query(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.write(cmd); err != nil {
		return "", err
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("读取应答失败 %q: %w", cmd, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *lineConn) write(cmd string) error {
	if c.closed {
		return ErrNotConnected
	}
	if c.deadline != nil && c.timeout > 0 {
		if err := c.deadline(time.Now().Add(c.timeout)); err != nil {
			return fmt.Errorf("设置超时失败: %w", err)
		}
	}
	if _, err := io.WriteString(c.rw, cmd+c.term); err != nil {
		return fmt.Errorf("发送命令失败 %q: %w", cmd, err)
	}
	return nil
}

func (c *lineConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rw.Close()
}
