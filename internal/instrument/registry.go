package instrument

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dinanjanan/cryostat-probe/internal/monitor"
)

// ErrWrongCapability 驱动返回的设备不具备角色所需的接口
var ErrWrongCapability = errors.New("device does not implement role capability")

// DialFunc 按角色和地址建立仪器连接
type DialFunc func(role Role, address string) (Device, error)

type record struct {
	address   string
	connected bool
	device    Device
}

// Registry 管理全部仪器连接
//
// 每个进程构造一次, 由运行入口显式传给扫场流程. ConnectAll 只会真正执行一次.
type Registry struct {
	dial DialFunc
	log  *logrus.Logger

	once    sync.Once
	mu      sync.Mutex
	records map[Role]*record
}

// NewRegistry 创建仪器注册表, addresses 中缺失的角色使用默认地址
func NewRegistry(addresses map[Role]string, dial DialFunc, log *logrus.Logger) *Registry {
	records := make(map[Role]*record, len(Roles()))
	for _, role := range Roles() {
		addr, ok := addresses[role]
		if !ok || addr == "" {
			addr = DefaultAddresses[role]
		}
		records[role] = &record{address: addr}
	}

	return &Registry{
		dial:    dial,
		log:     log,
		records: records,
	}
}

// ConnectAll 依次连接全部仪器, 单台失败只标记为未连接
func (r *Registry) ConnectAll() {
	r.once.Do(func() {
		for _, role := range Roles() {
			r.connect(role)
		}
	})
}

func (r *Registry) connect(role Role) {
	r.mu.Lock()
	addr := r.records[role].address
	r.mu.Unlock()

	var dev Device
	err := contain(func() error {
		var err error
		dev, err = r.dial(role, addr)
		return err
	})
	if err == nil && !Implements(role, dev) {
		err = fmt.Errorf("%w: %s got %T", ErrWrongCapability, role, dev)
		if dev != nil {
			_ = contain(dev.Close)
		}
	}

	fields := logrus.Fields{"role": role.String(), "address": addr, "model": Model[role]}
	r.mu.Lock()
	rec := r.records[role]
	if err != nil {
		rec.connected = false
		rec.device = nil
		r.mu.Unlock()
		monitor.InstrumentConnected.WithLabelValues(role.String()).Set(0)
		r.log.WithFields(fields).Warnf("连接仪器失败: %v", err)
		return
	}
	rec.connected = true
	rec.device = dev
	r.mu.Unlock()
	monitor.InstrumentConnected.WithLabelValues(role.String()).Set(1)
	r.log.WithFields(fields).Info("仪器连接成功")
}

// IsConnected 判断角色是否可用
func (r *Registry) IsConnected(role Role) bool {
	_, _, ok := r.lookup(role)
	return ok
}

// Address 返回角色的通信地址
func (r *Registry) Address(role Role) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[role]; ok {
		return rec.address
	}
	return ""
}

// Connected 返回每个角色的连接状态
func (r *Registry) Connected() map[Role]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Role]bool, len(r.records))
	for role, rec := range r.records {
		out[role] = rec.connected
	}
	return out
}

// Get 返回已连接的设备, 未连接时返回 false
func (r *Registry) Get(role Role) (Device, bool) {
	dev, _, ok := r.lookup(role)
	return dev, ok
}

func (r *Registry) lookup(role Role) (Device, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[role]
	if !ok || !rec.connected || rec.device == nil {
		return nil, "", false
	}
	return rec.device, rec.address, true
}

// Voltmeter 返回纳伏表
func (r *Registry) Voltmeter() (VoltmeterDevice, bool) {
	dev, ok := r.Get(Voltmeter)
	if !ok {
		return nil, false
	}
	v, ok := dev.(VoltmeterDevice)
	return v, ok
}

// CurrentSource 返回电流源
func (r *Registry) CurrentSource() (CurrentSourceDevice, bool) {
	dev, ok := r.Get(CurrentSource)
	if !ok {
		return nil, false
	}
	v, ok := dev.(CurrentSourceDevice)
	return v, ok
}

// TemperatureController 返回温控器
func (r *Registry) TemperatureController() (TemperatureControllerDevice, bool) {
	dev, ok := r.Get(TemperatureController)
	if !ok {
		return nil, false
	}
	v, ok := dev.(TemperatureControllerDevice)
	return v, ok
}

// MagnetSupply 返回磁体电源
func (r *Registry) MagnetSupply() (MagnetSupplyDevice, bool) {
	dev, ok := r.Get(MagnetSupply)
	if !ok {
		return nil, false
	}
	v, ok := dev.(MagnetSupplyDevice)
	return v, ok
}

// LockIn 返回锁相放大器
func (r *Registry) LockIn() (LockInDevice, bool) {
	dev, ok := r.Get(LockIn)
	if !ok {
		return nil, false
	}
	v, ok := dev.(LockInDevice)
	return v, ok
}

// SecondaryCurrentSource 返回备用电流源
func (r *Registry) SecondaryCurrentSource() (SecondaryCurrentSourceDevice, bool) {
	dev, ok := r.Get(SecondaryCurrentSource)
	if !ok {
		return nil, false
	}
	v, ok := dev.(SecondaryCurrentSourceDevice)
	return v, ok
}

// ResetAll 把所有已连接仪器置于安全状态, 单台失败不影响其它仪器
func (r *Registry) ResetAll() error {
	var f Faults
	r.resetAll(&f)
	return f.Err()
}

func (r *Registry) resetAll(f *Faults) {
	if dev, ok := r.SecondaryCurrentSource(); ok {
		r.step(f, SecondaryCurrentSource, "reset", dev.Reset)
	}

	if dev, ok := r.CurrentSource(); ok {
		r.step(f, CurrentSource, "set_level", func() error { return dev.SetLevel(0) })
		r.step(f, CurrentSource, "disable", func() error { return dev.SetEnabled(false) })
		r.step(f, CurrentSource, "reset", dev.Reset)
	}

	if dev, ok := r.Voltmeter(); ok {
		r.step(f, Voltmeter, "reset", dev.Reset)
	}

	if dev, ok := r.MagnetSupply(); ok {
		r.step(f, MagnetSupply, "zero_field", func() error { return dev.SetMagneticField(0) })
	}

	// 温控器只在关闭时复位

	if dev, ok := r.LockIn(); ok {
		r.step(f, LockIn, "reset", dev.Reset)
	}
}

// CloseAll 复位并断开全部仪器, 断开后的角色不再可用
func (r *Registry) CloseAll() error {
	var f Faults
	r.resetAll(&f)

	if dev, ok := r.CurrentSource(); ok {
		r.step(&f, CurrentSource, "shutdown", dev.Shutdown)
	}

	if dev, ok := r.TemperatureController(); ok {
		out := SampleHeaterOutput
		r.step(&f, TemperatureController, "zero_setpoint", func() error { return dev.SetControlSetpoint(out, 0) })
		r.step(&f, TemperatureController, "disable_ramp", func() error { return dev.SetSetpointRampParameter(out, false, 0) })
		r.step(&f, TemperatureController, "heaters_off", dev.AllHeatersOff)
		r.step(&f, TemperatureController, "reset", dev.ResetInstrument)
		r.step(&f, TemperatureController, "disconnect", dev.Disconnect)
	}

	r.disconnect(&f)
	if f.Len() > 0 {
		r.log.Warnf("关闭仪器时有 %d 个操作失败", f.Len())
	}
	return f.Err()
}

// Release 只断开连接, 不改变仪器的输出和设定值
func (r *Registry) Release() error {
	var f Faults
	r.disconnect(&f)
	if f.Len() > 0 {
		r.log.Warnf("断开仪器时有 %d 个操作失败", f.Len())
	}
	return f.Err()
}

func (r *Registry) disconnect(f *Faults) {
	for _, role := range Roles() {
		dev, _, ok := r.lookup(role)
		if !ok {
			continue
		}
		r.step(f, role, "close", dev.Close)

		r.mu.Lock()
		rec := r.records[role]
		rec.connected = false
		rec.device = nil
		r.mu.Unlock()
		monitor.InstrumentConnected.WithLabelValues(role.String()).Set(0)
	}
}

func (r *Registry) step(f *Faults, role Role, op string, fn func() error) {
	addr := r.Address(role)
	err := f.Do(role, addr, op, fn)
	if err == nil {
		return
	}
	monitor.DeviceFaults.WithLabelValues(role.String(), op).Inc()
	r.log.WithFields(logrus.Fields{
		"role":    role.String(),
		"address": addr,
		"op":      op,
	}).Warnf("仪器操作失败, 继续处理其它仪器: %v", err)
}
