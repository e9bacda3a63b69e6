package instrument

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

type journal struct {
	calls []string
}

func (j *journal) add(s string) {
	j.calls = append(j.calls, s)
}

func (j *journal) count(prefix string) int {
	n := 0
	for _, c := range j.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// fakeDevice 实现全部角色接口, 调用记录到 journal
type fakeDevice struct {
	name    string
	j       *journal
	failOps map[string]bool
	panicOn string
}

func (d *fakeDevice) do(op string) error {
	d.j.add(d.name + "." + op)
	if d.panicOn == op {
		panic("driver bug")
	}
	if d.failOps[op] {
		return errors.New(op + " failed")
	}
	return nil
}

func (d *fakeDevice) Close() error                             { return d.do("close") }
func (d *fakeDevice) Reset() error                             { return d.do("reset") }
func (d *fakeDevice) Configure(int, bool, float64) error       { return d.do("configure") }
func (d *fakeDevice) ReadVoltage() (float64, error)            { return 0, d.do("read_voltage") }
func (d *fakeDevice) SetMode(SourceMode) error                 { return d.do("set_mode") }
func (d *fakeDevice) SetRange(float64) error                   { return d.do("set_range") }
func (d *fakeDevice) SetLevel(float64) error                   { return d.do("set_level") }
func (d *fakeDevice) SetCurrentLimit(float64) error            { return d.do("set_limit") }
func (d *fakeDevice) SetEnabled(bool) error                    { return d.do("set_enabled") }
func (d *fakeDevice) Shutdown() error                          { return d.do("shutdown") }
func (d *fakeDevice) ResetInstrument() error                   { return d.do("reset_instrument") }
func (d *fakeDevice) SetHeaterPID(int, float64, float64, float64) error {
	return d.do("pid")
}
func (d *fakeDevice) SetHeaterSetup(int, HeaterResistance, float64, HeaterOutputUnits) error {
	return d.do("heater_setup")
}
func (d *fakeDevice) SetHeaterOutputMode(int, HeaterOutputMode, InputChannel, bool) error {
	return d.do("output_mode")
}
func (d *fakeDevice) SetSetpointRampParameter(int, bool, float64) error { return d.do("ramp") }
func (d *fakeDevice) SetControlSetpoint(int, float64) error             { return d.do("setpoint") }
func (d *fakeDevice) SetHeaterRange(int, HeaterRange) error             { return d.do("range") }
func (d *fakeDevice) KelvinReadings() ([]float64, error)                { return []float64{4, 4}, d.do("kelvin") }
func (d *fakeDevice) AllHeatersOff() error                              { return d.do("heaters_off") }
func (d *fakeDevice) Disconnect() error                                 { return d.do("disconnect") }
func (d *fakeDevice) SetMagneticField(float64) error                    { return d.do("set_field") }
func (d *fakeDevice) SetRampRate(float64) error                         { return d.do("set_ramp_rate") }
func (d *fakeDevice) RampRate() (float64, error)                        { return 0.1, d.do("ramp_rate") }
func (d *fakeDevice) MeasuredMagneticField() (float64, error)           { return 0, d.do("measured_field") }
func (d *fakeDevice) SetCurrent(float64) error                          { return d.do("set_current") }

// closerOnly 只实现 Device, 不具备任何角色能力
type closerOnly struct{}

func (closerOnly) Close() error { return nil }

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestRegistry(t *testing.T, j *journal, dial func(role Role, addr string) (Device, error)) *Registry {
	t.Helper()
	if dial == nil {
		dial = func(role Role, addr string) (Device, error) {
			return &fakeDevice{name: role.String(), j: j}, nil
		}
	}
	return NewRegistry(nil, dial, quietLogger())
}

func TestConnectAllFaultContainment(t *testing.T) {
	j := &journal{}
	var attempted []Role
	r := newTestRegistry(t, j, func(role Role, addr string) (Device, error) {
		attempted = append(attempted, role)
		if role == CurrentSource {
			return nil, errors.New("no listener")
		}
		return &fakeDevice{name: role.String(), j: j}, nil
	})
	r.ConnectAll()

	if len(attempted) != len(Roles()) {
		t.Fatalf("attempted %d roles, want %d", len(attempted), len(Roles()))
	}
	if r.IsConnected(CurrentSource) {
		t.Fatal("CurrentSource should not be connected")
	}
	for _, role := range []Role{Voltmeter, TemperatureController, MagnetSupply} {
		if !r.IsConnected(role) {
			t.Fatalf("%s should be connected", role)
		}
	}
	if _, ok := r.CurrentSource(); ok {
		t.Fatal("CurrentSource() returned a handle for a disconnected role")
	}
	if dev, ok := r.Get(CurrentSource); ok || dev != nil {
		t.Fatalf("Get(CurrentSource) = %v, %v", dev, ok)
	}
}

func TestConnectAllContainsPanicsAndWrongCapability(t *testing.T) {
	j := &journal{}
	r := newTestRegistry(t, j, func(role Role, addr string) (Device, error) {
		switch role {
		case Voltmeter:
			panic("driver exploded")
		case LockIn:
			return closerOnly{}, nil
		}
		return &fakeDevice{name: role.String(), j: j}, nil
	})
	r.ConnectAll()

	if r.IsConnected(Voltmeter) {
		t.Fatal("Voltmeter should be disconnected after panic")
	}
	// LockIn 只要求 Reset+Close, closerOnly 缺少 Reset
	if r.IsConnected(LockIn) {
		t.Fatal("LockIn should be disconnected: wrong capability")
	}
	if !r.IsConnected(MagnetSupply) {
		t.Fatal("MagnetSupply should be connected")
	}
}

func TestConnectAllRunsOnce(t *testing.T) {
	j := &journal{}
	dials := 0
	r := newTestRegistry(t, j, func(role Role, addr string) (Device, error) {
		dials++
		return &fakeDevice{name: role.String(), j: j}, nil
	})
	r.ConnectAll()
	r.ConnectAll()
	if dials != len(Roles()) {
		t.Fatalf("dials = %d, want %d", dials, len(Roles()))
	}
}

func TestAddressesFallBackToDefaults(t *testing.T) {
	got := map[Role]string{}
	r := NewRegistry(map[Role]string{Voltmeter: "TCPIP::10.0.0.5::1394::SOCKET"}, func(role Role, addr string) (Device, error) {
		got[role] = addr
		return nil, errors.New("offline")
	}, quietLogger())
	r.ConnectAll()

	if got[Voltmeter] != "TCPIP::10.0.0.5::1394::SOCKET" {
		t.Fatalf("voltmeter address = %q", got[Voltmeter])
	}
	if got[TemperatureController] != DefaultAddresses[TemperatureController] {
		t.Fatalf("temperature controller address = %q", got[TemperatureController])
	}
}

func TestResetAllSkipsDisconnectedAndContainsFaults(t *testing.T) {
	j := &journal{}
	r := newTestRegistry(t, j, func(role Role, addr string) (Device, error) {
		switch role {
		case LockIn:
			return nil, errors.New("offline")
		case Voltmeter:
			return &fakeDevice{name: role.String(), j: j, failOps: map[string]bool{"reset": true}}, nil
		}
		return &fakeDevice{name: role.String(), j: j}, nil
	})
	r.ConnectAll()

	err := r.ResetAll()
	if err == nil {
		t.Fatal("ResetAll() error = nil, want voltmeter fault")
	}
	var de *DeviceError
	if !errors.As(err, &de) || de.Role != Voltmeter || de.Op != "reset" {
		t.Fatalf("ResetAll() error = %v, want voltmeter reset DeviceError", err)
	}
	if j.count("magnet_supply.set_field") != 1 {
		t.Fatalf("magnet must still be zeroed after voltmeter fault: %v", j.calls)
	}
	if j.count("lock_in.") != 0 {
		t.Fatalf("disconnected lock-in must be skipped: %v", j.calls)
	}
	want := []string{"current_source.set_level", "current_source.set_enabled", "current_source.reset"}
	idx := 0
	for _, c := range j.calls {
		if idx < len(want) && c == want[idx] {
			idx++
		}
	}
	if idx != len(want) {
		t.Fatalf("current source reset order wrong: %v", j.calls)
	}
	if j.count("temperature_controller.") != 0 {
		t.Fatalf("temperature controller must not be touched by ResetAll: %v", j.calls)
	}
}

func TestResetAllTwiceRepeatsOnlyOwnCommands(t *testing.T) {
	j := &journal{}
	r := newTestRegistry(t, j, nil)
	r.ConnectAll()

	if err := r.ResetAll(); err != nil {
		t.Fatalf("ResetAll() error = %v", err)
	}
	first := len(j.calls)
	if err := r.ResetAll(); err != nil {
		t.Fatalf("ResetAll() error = %v", err)
	}
	if len(j.calls) != 2*first {
		t.Fatalf("second ResetAll issued %d commands, want %d", len(j.calls)-first, first)
	}
}

func TestCloseAllIsIdempotent(t *testing.T) {
	j := &journal{}
	r := newTestRegistry(t, j, nil)
	r.ConnectAll()

	if err := r.CloseAll(); err != nil {
		t.Fatalf("CloseAll() error = %v", err)
	}
	for _, op := range []string{
		"current_source.shutdown",
		"temperature_controller.setpoint",
		"temperature_controller.heaters_off",
		"temperature_controller.reset_instrument",
		"temperature_controller.disconnect",
	} {
		if j.count(op) != 1 {
			t.Fatalf("%s called %d times, want 1: %v", op, j.count(op), j.calls)
		}
	}
	for _, role := range Roles() {
		if r.IsConnected(role) {
			t.Fatalf("%s still connected after CloseAll", role)
		}
	}

	n := len(j.calls)
	if err := r.CloseAll(); err != nil {
		t.Fatalf("second CloseAll() error = %v", err)
	}
	if len(j.calls) != n {
		t.Fatalf("second CloseAll issued commands: %v", j.calls[n:])
	}
}

func TestReleaseKeepsOutputs(t *testing.T) {
	j := &journal{}
	r := newTestRegistry(t, j, nil)
	r.ConnectAll()

	if err := r.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if j.count("") != len(Roles()) || j.count(CurrentSource.String()+".close") != 1 {
		t.Fatalf("Release() must only close connections: %v", j.calls)
	}
	for _, role := range Roles() {
		if r.IsConnected(role) {
			t.Fatalf("%s still connected after Release", role)
		}
	}
	if err := r.CloseAll(); err != nil || j.count("") != len(Roles()) {
		t.Fatalf("CloseAll() after Release issued commands: %v, err = %v", j.calls, err)
	}
}

func TestCloseAllContainsPanics(t *testing.T) {
	j := &journal{}
	r := newTestRegistry(t, j, func(role Role, addr string) (Device, error) {
		if role == CurrentSource {
			return &fakeDevice{name: role.String(), j: j, panicOn: "shutdown"}, nil
		}
		return &fakeDevice{name: role.String(), j: j}, nil
	})
	r.ConnectAll()

	err := r.CloseAll()
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("CloseAll() error = %v, want contained panic", err)
	}
	if j.count("temperature_controller.heaters_off") != 1 {
		t.Fatalf("heaters must be turned off despite current source panic: %v", j.calls)
	}
}

func TestParseRole(t *testing.T) {
	for _, role := range Roles() {
		got, err := ParseRole(role.String())
		if err != nil || got != role {
			t.Fatalf("ParseRole(%q) = %v, %v", role, got, err)
		}
	}
	if _, err := ParseRole("oscilloscope"); err == nil {
		t.Fatal("ParseRole(oscilloscope) error = nil")
	}
}
