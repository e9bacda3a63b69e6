package scpi

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		kind    Kind
		primary int
		port    string
		host    string
	}{
		{in: "GPIB::7", kind: KindGPIB, primary: 7},
		{in: "GPIB0::11::INSTR", kind: KindGPIB, primary: 11},
		{in: "GPIB::8::INSTR", kind: KindGPIB, primary: 8},
		{in: "COM4", kind: KindSerial, port: "COM4"},
		{in: "ASRL3::INSTR", kind: KindSerial, port: "COM3"},
		{in: "/dev/ttyUSB0", kind: KindSerial, port: "/dev/ttyUSB0"},
		{in: "TCPIP::10.0.0.5::1394::SOCKET", kind: KindTCP, host: "10.0.0.5:1394"},
	}
	for _, tt := range tests {
		got, err := ParseAddress(tt.in)
		if err != nil {
			t.Fatalf("ParseAddress(%q) error = %v", tt.in, err)
		}
		if got.Kind != tt.kind || got.Primary != tt.primary || got.Port != tt.port || got.Host != tt.host {
			t.Fatalf("ParseAddress(%q) = %+v", tt.in, got)
		}
	}

	for _, bad := range []string{"", "GPIB::", "GPIB::31", "USB0::0x1234", "TCPIP::host::inst0::INSTR", "COMX"} {
		if _, err := ParseAddress(bad); !errors.Is(err, ErrBadAddress) {
			t.Fatalf("ParseAddress(%q) error = %v, want ErrBadAddress", bad, err)
		}
	}
}

func TestLineConnQuery(t *testing.T) {
	client, server := net.Pipe()
	conn := newLineConn(client, "\n", time.Second)
	defer conn.Close()

	go func() {
		r := bufio.NewReader(server)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasSuffix(strings.TrimSpace(line), "?") {
				_, _ = io.WriteString(server, "+1.25E-06\r\n")
			}
		}
	}()

	if err := conn.Command("*RST"); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	got, err := conn.Query(":FETC?")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got != "+1.25E-06" {
		t.Fatalf("Query() = %q", got)
	}

	_ = conn.Close()
	if err := conn.Command("*RST"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Command() after close error = %v", err)
	}
	_ = server.Close()
}

type fakeController struct {
	addr  int
	log   *[]string
	reply string
}

func (f *fakeController) Command(cmd string) error {
	*f.log = append(*f.log, cmdEntry(f.addr, cmd))
	return nil
}

func (f *fakeController) Query(cmd string) (string, error) {
	*f.log = append(*f.log, cmdEntry(f.addr, cmd))
	return f.reply, io.EOF
}

func (f *fakeController) ClearDevice() error          { return nil }
func (f *fakeController) FrontPanel(local bool) error { return nil }

func cmdEntry(addr int, cmd string) string {
	return string(rune('A'+addr)) + ":" + cmd
}

type nopPort struct{ closed bool }

func (p *nopPort) Read([]byte) (int, error)    { return 0, io.EOF }
func (p *nopPort) Write(b []byte) (int, error) { return len(b), nil }
func (p *nopPort) Close() error                { p.closed = true; return nil }

func TestGPIBBusSwitchesAddress(t *testing.T) {
	var log []string
	created := 0
	port := &nopPort{}
	bus := newGPIBBus("test", port, func(rw io.ReadWriter, addr int) (controller, error) {
		created++
		return &fakeController{addr: addr, log: &log, reply: "1.0"}, nil
	}, quietLogger())

	a, err := bus.Conn(7)
	if err != nil {
		t.Fatalf("Conn(7) error = %v", err)
	}
	b, err := bus.Conn(4)
	if err != nil {
		t.Fatalf("Conn(4) error = %v", err)
	}

	if err := a.Command("*RST"); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	if err := a.Command("*CLS"); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	resp, err := b.Query(":SOUR:LEV?")
	if err != nil || resp != "1.0" {
		t.Fatalf("Query() = %q, %v", resp, err)
	}

	want := []string{cmdEntry(7, "*RST"), cmdEntry(7, "*CLS"), cmdEntry(4, ":SOUR:LEV?")}
	if strings.Join(log, "|") != strings.Join(want, "|") {
		t.Fatalf("bus log = %v, want %v", log, want)
	}
	// 7 -> 4 -> 7 -> 4
	if created != 4 {
		t.Fatalf("controllers created = %d, want 4", created)
	}

	_ = a.Close()
	if port.closed {
		t.Fatal("port closed while a connection is still open")
	}
	_ = b.Close()
	if !port.closed {
		t.Fatal("port not closed after last connection")
	}
	if err := b.Command("*RST"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Command() after close error = %v", err)
	}
}
