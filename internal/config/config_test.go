package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dinanjanan/cryostat-probe/internal/instrument"
	"github.com/dinanjanan/cryostat-probe/internal/procedure"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
instruments:
  simulate: true
  timeout: 5s
  addresses:
    voltmeter: "TCPIP::10.0.0.5::1394::SOCKET"
sweep:
  sample_name: NbSe2
  temperature: 4.5
  topology: B3
  heater_setting: medium
sink:
  backends: [log, redis]
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if !cfg.Instruments.Simulate || cfg.Instruments.Timeout != 5*time.Second {
		t.Fatalf("instruments = %+v", cfg.Instruments)
	}
	if cfg.Sweep.SampleName != "NbSe2" || cfg.Sweep.Temperature != 4.5 || cfg.Sweep.Topology != "B3" {
		t.Fatalf("sweep = %+v", cfg.Sweep)
	}
	if cfg.Sweep.HeaterSetting != procedure.HeaterMedium {
		t.Fatalf("heater = %q", cfg.Sweep.HeaterSetting)
	}
	// 未配置的字段保持默认
	if cfg.Sweep.FieldStep != 10e-3 || cfg.Redis.Channel != "fieldsweep_data" {
		t.Fatalf("defaults lost: step=%g channel=%q", cfg.Sweep.FieldStep, cfg.Redis.Channel)
	}

	addrs, err := cfg.Addresses()
	if err != nil {
		t.Fatalf("Addresses() error = %v", err)
	}
	if addrs[instrument.Voltmeter] != "TCPIP::10.0.0.5::1394::SOCKET" {
		t.Fatalf("Addresses() = %v", addrs)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Sink.Backends = []string{"carrier-pigeon"}
	cfg.Instruments.Addresses = map[string]string{"oscilloscope": "GPIB::1"}
	cfg.Sweep.SetCurrent = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() error = nil")
	} else if !errors.Is(err, procedure.ErrInvalidParameters) {
		t.Fatalf("Validate() error = %v, want parameter error included", err)
	}

	if err := GetDefaultConfig().Validate(); err != nil {
		t.Fatalf("default Validate() error = %v", err)
	}
}

func TestExperimentSelectsValidatedSection(t *testing.T) {
	path := writeConfig(t, `
experiment: iv
sweep:
  field_step: 0
iv:
  sample_name: YBCO2
  max_current: 1e-3
  min_current: -1e-3
  current_step: 1e-4
  delay: 50ms
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, unused sweep section must not be validated", err)
	}
	if cfg.Experiment != procedure.IVCurve || cfg.IV.Delay != 50*time.Millisecond {
		t.Fatalf("iv = %+v", cfg.IV)
	}
	if cfg.SampleName() != "YBCO2" {
		t.Fatalf("SampleName() = %q", cfg.SampleName())
	}

	cfg = GetDefaultConfig()
	cfg.Experiment = procedure.SetCurrent
	cfg.SetCurrent.Current = 1
	if err := cfg.Validate(); !errors.Is(err, procedure.ErrInvalidParameters) {
		t.Fatalf("Validate() error = %v, want current over limit rejected", err)
	}

	cfg = GetDefaultConfig()
	cfg.Experiment = "tempsweep"
	if err := cfg.Validate(); !errors.Is(err, procedure.ErrInvalidParameters) {
		t.Fatalf("Validate() error = %v, want unknown experiment rejected", err)
	}
}

func TestPublishTimeoutMayBeZero(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Sink.Backends = []string{BackendMQTT}
	cfg.Sink.PublishTimeout = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v with zero timeout", err)
	}
	cfg.Sink.PublishTimeout = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() error = nil for negative timeout")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadConfig() error = nil for missing file")
	}
}
