package runner

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/dinanjanan/cryostat-probe/internal/config"
	"github.com/dinanjanan/cryostat-probe/internal/procedure"
)

func simConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Instruments.Simulate = true
	cfg.Instruments.SimSpeedup = 1e9
	cfg.Monitor.Enabled = false
	cfg.Sink.Backends = []string{config.BackendLog}
	return cfg
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestRunSimulatedSweep(t *testing.T) {
	r, err := NewRunner(context.Background(), simConfig(), quietLogger())
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	st := r.Status()
	if st.State != "terminated" || st.Progress != 100 {
		t.Fatalf("Status() = %+v", st)
	}
	if st.Points != 41 || st.RunID == "" {
		t.Fatalf("Status() = %+v", st)
	}
	for role, ok := range st.Instruments {
		if ok {
			t.Fatalf("%s still connected after run", role)
		}
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	r, err := NewRunner(context.Background(), simConfig(), quietLogger())
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	r.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if st := r.Status(); st.Progress == 100 {
		t.Fatalf("stopped run reached completion: %+v", st)
	}
}

func TestRunSelectsExperiment(t *testing.T) {
	cases := []struct {
		experiment procedure.Experiment
		points     int
	}{
		{procedure.SetTemperature, 0},
		{procedure.SetCurrent, 0},
		{procedure.IVCurve, 401},
	}
	for _, tc := range cases {
		t.Run(string(tc.experiment), func(t *testing.T) {
			cfg := simConfig()
			cfg.Experiment = tc.experiment
			r, err := NewRunner(context.Background(), cfg, quietLogger())
			if err != nil {
				t.Fatalf("NewRunner() error = %v", err)
			}
			if err := r.Run(context.Background()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			st := r.Status()
			if st.State != "terminated" || st.Progress != 100 || st.Points != tc.points {
				t.Fatalf("Status() = %+v", st)
			}
		})
	}
}

func TestNewRunnerRejectsUnknownBackend(t *testing.T) {
	cfg := simConfig()
	cfg.Sink.Backends = []string{"fax"}
	if _, err := NewRunner(context.Background(), cfg, quietLogger()); err == nil {
		t.Fatal("NewRunner() error = nil for unknown backend")
	}
}
