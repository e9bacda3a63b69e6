package monitor

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	// 仪器连接指标
	InstrumentConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cryostat_instrument_connected",
			Help: "仪器是否已连接 (1=已连接)",
		},
		[]string{"role"},
	)

	DeviceFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryostat_device_faults_total",
			Help: "仪器操作失败次数",
		},
		[]string{"role", "op"},
	)

	// 运行状态指标
	RunState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cryostat_run_state",
		Help: "扫场流程当前状态编号",
	})

	Progress = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cryostat_sweep_progress_percent",
		Help: "扫场进度 (%)",
	})

	SamplesEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cryostat_samples_emitted_total",
		Help: "已发出的采样点数",
	})

	SinkErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cryostat_sink_errors_total",
		Help: "采样发布失败次数",
	})

	// 物理量指标
	MagneticField = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cryostat_magnetic_field_tesla",
		Help: "最近一次读回的磁场",
	})

	Voltage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cryostat_sample_voltage_volts",
		Help: "最近一次测得的样品电压",
	})

	StageTemperature = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cryostat_stage_temperature_kelvin",
			Help: "温控器各通道温度",
		},
		[]string{"stage"},
	)

	// Goroutine指标
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cryostat_goroutines",
		Help: "当前Goroutine数量",
	})

	// 内存指标
	MemoryUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cryostat_memory_usage_bytes",
		Help: "内存使用量",
	})
)

// Monitor 指标注册与运行时采集
type Monitor struct {
	log      *logrus.Logger
	registry *prometheus.Registry
}

// NewMonitor 创建监控并注册全部指标
func NewMonitor(log *logrus.Logger) *Monitor {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		InstrumentConnected,
		DeviceFaults,
		RunState,
		Progress,
		SamplesEmitted,
		SinkErrors,
		MagneticField,
		Voltage,
		StageTemperature,
		GoroutineCount,
		MemoryUsage,
	)

	return &Monitor{log: log, registry: reg}
}

// Gatherer 返回指标收集器, 供 /metrics 使用
func (m *Monitor) Gatherer() prometheus.Gatherer {
	return m.registry
}

// StartRuntimeMonitor 启动运行时监控, done 关闭后退出
func (m *Monitor) StartRuntimeMonitor(done <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				GoroutineCount.Set(float64(runtime.NumGoroutine()))

				var memStats runtime.MemStats
				runtime.ReadMemStats(&memStats)
				MemoryUsage.Set(float64(memStats.Alloc))

				m.log.Debugf("Goroutines: %d, 内存: %.2f MB",
					runtime.NumGoroutine(),
					float64(memStats.Alloc)/1024/1024,
				)
			}
		}
	}()
}
