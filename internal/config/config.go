package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dinanjanan/cryostat-probe/internal/instrument"
	"github.com/dinanjanan/cryostat-probe/internal/procedure"
)

type Config struct {
	Experiment     procedure.Experiment            `yaml:"experiment"`
	Instruments    InstrumentsConfig               `yaml:"instruments"`
	Sweep          procedure.Parameters            `yaml:"sweep"`
	SetTemperature procedure.TemperatureParameters `yaml:"set_temperature"`
	SetCurrent     procedure.CurrentParameters     `yaml:"set_current"`
	IV             procedure.IVParameters          `yaml:"iv"`
	Sink           SinkConfig                      `yaml:"sink"`
	Redis          RedisConfig                     `yaml:"redis"`
	Kafka          KafkaConfig                     `yaml:"kafka"`
	MQTT           MQTTConfig                      `yaml:"mqtt"`
	Log            LogConfig                       `yaml:"log"`
	Monitor        MonitorConfig                   `yaml:"monitor"`
}

type InstrumentsConfig struct {
	GPIBPort   string            `yaml:"gpib_port"`
	Timeout    time.Duration     `yaml:"timeout"`
	Simulate   bool              `yaml:"simulate"`
	SimSpeedup float64           `yaml:"sim_speedup"`
	Addresses  map[string]string `yaml:"addresses"`
}

type SinkConfig struct {
	Backends       []string      `yaml:"backends"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Channel  string `yaml:"channel"`
	Keep     int64  `yaml:"keep"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// 可选的发布后端
const (
	BackendLog   = "log"
	BackendRedis = "redis"
	BackendKafka = "kafka"
	BackendMQTT  = "mqtt"
)

// LoadConfig 加载配置文件, 未出现的字段保留默认值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Experiment: procedure.FieldSweep,
		Instruments: InstrumentsConfig{
			GPIBPort:   "/dev/ttyUSB0",
			Timeout:    3 * time.Second,
			SimSpeedup: 100,
		},
		Sweep:          procedure.DefaultParameters(),
		SetTemperature: procedure.DefaultTemperatureParameters(),
		SetCurrent:     procedure.DefaultCurrentParameters(),
		IV:             procedure.DefaultIVParameters(),
		Sink: SinkConfig{
			Backends:       []string{BackendLog},
			PublishTimeout: 2 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			Channel:  "fieldsweep_data",
			Keep:     10000,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "fieldsweep",
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "cryostat-probe",
			TopicPrefix: "lab/fieldsweep",
			QoS:         1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Monitor: MonitorConfig{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	if err := c.validateExperiment(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Addresses(); err != nil {
		errs = append(errs, err)
	}
	for _, b := range c.Sink.Backends {
		switch strings.ToLower(b) {
		case BackendLog, BackendRedis, BackendKafka, BackendMQTT:
		default:
			errs = append(errs, fmt.Errorf("unknown sink backend %q", b))
		}
	}
	if c.hasBackend(BackendKafka) && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka backend requires brokers"))
	}
	if c.Sink.PublishTimeout < 0 {
		errs = append(errs, fmt.Errorf("publish timeout must be >= 0: %s", c.Sink.PublishTimeout))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt qos must be 0-2: %d", c.MQTT.QoS))
	}
	if c.Instruments.Simulate && !(c.Instruments.SimSpeedup > 0) {
		errs = append(errs, fmt.Errorf("sim speedup must be > 0: %g", c.Instruments.SimSpeedup))
	}
	if c.Instruments.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("instrument timeout must be > 0: %s", c.Instruments.Timeout))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("配置无效: %w", errors.Join(errs...))
}

// validateExperiment 只校验所选实验的参数
func (c *Config) validateExperiment() error {
	exp, err := procedure.ParseExperiment(string(c.Experiment))
	if err != nil {
		return err
	}
	switch exp {
	case procedure.SetTemperature:
		return c.SetTemperature.Validate()
	case procedure.SetCurrent:
		return c.SetCurrent.Validate()
	case procedure.IVCurve:
		return c.IV.Validate()
	default:
		return c.Sweep.Validate()
	}
}

// SampleName 所选实验的样品名称
func (c *Config) SampleName() string {
	if exp, _ := procedure.ParseExperiment(string(c.Experiment)); exp == procedure.IVCurve {
		return c.IV.SampleName
	}
	return c.Sweep.SampleName
}

// Addresses 把按角色名配置的地址转为角色表
func (c *Config) Addresses() (map[instrument.Role]string, error) {
	out := make(map[instrument.Role]string, len(c.Instruments.Addresses))
	for name, addr := range c.Instruments.Addresses {
		role, err := instrument.ParseRole(name)
		if err != nil {
			return nil, err
		}
		out[role] = addr
	}
	return out, nil
}

// hasBackend 是否启用了某个发布后端
func (c *Config) hasBackend(name string) bool {
	for _, b := range c.Sink.Backends {
		if strings.EqualFold(b, name) {
			return true
		}
	}
	return false
}
