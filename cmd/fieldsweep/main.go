package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/dinanjanan/cryostat-probe/internal/config"
	"github.com/dinanjanan/cryostat-probe/internal/procedure"
	"github.com/dinanjanan/cryostat-probe/internal/runner"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
)

func main() {
	// 命令行参数
	configFile := flag.String("config", "configs/config.yaml", "配置文件路径")
	showVersion := flag.Bool("version", false, "显示版本信息")
	simulate := flag.Bool("simulate", false, "使用模拟仪器运行")
	sample := flag.String("sample", "", "样品名称, 覆盖配置文件")
	experiment := flag.String("experiment", "", "实验类型: field_sweep, set_temperature, set_current, iv")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Field Sweep v%s (Build: %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// 加载配置
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "配置文件不存在: %s, 使用默认配置\n", *configFile)
		cfg = config.GetDefaultConfig()
	}
	if *simulate {
		cfg.Instruments.Simulate = true
	}
	if *experiment != "" {
		exp, err := procedure.ParseExperiment(*experiment)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		cfg.Experiment = exp
	}
	if *sample != "" {
		cfg.Sweep.SampleName = *sample
		cfg.IV.SampleName = *sample
	}

	log := setupLogger(cfg.Log)
	log.Infof("Field Sweep v%s 启动中...", Version)
	log.Infof("配置文件: %s", *configFile)
	log.Infof("实验类型: %s", cfg.Experiment)

	ctx := context.Background()
	r, err := runner.NewRunner(ctx, cfg, log)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	log.Infof("运行编号: %s", r.RunID())

	if err := r.Run(ctx); err != nil {
		if errors.Is(err, procedure.ErrMagnetOverheated) {
			log.Error("磁体过热联锁已触发, 请检查制冷后再运行")
		}
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()

	// 设置日志级别
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	// 设置日志格式
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	// 设置输出
	if cfg.Output == "file" && cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			log.SetOutput(file)
		} else {
			log.Warnf("打开日志文件失败: %v, 使用标准输出", err)
		}
	}

	return log
}
