package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fansqz/auto-debugger/constants"
	"gopkg.in/yaml.v3"
)

// Config auto-debugger的全部配置
type Config struct {
	Log          LogConfig          `yaml:"log"`
	Engine       EngineConfig       `yaml:"engine"`
	Dap          DapConfig          `yaml:"dap"`
	Replay       ReplayConfig       `yaml:"replay"`
	Source       SourceConfig       `yaml:"source"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Server       ServerConfig       `yaml:"server"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

type LogConfig struct {
	// Level debug, info, warn, error
	Level string `yaml:"level"`
	// Format text或者json
	Format string `yaml:"format"`
	// File 日志文件，为空时输出到stderr
	File string `yaml:"file,omitempty"`
}

// EngineConfig 执行引擎配置
type EngineConfig struct {
	Type constants.EngineType `yaml:"type"`
	// Timeout 单步、继续、断点等引擎调用的超时时间
	Timeout time.Duration `yaml:"timeout"`
	// EvaluateTimeout 表达式计算的超时时间
	EvaluateTimeout time.Duration `yaml:"evaluate_timeout"`
}

type DapConfig struct {
	Address        string                 `yaml:"address,omitempty"`
	AdapterCommand string                 `yaml:"adapter_command,omitempty"`
	AdapterArgs    []string               `yaml:"adapter_args,omitempty"`
	Mode           string                 `yaml:"mode"`
	Arguments      map[string]interface{} `yaml:"arguments,omitempty"`
	SourceRoot     string                 `yaml:"source_root,omitempty"`
	StopOnEntry    bool                   `yaml:"stop_on_entry"`
}

type ReplayConfig struct {
	Script string `yaml:"script,omitempty"`
}

// SourceConfig 源码索引配置
type SourceConfig struct {
	Root      string   `yaml:"root"`
	Languages []string `yaml:"languages"`
}

// OrchestratorConfig 编排器配置
type OrchestratorConfig struct {
	// OperationIdleTimeout 操作在该时间内没有收到任何事件则判定为失败
	OperationIdleTimeout time.Duration `yaml:"operation_idle_timeout"`
	// StepsPerSecond 编排器发出单步请求的速率
	StepsPerSecond float64 `yaml:"steps_per_second"`
	// ResultRetention 保留的操作结果数量，0表示不限制
	ResultRetention int `yaml:"result_retention"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type MetricsConfig struct {
	// Address 为空时不开启/metrics
	Address string `yaml:"address,omitempty"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Engine: EngineConfig{
			Type:            constants.DapEngine,
			Timeout:         5 * time.Second,
			EvaluateTimeout: 5 * time.Second,
		},
		Dap: DapConfig{
			Mode: "launch",
		},
		Source: SourceConfig{
			Root:      ".",
			Languages: []string{"go", "c", "cpp", "java"},
		},
		Orchestrator: OrchestratorConfig{
			OperationIdleTimeout: 30 * time.Second,
			StepsPerSecond:       50,
		},
		Server: ServerConfig{
			Port: "8889",
		},
	}
}

// Load 读取yaml配置文件，文件中没有的字段使用默认值
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}
	switch c.Engine.Type {
	case constants.DapEngine:
		if c.Dap.Mode != "launch" && c.Dap.Mode != "attach" {
			errs = append(errs, fmt.Sprintf("dap.mode must be one of [launch, attach], got %q", c.Dap.Mode))
		}
	case constants.ReplayEngine:
	default:
		errs = append(errs, fmt.Sprintf("engine.type must be one of [dap, replay], got %q", c.Engine.Type))
	}
	if c.Engine.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("engine.timeout must be positive, got %v", c.Engine.Timeout))
	}
	if c.Engine.EvaluateTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("engine.evaluate_timeout must be positive, got %v", c.Engine.EvaluateTimeout))
	}
	if c.Orchestrator.OperationIdleTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("orchestrator.operation_idle_timeout must be positive, got %v", c.Orchestrator.OperationIdleTimeout))
	}
	if c.Orchestrator.StepsPerSecond < 0 {
		errs = append(errs, fmt.Sprintf("orchestrator.steps_per_second must not be negative, got %v", c.Orchestrator.StepsPerSecond))
	}
	if c.Orchestrator.ResultRetention < 0 {
		errs = append(errs, fmt.Sprintf("orchestrator.result_retention must not be negative, got %d", c.Orchestrator.ResultRetention))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
