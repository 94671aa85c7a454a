// Package config 加载 script-diagnostics 的 YAML 配置
package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"yqhp/script-diagnostics/pkg/logger"
)

// Config 全局配置结构
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Report  ReportConfig  `yaml:"report"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json, console
	Output     string `yaml:"output"` // stdout, stderr, file, both
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
}

// RuntimeConfig 脚本运行时配置
type RuntimeConfig struct {
	Timeout           time.Duration `yaml:"timeout"`             // 脚本执行超时，0 表示不限制
	StackDepth        int           `yaml:"stack_depth"`         // 上报的最大堆栈帧数，0 表示不限制
	SharedCrossOrigin bool          `yaml:"shared_cross_origin"` // 脚本来源是否跨域共享
	Opaque            bool          `yaml:"opaque"`              // 脚本来源是否不透明
}

// ReportConfig 报告输出配置
type ReportConfig struct {
	Query string `yaml:"query"` // 对报告执行的 JSONPath 查询，空表示输出完整报告
}

var (
	globalConfig *Config
	mu           sync.RWMutex
)

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Runtime: RuntimeConfig{
			Timeout:    30 * time.Second,
			StackDepth: 10,
		},
	}
}

// LoadConfig 加载配置文件，未设置的字段保留默认值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig 解析 YAML 配置
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	switch c.Log.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	switch c.Log.Output {
	case "", "stdout", "stderr", "both":
	case "file":
		if c.Log.FilePath == "" {
			errs = append(errs, errors.New("log.file_path: required when output is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("log.output: unknown output %q", c.Log.Output))
	}
	if c.Runtime.Timeout < 0 {
		errs = append(errs, errors.New("runtime.timeout: must not be negative"))
	}
	if c.Runtime.StackDepth < 0 {
		errs = append(errs, errors.New("runtime.stack_depth: must not be negative"))
	}
	return errors.Join(errs...)
}

// LoggerConfig 转换为日志配置
func (c *Config) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		Output:     c.Log.Output,
		FilePath:   c.Log.FilePath,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
	}
}

// GetConfig 获取全局配置，未设置时返回默认配置
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if globalConfig == nil {
		return DefaultConfig()
	}
	return globalConfig
}

// SetConfig 设置全局配置
func SetConfig(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = cfg
}
