// Package cmd 提供 script-diagnostics CLI 的命令实现
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"yqhp/script-diagnostics/internal/config"
	"yqhp/script-diagnostics/pkg/logger"
)

// Version 是当前版本号
const Version = "0.1.0"

// ErrScriptFailed 脚本执行失败且报告已输出
var ErrScriptFailed = errors.New("script failed")

var (
	// 全局配置
	cfgFile string
	debug   bool
)

// rootCmd 是根命令
var rootCmd = &cobra.Command{
	Use:   "script-diagnostics",
	Short: "执行脚本并输出结构化错误报告",
	Long: `script-diagnostics 在嵌入式 JavaScript 引擎中执行脚本，
脚本抛出未捕获异常、语法错误或被强制终止时输出固定结构的 JSON 错误报告。`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute 执行根命令
func Execute() {
	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		if !errors.Is(err, ErrScriptFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "启用调试日志")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig 加载配置并初始化日志
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if cfgFile != "" {
		loaded, err := config.LoadConfig(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", cfgFile, err)
		}
		cfg = loaded
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	config.SetConfig(cfg)
	logger.Replace(logger.New(cfg.LoggerConfig()))
	return cfg, nil
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}
