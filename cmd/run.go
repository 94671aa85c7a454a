package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/script-diagnostics/internal/gojaengine"
	"yqhp/script-diagnostics/pkg/dispatcher"
	"yqhp/script-diagnostics/pkg/holder"
	"yqhp/script-diagnostics/pkg/logger"
)

var (
	// run 命令的 flags
	runTimeout time.Duration
	runQuery   string
	runName    string
)

// runCmd 是 run 子命令
var runCmd = &cobra.Command{
	Use:   "run <script.js>",
	Short: "执行脚本，失败时输出错误报告",
	Example: `  # 执行脚本
  script-diagnostics run app.js

  # 限制执行时间，超时后报告 "execution terminated"
  script-diagnostics run -t 500ms app.js

  # 只输出报告中的部分字段
  script-diagnostics run --query '$.frames[0].functionName' app.js`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().DurationVarP(&runTimeout, "timeout", "t", 0, "脚本执行超时 (覆盖配置)")
	runCmd.Flags().StringVarP(&runQuery, "query", "q", "", "对错误报告执行的 JSONPath 查询 (覆盖配置)")
	runCmd.Flags().StringVar(&runName, "name", "", "报告中使用的脚本名 (默认为文件名)")
}

func runScript(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := args[0]
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	timeout := cfg.Runtime.Timeout
	if cmd.Flags().Changed("timeout") {
		timeout = runTimeout
	}
	query := cfg.Report.Query
	if cmd.Flags().Changed("query") {
		query = runQuery
	}
	name := runName
	if name == "" {
		name = filepath.Base(path)
	}

	d := dispatcher.New(holder.NewStore())
	rt, err := gojaengine.New(d, gojaengine.WithStackDepth(cfg.Runtime.StackDepth))
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	origin := gojaengine.ScriptOrigin{
		Name:              name,
		SharedCrossOrigin: cfg.Runtime.SharedCrossOrigin,
		Opaque:            cfg.Runtime.Opaque,
	}
	_, err = rt.RunScript(ctx, origin, string(src))
	if err == nil {
		logger.Debug("script completed", zap.String("script", name))
		return nil
	}

	var scriptErr *gojaengine.ScriptError
	if !errors.As(err, &scriptErr) {
		return err
	}
	logger.Debug("script failed",
		zap.String("script", name),
		zap.String("code", string(scriptErr.Code)),
	)

	out, err := renderReport(scriptErr.Report, query)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return ErrScriptFailed
}

// renderReport 输出完整报告，或输出 JSONPath 查询结果（每个结果一行）
func renderReport(report, query string) (string, error) {
	if query == "" {
		return report, nil
	}

	expr, err := jp.ParseString(query)
	if err != nil {
		return "", fmt.Errorf("invalid query %q: %w", query, err)
	}
	data, err := oj.ParseString(report)
	if err != nil {
		return "", fmt.Errorf("parse report: %w", err)
	}

	results := expr.Get(data)
	lines := make([]string, 0, len(results))
	for _, v := range results {
		lines = append(lines, oj.JSON(v))
	}
	return strings.Join(lines, "\n"), nil
}
