package dispatcher

import "yqhp/script-diagnostics/pkg/engine"

// suspendTermination 取消上下文的终止信号，返回的函数重新设置终止信号。
// 调用方必须 defer 返回的函数，保证所有退出路径都恢复终止状态。
func suspendTermination(ctx engine.Context) (resume func()) {
	ctx.CancelTerminateExecution()
	resumed := false
	return func() {
		if resumed {
			return
		}
		resumed = true
		ctx.TerminateExecution()
	}
}
