// Package dispatcher 处理脚本引擎抛出的异常和消息事件：
// 判断引擎是否处于终止流程，必要时临时唤醒引擎生成报告，然后把报告发布到上下文槽位。
package dispatcher

import (
	"fmt"

	"go.uber.org/zap"

	"yqhp/script-diagnostics/pkg/engine"
	"yqhp/script-diagnostics/pkg/holder"
	"yqhp/script-diagnostics/pkg/logger"
	"yqhp/script-diagnostics/pkg/report"
)

// TerminatedMessage 终止流程中异常值缺失时合成错误使用的文本
const TerminatedMessage = "execution terminated"

// Dispatcher 异常分发器
type Dispatcher struct {
	store  *holder.Store
	logger *zap.Logger
}

// Option 分发器选项
type Option func(*Dispatcher)

// WithLogger 指定日志实例，默认使用全局日志
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// New 创建分发器，报告发布到 store 中对应上下文的槽位
func New(store *holder.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{store: store}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.L()
	}
	return d
}

// Store 返回报告槽位集合
func (d *Dispatcher) Store() *holder.Store {
	return d.store
}

// HandleException 处理一个被抛出的异常值。
//
// 引擎处于终止流程时先取消终止，异常值为空则合成 "execution terminated" 错误，
// 递归处理后无论成功、失败还是 panic 都会恢复终止信号。
func (d *Dispatcher) HandleException(ctx engine.Context, exception engine.Value) error {
	if ctx.IsExecutionTerminating() {
		resume := suspendTermination(ctx)
		defer resume()

		if exception == nil || exception.IsNullOrUndefined() {
			exception = ctx.NewError(TerminatedMessage)
		}
		d.logger.Debug("handling exception during termination",
			zap.String("context", ctx.ID()),
		)
		return d.HandleException(ctx, exception)
	}

	message := ctx.CreateMessage(exception)
	return d.publish(ctx, message)
}

// HandleExceptionMessage 处理引擎直接投递的消息对象（消息监听回调）。
// 终止流程中丢弃该消息，改为上报合成的 "execution terminated" 错误。
func (d *Dispatcher) HandleExceptionMessage(ctx engine.Context, message engine.Message) error {
	if ctx.IsExecutionTerminating() {
		d.logger.Debug("discarding message during termination",
			zap.String("context", ctx.ID()),
		)
		return d.HandleException(ctx, ctx.Undefined())
	}
	return d.publish(ctx, message)
}

// publish 构建、序列化并覆盖上下文的最近报告
func (d *Dispatcher) publish(ctx engine.Context, message engine.Message) error {
	r := report.Build(ctx, message)
	text, err := report.Serialize(r)
	if err != nil {
		d.logger.Error("failed to serialize error report",
			zap.String("context", ctx.ID()),
			zap.Error(err),
		)
		return err
	}

	if err := d.store.Publish(ctx.ID(), text); err != nil {
		d.logger.Error("failed to publish error report",
			zap.String("context", ctx.ID()),
			zap.Error(err),
		)
		return fmt.Errorf("publish report: %w", err)
	}

	d.logger.Debug("error report published",
		zap.String("context", ctx.ID()),
		zap.String("message", r.Message),
		zap.Int("frames", r.FrameCount()),
	)
	return nil
}
