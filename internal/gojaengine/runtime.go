// Package gojaengine 基于 goja 实现执行上下文，把脚本异常交给分发器生成错误报告。
package gojaengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"yqhp/script-diagnostics/pkg/dispatcher"
	"yqhp/script-diagnostics/pkg/engine"
	"yqhp/script-diagnostics/pkg/logger"
)

// DefaultScriptName 未指定脚本名时使用的名称
const DefaultScriptName = "<anonymous>"

// ScriptOrigin 脚本来源信息
type ScriptOrigin struct {
	Name              string
	SharedCrossOrigin bool
	Opaque            bool
}

// Runtime 一个 goja 执行上下文，实现 engine.Context
type Runtime struct {
	id         string
	vm         *goja.Runtime
	stringify  goja.Callable
	dispatcher *dispatcher.Dispatcher
	sources    *sourceSet
	logger     *zap.Logger
	stackDepth int

	terminating atomic.Bool

	originMu sync.RWMutex
	origin   ScriptOrigin
}

var _ engine.Context = (*Runtime)(nil)

// Option 运行时选项
type Option func(*Runtime)

// WithLogger 指定日志实例
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// WithStackDepth 限制上报的堆栈帧数量，0 表示不限制
func WithStackDepth(depth int) Option {
	return func(r *Runtime) {
		r.stackDepth = depth
	}
}

// New 创建执行上下文，并在分发器的槽位集合中注册该上下文
func New(d *dispatcher.Dispatcher, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		id:         uuid.NewString(),
		vm:         goja.New(),
		dispatcher: d,
		sources:    newSourceSet(),
		origin:     ScriptOrigin{Name: DefaultScriptName},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.L()
	}

	stringify, ok := goja.AssertFunction(r.vm.Get("JSON").ToObject(r.vm).Get("stringify"))
	if !ok {
		return nil, errors.New("JSON.stringify is not callable")
	}
	r.stringify = stringify

	if err := d.Store().Open(r.id); err != nil {
		return nil, fmt.Errorf("open report slot: %w", err)
	}
	return r, nil
}

// ID 上下文标识
func (r *Runtime) ID() string {
	return r.id
}

// VM 底层 goja 运行时，用于注册宿主对象
func (r *Runtime) VM() *goja.Runtime {
	return r.vm
}

// Close 释放上下文的报告槽位
func (r *Runtime) Close() {
	r.dispatcher.Store().Close(r.id)
}

// IsExecutionTerminating 是否处于终止流程
func (r *Runtime) IsExecutionTerminating() bool {
	return r.terminating.Load()
}

// TerminateExecution 请求终止执行；运行时空闲时下一次执行会立即被中断
func (r *Runtime) TerminateExecution() {
	r.terminating.Store(true)
	r.vm.Interrupt(nil)
}

// CancelTerminateExecution 取消终止请求
func (r *Runtime) CancelTerminateExecution() {
	r.terminating.Store(false)
	r.vm.ClearInterrupt()
}

// LastException 该上下文最近一次的错误报告 JSON
func (r *Runtime) LastException() (string, bool) {
	return r.dispatcher.Store().Last(r.id)
}

func (r *Runtime) currentOrigin() ScriptOrigin {
	r.originMu.RLock()
	defer r.originMu.RUnlock()
	return r.origin
}

func (r *Runtime) setOrigin(origin ScriptOrigin) {
	r.originMu.Lock()
	defer r.originMu.Unlock()
	r.origin = origin
}

// RunScript 编译并执行脚本。
//
// ctx 到期时从看门狗 goroutine 请求终止执行。执行失败时错误报告会先发布到
// 上下文槽位，返回的 *ScriptError 也携带该报告。
func (r *Runtime) RunScript(ctx context.Context, origin ScriptOrigin, src string) (goja.Value, error) {
	if origin.Name == "" {
		origin.Name = DefaultScriptName
	}
	r.sources.add(origin.Name, src)
	r.setOrigin(origin)

	prg, err := goja.Compile(origin.Name, src, false)
	if err != nil {
		return nil, r.reportCompileError(err, origin, src)
	}

	val, err := r.run(ctx, prg)
	if err != nil {
		return nil, r.reportRuntimeError(err)
	}
	return val, nil
}

// run 执行程序，ctx 到期时中断执行；返回前等待看门狗退出
func (r *Runtime) run(ctx context.Context, prg *goja.Program) (goja.Value, error) {
	stop := r.watchdog(ctx)
	val, err := r.vm.RunProgram(prg)
	r.settle(stop(), err)
	return val, err
}

// watchdog ctx 到期时请求终止执行。
// 返回的 stop 只能调用一次，它等待看门狗退出并报告看门狗是否已请求终止。
func (r *Runtime) watchdog(ctx context.Context) (stop func() bool) {
	done := make(chan struct{})
	stopped := make(chan struct{})
	fired := false
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			r.logger.Debug("script deadline reached, terminating",
				zap.String("context", r.id),
				zap.Error(ctx.Err()),
			)
			fired = true
			r.TerminateExecution()
		case <-done:
		}
	}()

	return func() bool {
		close(done)
		<-stopped
		return fired
	}
}

// settle 看门狗请求了终止但脚本没有因此中断（到期前已结束）时撤销该请求
func (r *Runtime) settle(fired bool, err error) {
	if !fired {
		return
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return
	}
	r.logger.Debug("script finished before termination took effect",
		zap.String("context", r.id),
	)
	r.CancelTerminateExecution()
}

// reportCompileError 编译错误经消息监听路径上报
func (r *Runtime) reportCompileError(err error, origin ScriptOrigin, src string) error {
	msg := r.compileMessage(err, origin, src)
	if herr := r.dispatcher.HandleExceptionMessage(r, msg); herr != nil {
		return herr
	}
	return r.scriptError(ErrCodeSyntax, err)
}

// reportRuntimeError 运行期异常和中断经异常路径上报
func (r *Runtime) reportRuntimeError(err error) error {
	var (
		interrupted *goja.InterruptedError
		thrown      *goja.Exception
		exception   *value
		code        = ErrCodeException
	)
	switch {
	case errors.As(err, &interrupted):
		code = ErrCodeTerminated
		exception = &value{}
		if payload := interrupted.Value(); payload != nil {
			exception.v = r.vm.ToValue(payload)
		}
		exception.stack, exception.hasStack = captureStack(interrupted, r.stackDepth)
	case errors.As(err, &thrown):
		exception = &value{v: thrown.Value()}
		exception.stack, exception.hasStack = captureStack(thrown, r.stackDepth)
	default:
		exception = &value{v: r.vm.NewGoError(err)}
	}

	if herr := r.dispatcher.HandleException(r, exception); herr != nil {
		return herr
	}
	return r.scriptError(code, err)
}

func (r *Runtime) scriptError(code ErrorCode, cause error) *ScriptError {
	report, _ := r.LastException()
	return &ScriptError{
		Code:   code,
		Report: report,
		Cause:  cause,
	}
}
