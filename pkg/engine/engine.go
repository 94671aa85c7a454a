// Package engine 定义异常上报核心所依赖的脚本引擎契约。
//
// 核心只通过这些接口访问脚本引擎：消息对象、堆栈帧、异常值，以及执行上下文
// 提供的终止控制和错误构造能力。具体引擎（如 goja）由适配器实现。
package engine

// 消息错误级别，与引擎的消息级别取值保持一致
const (
	ErrorLevelLog     = 1
	ErrorLevelDebug   = 2
	ErrorLevelInfo    = 4
	ErrorLevelError   = 8
	ErrorLevelWarning = 16
	ErrorLevelAll     = ErrorLevelLog | ErrorLevelDebug | ErrorLevelInfo | ErrorLevelError | ErrorLevelWarning
)

// Value 引擎中的脚本值
type Value interface {
	// IsNullOrUndefined 是否为 null 或 undefined
	IsNullOrUndefined() bool
	// String 值的文本形式
	String() string
}

// StackFrame 堆栈中的一个调用点
type StackFrame interface {
	LineNumber() int
	Column() int
	FunctionName() string
	// ScriptNameOrSourceURL 返回脚本名，引擎无法给出来源时 ok 为 false
	ScriptNameOrSourceURL() (name string, ok bool)
	IsEval() bool
	IsConstructor() bool
	IsWasm() bool
}

// Message 引擎对一次错误/诊断的描述，独立于被抛出的值本身
type Message interface {
	// Text 渲染后的消息文本
	Text() string
	// ScriptResourceName 源单元标识
	ScriptResourceName() Value
	// StartPosition 起始字符偏移，未知时为 -1
	StartPosition() int
	// EndPosition 结束字符偏移，未知时为 -1
	EndPosition() int
	ErrorLevel() int
	IsSharedCrossOrigin() bool
	IsOpaque() bool

	// 以下字段依赖上下文解析，各自独立地可能失败

	SourceLine() (string, bool)
	LineNumber() (int, bool)
	StartColumn() (int, bool)
	EndColumn() (int, bool)

	// StackTrace 捕获的堆栈，最内层调用在前；nil 表示不可用
	StackTrace() []StackFrame
}

// Context 执行上下文：一个隔离的脚本引擎实例
type Context interface {
	// ID 上下文标识，用于定位该上下文的上报槽位
	ID() string

	// IsExecutionTerminating 是否正处于强制终止流程中
	IsExecutionTerminating() bool
	// CancelTerminateExecution 取消终止信号
	CancelTerminateExecution()
	// TerminateExecution 设置（或重新设置）终止信号
	TerminateExecution()

	// NewError 用给定文本构造一个错误值
	NewError(text string) Value
	// Undefined 返回 undefined 值
	Undefined() Value
	// CreateMessage 由异常值生成消息对象
	CreateMessage(exception Value) Message
	// JSONStringify 使用引擎的 JSON 序列化能力将值转为文本
	JSONStringify(v Value) (string, error)
}
