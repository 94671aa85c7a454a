// Package report 将脚本引擎的诊断消息规范化为结构化错误报告，并渲染为固定结构的 JSON。
package report

import (
	"github.com/bytedance/sonic"

	"yqhp/script-diagnostics/pkg/engine"
)

// UnknownScriptName 引擎无法给出脚本来源时使用的脚本名
const UnknownScriptName = "<unknown>"

// ErrorReport 规范化后的诊断报告，每次异常/消息事件构造一次，构造后不可变
type ErrorReport struct {
	Message             string
	ScriptResourceName  string
	StartPosition       int
	EndPosition         int
	ErrorLevel          int
	IsSharedCrossOrigin bool
	IsOpaque            bool

	SourceLine  Optional[string]
	LineNumber  Optional[int]
	StartColumn Optional[int]
	EndColumn   Optional[int]

	// Frames 真实堆栈帧，最内层调用在前
	Frames []StackFrame
	// Fallback 堆栈不可用时合成的单个帧，与 Frames 互斥
	Fallback Optional[SyntheticFrame]
}

// StackFrame 堆栈中的一个调用点
type StackFrame struct {
	Line          int
	Column        int
	FunctionName  string
	ScriptName    string
	IsEval        bool
	IsConstructor bool
	IsWasm        bool
}

// SyntheticFrame 堆栈不可用时由消息自身位置合成的帧
type SyntheticFrame struct {
	Line       Optional[int]
	Column     Optional[int]
	ScriptName string
}

// HasStackTrace 报告是否携带真实堆栈
func (r ErrorReport) HasStackTrace() bool {
	return len(r.Frames) > 0
}

// FrameCount 序列化后 frames 数组的长度，恒大于 0
func (r ErrorReport) FrameCount() int {
	if r.HasStackTrace() {
		return len(r.Frames)
	}
	return 1
}

// Stringifier 引擎的 JSON 序列化能力，engine.Context 满足该接口
type Stringifier interface {
	JSONStringify(v engine.Value) (string, error)
}

// Build 从诊断消息提取全部字段和堆栈帧。
// 不会失败：任一可选字段解析失败时仅省略该字段，不影响其他字段。
func Build(ctx Stringifier, message engine.Message) ErrorReport {
	r := ErrorReport{
		Message:             message.Text(),
		ScriptResourceName:  valueText(message.ScriptResourceName()),
		StartPosition:       message.StartPosition(),
		EndPosition:         message.EndPosition(),
		ErrorLevel:          message.ErrorLevel(),
		IsSharedCrossOrigin: message.IsSharedCrossOrigin(),
		IsOpaque:            message.IsOpaque(),
	}

	r.SourceLine = OptionalOf[string](message.SourceLine())
	r.LineNumber = OptionalOf[int](message.LineNumber())
	r.StartColumn = OptionalOf[int](message.StartColumn())
	r.EndColumn = OptionalOf[int](message.EndColumn())

	trace := message.StackTrace()
	if len(trace) == 0 {
		r.Fallback = Some(SyntheticFrame{
			Line:       r.LineNumber,
			Column:     r.StartColumn,
			ScriptName: stringifyResourceName(ctx, message.ScriptResourceName()),
		})
		return r
	}

	r.Frames = make([]StackFrame, 0, len(trace))
	for _, f := range trace {
		r.Frames = append(r.Frames, buildFrame(f))
	}
	return r
}

func buildFrame(f engine.StackFrame) StackFrame {
	scriptName, ok := f.ScriptNameOrSourceURL()
	if !ok {
		scriptName = UnknownScriptName
	}
	return StackFrame{
		Line:          f.LineNumber(),
		Column:        f.Column(),
		FunctionName:  f.FunctionName(),
		ScriptName:    scriptName,
		IsEval:        f.IsEval(),
		IsConstructor: f.IsConstructor(),
		IsWasm:        f.IsWasm(),
	}
}

// stringifyResourceName 合成帧的 scriptName 取资源名的 JSON 文本形式
func stringifyResourceName(ctx Stringifier, name engine.Value) string {
	if name == nil || name.IsNullOrUndefined() {
		return UnknownScriptName
	}
	if ctx != nil {
		if s, err := ctx.JSONStringify(name); err == nil {
			return s
		}
	}
	// 引擎无法序列化时按字符串处理
	s, err := sonic.MarshalString(name.String())
	if err != nil {
		return UnknownScriptName
	}
	return s
}

func valueText(v engine.Value) string {
	if v == nil {
		return ""
	}
	return v.String()
}
