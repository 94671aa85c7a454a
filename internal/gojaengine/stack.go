package gojaengine

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"yqhp/script-diagnostics/pkg/engine"
)

const (
	nativeScriptName = "<native>"
	evalScriptName   = "<eval>"
)

// anonymousFuncName goja 给顶层代码和匿名函数的名称，报告中记为空
const anonymousFuncName = "<anonymous>"

// frame engine.StackFrame 的 goja 实现，构造时即完成解析
type frame struct {
	line     int
	column   int
	function string
	script   string
	eval     bool
}

var _ engine.StackFrame = frame{}

func (f frame) LineNumber() int { return f.line }
func (f frame) Column() int { return f.column }
func (f frame) FunctionName() string { return f.function }
func (f frame) IsEval() bool { return f.eval }
func (f frame) IsConstructor() bool { return false }
func (f frame) IsWasm() bool { return false }

func (f frame) ScriptNameOrSourceURL() (string, bool) {
	if f.script == "" {
		return "", false
	}
	return f.script, true
}

// hasPosition 是否为带有源码位置的脚本帧
func (f frame) hasPosition() bool {
	return f.line > 0 && f.script != nativeScriptName
}

// fromGojaFrame eval 代码没有脚本名（或为 <eval>），以此识别 eval 帧
func fromGojaFrame(sf goja.StackFrame) frame {
	pos := sf.Position()
	f := frame{
		line:     pos.Line,
		column:   pos.Column,
		function: functionName(sf.FuncName()),
		script:   sf.SrcName(),
	}
	if f.script == evalScriptName {
		f.script = ""
	}
	if f.script == "" && f.line > 0 {
		f.eval = true
	}
	return f
}

func functionName(name string) string {
	if name == anonymousFuncName {
		return ""
	}
	return name
}

// stackCarrier 能直接给出结构化堆栈的异常
type stackCarrier interface {
	Stack() []goja.StackFrame
}

// captureStack 取异常的调用栈，最内层在前。
// 优先使用结构化堆栈，否则解析异常文本中的 "\tat ..." 行。
func captureStack(err error, depth int) ([]frame, bool) {
	var frames []frame
	if sc, ok := err.(stackCarrier); ok {
		for _, sf := range sc.Stack() {
			frames = append(frames, fromGojaFrame(sf))
		}
	} else if s, ok := err.(interface{ String() string }); ok {
		frames = parseStack(s.String())
	}
	if len(frames) == 0 {
		return nil, false
	}
	if depth > 0 && len(frames) > depth {
		frames = frames[:depth]
	}
	return frames, true
}

var (
	scriptFrameRe = regexp.MustCompile(`^(?:(.+) \()?(.*):(\d+):(\d+)\(\d+\)\)?$`)
	nativeFrameRe = regexp.MustCompile(`^(?:(.+) \()?native\)?$`)
)

// parseStack 解析 goja 异常文本中的堆栈行
func parseStack(text string) []frame {
	var frames []frame
	for _, line := range strings.Split(text, "\n") {
		rest, ok := strings.CutPrefix(line, "\tat ")
		if !ok {
			continue
		}
		if f, ok := parseFrame(rest); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

func parseFrame(s string) (frame, bool) {
	if m := nativeFrameRe.FindStringSubmatch(s); m != nil {
		return frame{function: functionName(m[1]), script: nativeScriptName}, true
	}
	m := scriptFrameRe.FindStringSubmatch(s)
	if m == nil {
		return frame{}, false
	}
	line, _ := strconv.Atoi(m[3])
	column, _ := strconv.Atoi(m[4])
	f := frame{
		line:     line,
		column:   column,
		function: functionName(m[1]),
		script:   m[2],
	}
	if f.script == evalScriptName {
		f.script = ""
		f.eval = true
	}
	return f, true
}

// topFrame 第一个带源码位置的帧
func topFrame(frames []frame) (frame, bool) {
	for _, f := range frames {
		if f.hasPosition() {
			return f, true
		}
	}
	return frame{}, false
}

func toEngineFrames(frames []frame) []engine.StackFrame {
	if len(frames) == 0 {
		return nil
	}
	out := make([]engine.StackFrame, len(frames))
	for i, f := range frames {
		out[i] = f
	}
	return out
}
