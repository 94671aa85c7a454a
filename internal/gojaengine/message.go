package gojaengine

import (
	"errors"

	"github.com/dop251/goja"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"

	"yqhp/script-diagnostics/pkg/engine"
)

// message engine.Message 的 goja 实现，所有字段在构造时解析完毕
type message struct {
	text     string
	resource goja.Value
	start    int
	end      int
	level    int
	origin   ScriptOrigin

	sourceLine    string
	hasSourceLine bool
	line          int
	hasLine       bool
	column        int
	hasColumn     bool

	stack []engine.StackFrame
}

var _ engine.Message = (*message)(nil)

func (m *message) Text() string { return m.text }
func (m *message) ScriptResourceName() engine.Value { return &value{v: m.resource} }
func (m *message) StartPosition() int { return m.start }
func (m *message) EndPosition() int { return m.end }
func (m *message) ErrorLevel() int { return m.level }
func (m *message) IsSharedCrossOrigin() bool { return m.origin.SharedCrossOrigin }
func (m *message) IsOpaque() bool { return m.origin.Opaque }
func (m *message) SourceLine() (string, bool) { return m.sourceLine, m.hasSourceLine }
func (m *message) LineNumber() (int, bool) { return m.line, m.hasLine }
func (m *message) StackTrace() []engine.StackFrame { return m.stack }

// StartColumn 从 0 开始的起始列
func (m *message) StartColumn() (int, bool) { return m.column, m.hasColumn }

// EndColumn 只知道单点位置，结束列为起始列之后一列
func (m *message) EndColumn() (int, bool) {
	if !m.hasColumn {
		return 0, false
	}
	return m.column + 1, true
}

// newMessage 创建只有必需字段的消息，位置未知
func (r *Runtime) newMessage(text string, origin ScriptOrigin) *message {
	return &message{
		text:     text,
		resource: r.vm.ToValue(origin.Name),
		start:    -1,
		end:      -1,
		level:    engine.ErrorLevelError,
		origin:   origin,
	}
}

// charColumn goja 的列按字节计算，换算为字符列；源码未知时原样返回
func (r *Runtime) charColumn(scriptName string, line, byteColumn int) int {
	sc, ok := r.sources.get(scriptName)
	if !ok {
		return byteColumn
	}
	if column, ok := sc.runeColumn(line, byteColumn); ok {
		return column
	}
	return byteColumn
}

// withCharColumns 返回列已换算为字符列的帧副本
func (r *Runtime) withCharColumns(frames []frame) []frame {
	out := make([]frame, len(frames))
	for i, f := range frames {
		if f.hasPosition() {
			f.column = r.charColumn(f.script, f.line, f.column)
		}
		out[i] = f
	}
	return out
}

// locate 按脚本名和行列（均从 1 开始，列为字符列）解析源码行、列和字符偏移，各项互不影响
func (r *Runtime) locate(m *message, scriptName string, line, column int) {
	if line > 0 {
		m.line, m.hasLine = line, true
	}
	if column > 0 {
		m.column, m.hasColumn = column-1, true
	}

	sc, ok := r.sources.get(scriptName)
	if !ok {
		return
	}
	m.sourceLine, m.hasSourceLine = sc.line(line)
	if offset, ok := sc.offset(line, column); ok {
		m.start, m.end = offset, offset+1
	}
}

// CreateMessage 由异常值生成消息：文本取自异常值，位置取自抛出时的调用栈
func (r *Runtime) CreateMessage(exception engine.Value) engine.Message {
	origin := r.currentOrigin()

	v, ok := exception.(*value)
	if !ok {
		text := "undefined"
		if exception != nil {
			text = exception.String()
		}
		return r.newMessage(text, origin)
	}

	m := r.newMessage(messageText(v.v), origin)
	if !v.hasStack {
		return m
	}

	frames := r.withCharColumns(v.stack)
	m.stack = toEngineFrames(frames)
	if top, ok := topFrame(frames); ok {
		if top.script != "" {
			m.resource = r.vm.ToValue(top.script)
		}
		r.locate(m, top.script, top.line, top.column)
	}
	return m
}

// compileMessage 由编译期错误生成消息；语法错误没有调用栈
func (r *Runtime) compileMessage(err error, origin ScriptOrigin, src string) engine.Message {
	m := r.newMessage(err.Error(), origin)

	var (
		syntaxErr *goja.CompilerSyntaxError
		refErr    *goja.CompilerReferenceError
		compErr   *goja.CompilerError
	)
	switch {
	case errors.As(err, &syntaxErr):
		compErr = &syntaxErr.CompilerError
	case errors.As(err, &refErr):
		compErr = &refErr.CompilerError
	}

	if compErr != nil {
		m.text = compErr.Message
		if compErr.File != nil {
			pos := compErr.File.Position(compErr.Offset)
			r.locate(m, origin.Name, pos.Line, r.charColumn(origin.Name, pos.Line, pos.Column))
			return m
		}
	}

	// 解析器错误不带位置，重新解析以取得结构化位置
	if pos, text, ok := parsePosition(origin.Name, src); ok {
		m.text = text
		r.locate(m, origin.Name, pos.Line, r.charColumn(origin.Name, pos.Line, pos.Column))
	}
	return m
}

// parsePosition 用 goja 解析器定位第一个语法错误
func parsePosition(name, src string) (file.Position, string, bool) {
	_, err := parser.ParseFile(nil, name, src, 0)
	if err == nil {
		return file.Position{}, "", false
	}

	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return list[0].Position, list[0].Message, true
	}
	var single *parser.Error
	if errors.As(err, &single) {
		return single.Position, single.Message, true
	}
	return file.Position{}, "", false
}
