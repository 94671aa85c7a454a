package report

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var (
	// ErrEmptyFrames frames 为空数组，违反报告结构
	ErrEmptyFrames = errors.New("report: frames must not be empty")
	// ErrMalformedFrame 帧缺少必需字段
	ErrMalformedFrame = errors.New("report: malformed frame")
)

// codec 转义引号、反斜杠和控制字符并校验 UTF-8，不转义 HTML 字符（<unknown> 原样输出）
var codec = sonic.Config{
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
}.Froze()

// wireReport 报告的线上结构，字段顺序即输出顺序
type wireReport struct {
	Message             string      `json:"message"`
	ScriptResourceName  string      `json:"scriptResourceName"`
	StartPosition       int         `json:"startPosition"`
	EndPosition         int         `json:"endPosition"`
	ErrorLevel          int         `json:"errorLevel"`
	IsSharedCrossOrigin bool        `json:"isSharedCrossOrigin"`
	IsOpaque            bool        `json:"isOpaque"`
	SourceLine          *string     `json:"sourceLine,omitempty"`
	LineNumber          *int        `json:"lineNumber,omitempty"`
	StartColumn         *int        `json:"startColumn,omitempty"`
	EndColumn           *int        `json:"endColumn,omitempty"`
	Frames              []wireFrame `json:"frames"`
}

// wireFrame 同时承载真实帧和合成帧；合成帧只有 line/column/scriptName
type wireFrame struct {
	Line          *int    `json:"line,omitempty"`
	Column        *int    `json:"column,omitempty"`
	FunctionName  *string `json:"functionName,omitempty"`
	ScriptName    string  `json:"scriptName"`
	IsEval        *bool   `json:"isEval,omitempty"`
	IsConstructor *bool   `json:"isConstructor,omitempty"`
	IsWasm        *bool   `json:"isWasm,omitempty"`
}

// Serialize 将报告渲染为固定结构的 JSON 文本。
// 必需字段总是输出，可选字段仅在存在时输出；输出的键顺序稳定。
func Serialize(r ErrorReport) (string, error) {
	w := wireReport{
		Message:             r.Message,
		ScriptResourceName:  r.ScriptResourceName,
		StartPosition:       r.StartPosition,
		EndPosition:         r.EndPosition,
		ErrorLevel:          r.ErrorLevel,
		IsSharedCrossOrigin: r.IsSharedCrossOrigin,
		IsOpaque:            r.IsOpaque,
		SourceLine:          r.SourceLine.ptr(),
		LineNumber:          r.LineNumber.ptr(),
		StartColumn:         r.StartColumn.ptr(),
		EndColumn:           r.EndColumn.ptr(),
		Frames:              toWireFrames(r),
	}

	s, err := codec.MarshalToString(&w)
	if err != nil {
		return "", fmt.Errorf("serialize report: %w", err)
	}
	return s, nil
}

func toWireFrames(r ErrorReport) []wireFrame {
	if !r.HasStackTrace() {
		fallback := r.Fallback.OrElse(SyntheticFrame{ScriptName: UnknownScriptName})
		return []wireFrame{{
			Line:       fallback.Line.ptr(),
			Column:     fallback.Column.ptr(),
			ScriptName: fallback.ScriptName,
		}}
	}

	frames := make([]wireFrame, len(r.Frames))
	for i, f := range r.Frames {
		frames[i] = wireFrame{
			Line:          Some(f.Line).ptr(),
			Column:        Some(f.Column).ptr(),
			FunctionName:  Some(f.FunctionName).ptr(),
			ScriptName:    f.ScriptName,
			IsEval:        Some(f.IsEval).ptr(),
			IsConstructor: Some(f.IsConstructor).ptr(),
			IsWasm:        Some(f.IsWasm).ptr(),
		}
	}
	return frames
}

// Decode 解析报告 JSON（宿主侧使用），缺失的可选键解析为缺失值
func Decode(text string) (ErrorReport, error) {
	var w wireReport
	if err := codec.UnmarshalFromString(text, &w); err != nil {
		return ErrorReport{}, fmt.Errorf("decode report: %w", err)
	}
	if len(w.Frames) == 0 {
		return ErrorReport{}, ErrEmptyFrames
	}

	r := ErrorReport{
		Message:             w.Message,
		ScriptResourceName:  w.ScriptResourceName,
		StartPosition:       w.StartPosition,
		EndPosition:         w.EndPosition,
		ErrorLevel:          w.ErrorLevel,
		IsSharedCrossOrigin: w.IsSharedCrossOrigin,
		IsOpaque:            w.IsOpaque,
		SourceLine:          fromPtr(w.SourceLine),
		LineNumber:          fromPtr(w.LineNumber),
		StartColumn:         fromPtr(w.StartColumn),
		EndColumn:           fromPtr(w.EndColumn),
	}

	// 单个不带 functionName 的帧为合成帧
	if len(w.Frames) == 1 && w.Frames[0].FunctionName == nil {
		f := w.Frames[0]
		r.Fallback = Some(SyntheticFrame{
			Line:       fromPtr(f.Line),
			Column:     fromPtr(f.Column),
			ScriptName: f.ScriptName,
		})
		return r, nil
	}

	r.Frames = make([]StackFrame, len(w.Frames))
	for i, f := range w.Frames {
		if f.Line == nil || f.Column == nil || f.FunctionName == nil {
			return ErrorReport{}, fmt.Errorf("%w: frame %d", ErrMalformedFrame, i)
		}
		r.Frames[i] = StackFrame{
			Line:          *f.Line,
			Column:        *f.Column,
			FunctionName:  *f.FunctionName,
			ScriptName:    f.ScriptName,
			IsEval:        fromPtr(f.IsEval).OrElse(false),
			IsConstructor: fromPtr(f.IsConstructor).OrElse(false),
			IsWasm:        fromPtr(f.IsWasm).OrElse(false),
		}
	}
	return r, nil
}
