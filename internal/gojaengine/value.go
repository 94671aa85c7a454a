package gojaengine

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"yqhp/script-diagnostics/pkg/engine"
)

// errNotSerializable JSON.stringify 没有产生文本（如 undefined、函数）
var errNotSerializable = errors.New("value is not JSON serializable")

const unprintableValue = "<unprintable value>"

// value engine.Value 的 goja 实现，可携带抛出时捕获的调用栈
type value struct {
	v        goja.Value
	stack    []frame
	hasStack bool
}

var _ engine.Value = (*value)(nil)

func (v *value) IsNullOrUndefined() bool {
	return v == nil || v.v == nil || goja.IsUndefined(v.v) || goja.IsNull(v.v)
}

func (v *value) String() string {
	if v == nil || v.v == nil {
		return "undefined"
	}
	return safeString(v.v)
}

// safeString 对象的 toString 可能抛出异常，此时返回占位文本
func safeString(v goja.Value) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = unprintableValue
		}
	}()
	return v.String()
}

// messageText 错误对象取其 message 属性，其余值取文本形式
func messageText(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	if obj, ok := v.(*goja.Object); ok && obj.ClassName() == "Error" {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
			return safeString(m)
		}
	}
	return safeString(v)
}

// gojaValue 把 engine.Value 还原为 goja 值，外部实现按文本处理
func (r *Runtime) gojaValue(v engine.Value) goja.Value {
	switch val := v.(type) {
	case nil:
		return goja.Undefined()
	case *value:
		if val == nil || val.v == nil {
			return goja.Undefined()
		}
		return val.v
	default:
		return r.vm.ToValue(v.String())
	}
}

// NewError 构造一个 Error 对象
func (r *Runtime) NewError(text string) engine.Value {
	obj, err := r.vm.New(r.vm.Get("Error"), r.vm.ToValue(text))
	if err != nil {
		return &value{v: r.vm.NewGoError(errors.New(text))}
	}
	return &value{v: obj}
}

// Undefined 返回 undefined
func (r *Runtime) Undefined() engine.Value {
	return &value{v: goja.Undefined()}
}

// JSONStringify 调用脚本环境中的 JSON.stringify
func (r *Runtime) JSONStringify(v engine.Value) (string, error) {
	res, err := r.stringify(goja.Undefined(), r.gojaValue(v))
	if err != nil {
		return "", fmt.Errorf("JSON.stringify: %w", err)
	}
	if res == nil || goja.IsUndefined(res) {
		return "", errNotSerializable
	}
	return res.String(), nil
}
