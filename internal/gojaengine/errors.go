package gojaengine

import "fmt"

// ErrorCode 脚本错误类型
type ErrorCode string

const (
	// ErrCodeException 脚本抛出未捕获异常
	ErrCodeException ErrorCode = "SCRIPT_EXCEPTION"
	// ErrCodeSyntax 脚本编译失败
	ErrCodeSyntax ErrorCode = "SCRIPT_SYNTAX_ERROR"
	// ErrCodeTerminated 脚本被强制终止
	ErrCodeTerminated ErrorCode = "SCRIPT_TERMINATED"
)

// ScriptError 脚本执行失败，Report 为已发布的错误报告 JSON
type ScriptError struct {
	Code   ErrorCode
	Report string
	Cause  error
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("[%s] script failed", e.Code)
}

// Unwrap returns the underlying error.
func (e *ScriptError) Unwrap() error {
	return e.Cause
}
