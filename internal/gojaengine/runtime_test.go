package gojaengine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"yqhp/script-diagnostics/pkg/dispatcher"
	"yqhp/script-diagnostics/pkg/holder"
	"yqhp/script-diagnostics/pkg/report"
)

func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	l := zaptest.NewLogger(t)
	d := dispatcher.New(holder.NewStore(), dispatcher.WithLogger(l))
	rt, err := New(d, append([]Option{WithLogger(l)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

// runFailing 执行预期失败的脚本，返回解析后的报告
func runFailing(t *testing.T, rt *Runtime, origin ScriptOrigin, src string) (*ScriptError, report.ErrorReport) {
	t.Helper()
	_, err := rt.RunScript(context.Background(), origin, src)
	require.Error(t, err)

	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr), "unexpected error %v", err)

	last, ok := rt.LastException()
	require.True(t, ok)
	assert.Equal(t, last, scriptErr.Report)

	r, err := report.Decode(scriptErr.Report)
	require.NoError(t, err, scriptErr.Report)
	return scriptErr, r
}

const nestedThrow = `function inner() {
  throw new Error("boom");
}
function outer() {
  inner();
}
outer();
`

func TestRuntime_RunScript_Success(t *testing.T) {
	rt := newTestRuntime(t)

	val, err := rt.RunScript(context.Background(), ScriptOrigin{Name: "ok.js"}, `1 + 2`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), val.ToInteger())

	_, ok := rt.LastException()
	assert.False(t, ok)
}

func TestRuntime_ThrownError(t *testing.T) {
	rt := newTestRuntime(t)

	scriptErr, r := runFailing(t, rt, ScriptOrigin{Name: "main.js"}, nestedThrow)

	assert.Equal(t, ErrCodeException, scriptErr.Code)
	assert.Equal(t, "boom", r.Message)
	assert.Equal(t, "main.js", r.ScriptResourceName)
	assert.Equal(t, 8, r.ErrorLevel)

	require.True(t, r.HasStackTrace())
	require.GreaterOrEqual(t, len(r.Frames), 3)
	assert.Equal(t, "inner", r.Frames[0].FunctionName)
	assert.Equal(t, 2, r.Frames[0].Line)
	assert.Equal(t, "main.js", r.Frames[0].ScriptName)
	assert.Equal(t, "outer", r.Frames[1].FunctionName)
	assert.Equal(t, 5, r.Frames[1].Line)
	assert.Equal(t, "", r.Frames[2].FunctionName)
	assert.Equal(t, 7, r.Frames[2].Line)

	assert.Equal(t, report.Some(2), r.LineNumber)
	assert.Equal(t, report.Some(`  throw new Error("boom");`), r.SourceLine)

	start, ok := r.StartColumn.Get()
	require.True(t, ok)
	assert.Equal(t, r.Frames[0].Column-1, start)
	assert.Equal(t, report.Some(start+1), r.EndColumn)
	assert.GreaterOrEqual(t, r.StartPosition, 0)
	assert.Equal(t, r.StartPosition+1, r.EndPosition)
}

func TestRuntime_ThrownPrimitive(t *testing.T) {
	rt := newTestRuntime(t)

	_, r := runFailing(t, rt, ScriptOrigin{Name: "prim.js"}, `throw "plain text";`)

	assert.Equal(t, "plain text", r.Message)
	assert.Equal(t, report.Some(1), r.LineNumber)
	assert.Equal(t, 1, r.FrameCount())
}

func TestRuntime_StackDepth(t *testing.T) {
	rt := newTestRuntime(t, WithStackDepth(1))

	_, r := runFailing(t, rt, ScriptOrigin{Name: "main.js"}, nestedThrow)

	require.Len(t, r.Frames, 1)
	assert.Equal(t, "inner", r.Frames[0].FunctionName)
}

func TestRuntime_EvalFrame(t *testing.T) {
	rt := newTestRuntime(t)

	_, r := runFailing(t, rt, ScriptOrigin{Name: "main.js"}, `eval("throw new Error('from eval')");`)

	assert.Equal(t, "from eval", r.Message)
	require.True(t, r.HasStackTrace())
	assert.True(t, r.Frames[0].IsEval)
	assert.Equal(t, report.UnknownScriptName, r.Frames[0].ScriptName)
	assert.Equal(t, "main.js", r.ScriptResourceName)
}

func TestRuntime_SyntaxError(t *testing.T) {
	rt := newTestRuntime(t)

	scriptErr, r := runFailing(t, rt, ScriptOrigin{Name: "bad.js"}, "var ok = 1;\nvar x = ;\n")

	assert.Equal(t, ErrCodeSyntax, scriptErr.Code)
	assert.Contains(t, r.Message, "Unexpected token")
	assert.Equal(t, "bad.js", r.ScriptResourceName)
	assert.Equal(t, report.Some(2), r.LineNumber)
	assert.Equal(t, report.Some("var x = ;"), r.SourceLine)

	assert.False(t, r.HasStackTrace())
	fallback, ok := r.Fallback.Get()
	require.True(t, ok)
	assert.Equal(t, `"bad.js"`, fallback.ScriptName)
	assert.Equal(t, report.Some(2), fallback.Line)
	assert.Equal(t, r.StartColumn, fallback.Column)
}

func TestRuntime_OriginFlags(t *testing.T) {
	rt := newTestRuntime(t)

	_, r := runFailing(t, rt, ScriptOrigin{Name: "x.js", SharedCrossOrigin: true, Opaque: true}, `throw new Error("x")`)

	assert.True(t, r.IsSharedCrossOrigin)
	assert.True(t, r.IsOpaque)
}

func TestRuntime_DefaultScriptName(t *testing.T) {
	rt := newTestRuntime(t)

	_, r := runFailing(t, rt, ScriptOrigin{}, `var x = ;`)

	assert.Equal(t, DefaultScriptName, r.ScriptResourceName)
}

func TestRuntime_LastExceptionOverwritten(t *testing.T) {
	rt := newTestRuntime(t)

	runFailing(t, rt, ScriptOrigin{Name: "a.js"}, `throw new Error("first")`)
	_, r := runFailing(t, rt, ScriptOrigin{Name: "b.js"}, `throw new Error("second")`)

	assert.Equal(t, "second", r.Message)
	assert.Equal(t, "b.js", r.ScriptResourceName)
	assert.Equal(t, uint64(2), rt.dispatcher.Store().Published(rt.ID()))
}

func TestRuntime_Timeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	rt := newTestRuntime(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := rt.RunScript(ctx, ScriptOrigin{Name: "loop.js"}, `for (;;) {}`)
	require.Error(t, err)

	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	assert.Equal(t, ErrCodeTerminated, scriptErr.Code)

	r, err := report.Decode(scriptErr.Report)
	require.NoError(t, err)
	assert.Equal(t, "execution terminated", r.Message)
	assert.Equal(t, "loop.js", r.ScriptResourceName)
	assert.True(t, rt.IsExecutionTerminating(), "termination stays armed after reporting")

	// 终止状态下再次执行会立即中断
	_, err = rt.RunScript(context.Background(), ScriptOrigin{Name: "next.js"}, `1`)
	require.Error(t, err)
	assert.True(t, errors.As(err, &scriptErr))
	assert.Equal(t, ErrCodeTerminated, scriptErr.Code)

	// 宿主取消终止后恢复正常
	rt.CancelTerminateExecution()
	val, err := rt.RunScript(context.Background(), ScriptOrigin{Name: "next.js"}, `40 + 2`)
	require.NoError(t, err)
	assert.Equal(t, int64(42), val.ToInteger())
}

func TestRuntime_JSONStringify(t *testing.T) {
	rt := newTestRuntime(t)

	s, err := rt.JSONStringify(&value{v: rt.VM().ToValue(`a"b`)})
	require.NoError(t, err)
	assert.Equal(t, `"a\"b"`, s)

	_, err = rt.JSONStringify(rt.Undefined())
	assert.ErrorIs(t, err, errNotSerializable)
}

func TestRuntime_CreateMessageWithoutStack(t *testing.T) {
	rt := newTestRuntime(t)

	m := rt.CreateMessage(rt.NewError("plain"))
	assert.Equal(t, "plain", m.Text())
	assert.Nil(t, m.StackTrace())
	assert.Equal(t, -1, m.StartPosition())
	_, ok := m.LineNumber()
	assert.False(t, ok)

	m = rt.CreateMessage(nil)
	assert.Equal(t, "undefined", m.Text())
}

func TestNew_OpensReportSlot(t *testing.T) {
	store := holder.NewStore()
	d := dispatcher.New(store, dispatcher.WithLogger(zaptest.NewLogger(t)))

	rt, err := New(d)
	require.NoError(t, err)
	assert.NotEmpty(t, rt.ID())
	assert.Equal(t, 1, store.Len())

	rt.Close()
	assert.Equal(t, 0, store.Len())
}

func TestScriptError(t *testing.T) {
	cause := errors.New("underlying")
	err := &ScriptError{Code: ErrCodeException, Cause: cause}

	assert.Equal(t, "[SCRIPT_EXCEPTION] underlying", err.Error())
	assert.ErrorIs(t, err, cause)

	err = &ScriptError{Code: ErrCodeTerminated}
	assert.Equal(t, "[SCRIPT_TERMINATED] script failed", err.Error())
}

func TestRuntime_ColumnsCountCharacters(t *testing.T) {
	rt := newTestRuntime(t)
	src := `var s = "中文中文"; throw new Error("x");`

	_, r := runFailing(t, rt, ScriptOrigin{Name: "cjk.js"}, src)

	line, ok := r.SourceLine.Get()
	require.True(t, ok)
	runes := []rune(line)

	start, ok := r.StartColumn.Get()
	require.True(t, ok)
	require.Less(t, start, len(runes))
	rest := string(runes[start:])
	assert.True(t, strings.HasPrefix(rest, "throw") || strings.HasPrefix(rest, "new"),
		"startColumn %d points at %q", start, rest)

	assert.Equal(t, report.Some(start+1), r.EndColumn)
	assert.Equal(t, start, r.StartPosition, "single-line script: offset equals column")
	assert.Equal(t, start+1, r.EndPosition)

	require.True(t, r.HasStackTrace())
	assert.Equal(t, start+1, r.Frames[0].Column)
}

func TestRuntime_SyntaxErrorColumnsCountCharacters(t *testing.T) {
	rt := newTestRuntime(t)

	_, r := runFailing(t, rt, ScriptOrigin{Name: "cjk.js"}, `var s = "中文中文"; var x = ;`)

	assert.Equal(t, report.Some(24), r.StartColumn)
	assert.Equal(t, report.Some(25), r.EndColumn)
	assert.Equal(t, 24, r.StartPosition)
	assert.Equal(t, 25, r.EndPosition)

	fallback, ok := r.Fallback.Get()
	require.True(t, ok)
	assert.Equal(t, report.Some(24), fallback.Column)
}

func TestRuntime_TopLevelFrameHasEmptyFunctionName(t *testing.T) {
	rt := newTestRuntime(t)

	_, r := runFailing(t, rt, ScriptOrigin{Name: "top.js"}, `throw new Error("top")`)

	require.True(t, r.HasStackTrace())
	for _, f := range r.Frames {
		assert.NotEqual(t, anonymousFuncName, f.FunctionName)
	}
	assert.Equal(t, "", r.Frames[len(r.Frames)-1].FunctionName)
}

func TestRuntime_DeadlineAfterSuccessIsWithdrawn(t *testing.T) {
	defer goleak.VerifyNone(t)

	rt := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// 脚本已结束而看门狗随后才触发
	stop := rt.watchdog(ctx)
	require.Eventually(t, rt.IsExecutionTerminating, time.Second, time.Millisecond)
	rt.settle(stop(), nil)

	assert.False(t, rt.IsExecutionTerminating())
	val, err := rt.RunScript(context.Background(), ScriptOrigin{Name: "next.js"}, `6 * 7`)
	require.NoError(t, err)
	assert.Equal(t, int64(42), val.ToInteger())
	_, ok := rt.LastException()
	assert.False(t, ok)
}

func TestRuntime_SuccessNeverLeavesTermination(t *testing.T) {
	defer goleak.VerifyNone(t)

	rt := newTestRuntime(t)
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := rt.RunScript(ctx, ScriptOrigin{Name: "short.js"}, `1`)
		if err == nil {
			assert.False(t, rt.IsExecutionTerminating(), "iteration %d", i)
			continue
		}
		var scriptErr *ScriptError
		require.True(t, errors.As(err, &scriptErr))
		assert.Equal(t, ErrCodeTerminated, scriptErr.Code)
		rt.CancelTerminateExecution()
	}
}
