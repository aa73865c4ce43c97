package log

import (
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// TracingHook adds the caller's package name to every log line. With
// WithTrace enabled (or on trace level) it also adds function, file and
// line. Full tracing is expensive, keep it off in production.
type TracingHook struct {
	WithTrace bool
}

func NewTracingHook(withTrace bool) TracingHook {
	return TracingHook{WithTrace: withTrace}
}

func (h TracingHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	pc, _, _, ok := runtime.Caller(3)
	if !ok {
		return
	}

	frame := runtime.FuncForPC(pc)
	if frame == nil {
		return
	}
	callerName := frame.Name()

	e.Str("package", packageName(callerName))

	if h.WithTrace || (zerolog.GlobalLevel() == zerolog.TraceLevel && level == zerolog.TraceLevel) {
		parts := strings.Split(callerName, "/")
		signature := parts[len(parts)-1]
		fileName, lineNo := frame.FileLine(pc)
		e.Str("function", strings.Join(strings.Split(signature, ".")[1:], ".")).
			Str("file", fileName).
			Int("line", lineNo)
	}
}

// packageName cuts the function (and receiver) part off a runtime function
// name, e.g. "github.com/a/b.(*T).Method" becomes "github.com/a/b".
func packageName(callerName string) string {
	slash := strings.LastIndex(callerName, "/")
	dot := strings.Index(callerName[slash+1:], ".")
	if dot < 0 {
		return callerName
	}

	return callerName[:slash+1+dot]
}
