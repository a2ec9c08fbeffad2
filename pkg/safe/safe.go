package safe

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
)

// Run executes fn and logs any panic instead of crashing the process.
func Run(fn func()) {
	RunWithLog(fn, "safe.Run")
}

func RunWithLog(fn func(), component string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered",
				slog.Any("recover", r),
				slog.String("component", component),
				slog.String("stack", getStackTrace(3)),
			)
		}
	}()

	fn()
}

// Call executes fn and turns a panic into an error.
func Call(component string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered",
				slog.Any("recover", r),
				slog.String("component", component),
				slog.String("stack", getStackTrace(3)),
			)
			err = fmt.Errorf("%s: panic: %v", component, r)
		}
	}()

	return fn()
}

// getStackTrace formats debug.Stack, dropping the first skipFrames lines
// and keeping at most 20 frames.
func getStackTrace(skipFrames int) string {
	lines := strings.Split(string(debug.Stack()), "\n")

	formatted := []string{"Stack trace:"}
	start := skipFrames
	if start >= len(lines) {
		return formatted[0]
	}
	end := start + 20
	for i := start; i < len(lines) && i < end; i++ {
		if line := strings.TrimSpace(lines[i]); line != "" {
			formatted = append(formatted, "  "+line)
		}
	}
	if len(lines) > end {
		formatted = append(formatted, "  ... (truncated)")
	}

	return strings.Join(formatted, "\n")
}
