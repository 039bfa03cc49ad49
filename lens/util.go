package lens

import (
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrorLogPrefix marks failure log lines for easy grepping.
const ErrorLogPrefix = "!! "

// ErrGroupLimitCPU returns an errgroup limited to NumCPU.
func ErrGroupLimitCPU() *errgroup.Group {
	errGroup := &errgroup.Group{}
	errGroup.SetLimit(runtime.NumCPU())
	return errGroup
}

// limitStringLines truncates s to count lines, keeping the head or the tail.
func limitStringLines(s string, count int, head bool) string {
	lines := strings.Split(s, "\n")
	if len(lines) > count {
		if head {
			lines = lines[:count]
		} else {
			lines = lines[len(lines)-count:]
		}
		return strings.Join(lines, "\n")
	} else {
		return s
	}
}
