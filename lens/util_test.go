package lens

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrGroupLimitCPU(t *testing.T) {
	if testing.Short() {
		t.Skip("skip in short mode")
	}
	t.Parallel()

	errGroup := ErrGroupLimitCPU()

	var mu sync.Mutex
	var running, maxRunning int
	for i := 0; i < runtime.NumCPU()*4; i++ {
		errGroup.Go(func() error {
			mu.Lock()
			running++
			if running > maxRunning {
				maxRunning = running
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, errGroup.Wait())

	mu.Lock()
	maxVal := maxRunning
	mu.Unlock()
	require.LessOrEqual(t, maxVal, runtime.NumCPU())
}

func TestLimitStringLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		lineCount int
		head      bool
		expected  string
	}{
		{
			name:      "no_truncation",
			input:     "-foo(1);\n+(0);\n int main;",
			lineCount: 4,
			head:      true,
			expected:  "-foo(1);\n+(0);\n int main;",
		},
		{
			name:      "truncate_from_head",
			input:     "d1\nd2\nd3\nd4",
			lineCount: 2,
			head:      true,
			expected:  "d1\nd2",
		},
		{
			name:      "truncate_from_tail",
			input:     "d1\nd2\nd3\nd4",
			lineCount: 2,
			head:      false,
			expected:  "d3\nd4",
		},
		{
			name:      "empty_string",
			input:     "",
			lineCount: 1,
			head:      true,
			expected:  "",
		},
		{
			name:      "single_line",
			input:     "single",
			lineCount: 1,
			head:      true,
			expected:  "single",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := limitStringLines(tt.input, tt.lineCount, tt.head)
			assert.Equal(t, tt.expected, result)
		})
	}
}
