package lens

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/go-analyze/bulk"
)

// ReduceFileEnv names the environment variable holding the candidate file
// path when the interestingness command runs.
const ReduceFileEnv = "REDUCE_FILE"

// NewWorkDirExec creates a command that runs in workDir with env applied on
// top of a filtered copy of the process environment.
func NewWorkDirExec(workDir string, env []string, name string, arg ...string) *exec.Cmd {
	cmd := exec.Command(name, arg...)
	cmd.Dir = workDir
	cmd.Env = mergeSafeEnv(env)
	return cmd
}

func mergeSafeEnv(env []string) []string {
	envKeys := make([]string, len(env)) // check for os values we want to override
	for i, kv := range env {
		parts := strings.SplitN(kv, "=", 2)
		envKeys[i] = parts[0]
	}
	safeEnv := bulk.SliceFilterInPlace(func(envVar string) bool {
		if envVar == "" || envVar == "=" || strings.HasPrefix(envVar, "LD_") {
			return false // skip unsafe
		} else if parts := strings.SplitN(envVar, "=", 2); slices.Contains(envKeys, parts[0]) {
			return false // will be overridden by custom value
		}
		return true
	}, os.Environ())
	return append(safeEnv, env...)
}

// RunInterestingnessTest executes the interestingness command in workDir with
// REDUCE_FILE pointing at the candidate file. Exit status zero means the
// property of interest still holds. A non-zero exit is a normal
// "uninteresting" verdict, not an error; only launch failures are errors.
func RunInterestingnessTest(workDir, candidateFile string, argv []string, output io.Writer) (bool, error) {
	if len(argv) == 0 {
		return false, errors.New("empty interestingness command")
	}
	cmd := NewWorkDirExec(workDir, []string{ReduceFileEnv + "=" + candidateFile}, argv[0], argv[1:]...)
	if output == nil {
		output = io.Discard
	}
	cmd.Stdout = output
	cmd.Stderr = output

	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("interestingness command launch failure: %w", err)
}

// RunCapturedInterestingnessTest is RunInterestingnessTest with combined
// stdout and stderr captured for diagnostics.
func RunCapturedInterestingnessTest(workDir, candidateFile string, argv []string) (bool, []byte, error) {
	lb := NewLockedBuffer()
	interesting, err := RunInterestingnessTest(workDir, candidateFile, argv, lb)
	return interesting, lb.Bytes(), err
}
