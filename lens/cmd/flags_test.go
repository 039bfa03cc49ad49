package cmd

import (
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShrinkLens/go-reduce-lens/lens"
)

// parseWithArgs resets the global flag state and runs ParseFlags against args.
func parseWithArgs(t *testing.T, customFlags []CustomFlag, args ...string) (*lens.Config, error) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	os.Args = append([]string{os.Args[0]}, args...)
	t.Cleanup(func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	})

	return ParseFlags(customFlags)
}

func TestParseFlags(t *testing.T) {
	t.Run("reduction_mode", func(t *testing.T) {
		cfg, err := parseWithArgs(t, nil, "-file", "crash.c", "-test", "sh check.sh arg")
		require.NoError(t, err)

		assert.Equal(t, "crash.c", cfg.InputFile)
		assert.Equal(t, []string{"sh", "check.sh", "arg"}, cfg.TestCommand)
		assert.Empty(t, cfg.TransName)
		assert.False(t, cfg.Query)
	})

	t.Run("single_transformation_mode", func(t *testing.T) {
		cfg, err := parseWithArgs(t, nil,
			"-file", "crash.c", "-trans", "simplify-callexpr", "-counter", "3")
		require.NoError(t, err)

		assert.Equal(t, "simplify-callexpr", cfg.TransName)
		assert.Equal(t, 3, cfg.Counter)
		assert.Empty(t, cfg.TestCommand)
	})

	t.Run("query_mode", func(t *testing.T) {
		cfg, err := parseWithArgs(t, nil,
			"-file", "crash.c", "-trans", "simplify-callexpr", "-query")
		require.NoError(t, err)

		assert.True(t, cfg.Query)
	})

	t.Run("pass_list", func(t *testing.T) {
		cfg, err := parseWithArgs(t, nil,
			"-file", "crash.c", "-test", "sh check.sh",
			"-passes", "simplify-callexpr, remove-unused-function")
		require.NoError(t, err)

		assert.Equal(t, []string{"simplify-callexpr", "remove-unused-function"}, cfg.Passes)
	})

	t.Run("custom_flags", func(t *testing.T) {
		cfs := []CustomFlag{
			{Name: "str", DefaultValue: "", Usage: "", Type: "string"},
			{Name: "num", DefaultValue: 0, Usage: "", Type: "int"},
			{Name: "ok", DefaultValue: false, Usage: "", Type: "bool"},
		}
		cfg, err := parseWithArgs(t, cfs,
			"-file", "crash.c", "-test", "sh check.sh", "-str", "val", "-num", "2", "-ok")
		require.NoError(t, err)

		assert.Equal(t, "val", cfg.CustomFlags["str"])
		assert.Equal(t, "2", cfg.CustomFlags["num"])
		assert.Equal(t, "true", cfg.CustomFlags["ok"])
	})

	t.Run("custom_flags_with_defaults", func(t *testing.T) {
		cfs := []CustomFlag{
			{Name: "defaultstr", DefaultValue: "default", Usage: "test string", Type: "string"},
			{Name: "defaultnum", DefaultValue: 42, Usage: "test int", Type: "int"},
			{Name: "defaultbool", DefaultValue: true, Usage: "test bool", Type: "bool"},
		}
		cfg, err := parseWithArgs(t, cfs, "-file", "crash.c", "-test", "sh check.sh")
		require.NoError(t, err)

		assert.Equal(t, "default", cfg.CustomFlags["defaultstr"])
		assert.Equal(t, "42", cfg.CustomFlags["defaultnum"])
		assert.Equal(t, "true", cfg.CustomFlags["defaultbool"])
	})

	t.Run("missing_file", func(t *testing.T) {
		_, err := parseWithArgs(t, nil, "-test", "sh check.sh")
		require.Error(t, err)
	})

	t.Run("missing_test_command", func(t *testing.T) {
		_, err := parseWithArgs(t, nil, "-file", "crash.c")
		require.Error(t, err)
	})

	t.Run("query_without_trans", func(t *testing.T) {
		_, err := parseWithArgs(t, nil, "-file", "crash.c", "-test", "sh check.sh", "-query")
		require.Error(t, err)
	})
}

func TestSplitCommaList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{name: "empty", input: "", expect: nil},
		{name: "single", input: "a", expect: []string{"a"}},
		{name: "spaced", input: " a , b ", expect: []string{"a", "b"}},
		{name: "trailing_comma", input: "a,b,", expect: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, splitCommaList(tt.input))
		})
	}
}
