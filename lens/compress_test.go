package lens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZstdRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skip in short mode")
	}
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{"nil_input", nil},
		{"c_source", []byte("int tmp_var_0;\nint main() { return (0,tmp_var_0); }\n")},
		{"binary_data", []byte{0x00, 0xFF, 0x10, 0x20, 0x7F}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			compressed := ZstdCompress(nil, tt.input)
			out, err := ZstdDecompress(nil, compressed)
			require.NoError(t, err)
			assert.Equal(t, tt.input, out)
		})
	}
}

func TestZstdShrinksRepetitiveSource(t *testing.T) {
	if testing.Short() {
		t.Skip("skip in short mode")
	}
	t.Parallel()

	// preprocessed C is highly repetitive, stored variants should shrink
	source := []byte(strings.Repeat("struct Z tmp_var_0;\nint helper(struct Z z);\n", 200))
	compressed := ZstdCompress(nil, source)
	assert.Less(t, len(compressed), len(source)/4)
}

func TestZstdDecompressError(t *testing.T) {
	t.Parallel()

	_, err := ZstdDecompress(nil, []byte{0x42, 0x43, 0x44})
	require.Error(t, err)
}

func TestSnappyRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skip in short mode")
	}
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{"nil_input", nil},
		{"record_blob", []byte(`{"pass":"simplify-callexpr","ordinal":3}`)},
		{"binary_data", []byte{0xDE, 0xAD, 0xBE, 0xEF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			compressed := SnappyCompress(nil, tt.input)
			out, err := SnappyDecompress(nil, compressed)
			require.NoError(t, err)
			assert.Equal(t, tt.input, out)
		})
	}
}

func TestSnappyDecompressError(t *testing.T) {
	t.Parallel()

	_, err := SnappyDecompress(nil, []byte{0x99, 0x88, 0x77})
	require.Error(t, err)
}
