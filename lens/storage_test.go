package lens

import (
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestStorageCommon(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		store Storage
	}{
		{
			name:  "mem",
			store: NewMemStorage(),
		},
		{
			name:  "scoped",
			store: ScopeStorage(NewMemStorage(), "crash.c"),
		},
	}

	if !testing.Short() {
		dir := filepath.Join(t.TempDir(), "badger")
		badgerStorage, err := NewBadgerStorage(dir, 200)
		require.NoError(t, err)
		t.Cleanup(func() { badgerStorage.Close() })

		tests = append(tests, struct {
			name  string
			store Storage
		}{
			name:  "badger",
			store: badgerStorage,
		})
	}

	for _, tc := range tests {
		t.Run(tc.name+"_save_clear", func(t *testing.T) {
			data := []byte{1, 2, 3}

			require.NoError(t, tc.store.Put("t1", data))
			require.NoError(t, tc.store.Clear())

			keys, err := tc.store.Keys()
			require.NoError(t, err)
			assert.Empty(t, keys)
		})

		t.Run(tc.name+"_save_load_delete", func(t *testing.T) {
			require.NoError(t, tc.store.Clear()) // ensure storage is reset
			data := []byte{1, 2, 3}

			require.NoError(t, tc.store.Put("t1", data))
			got, ok, err := tc.store.Get("t1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, data, got)
			require.NoError(t, tc.store.Delete("t1"))
			_, ok, err = tc.store.Get("t1")
			require.NoError(t, err)
			assert.False(t, ok)
		})

		t.Run(tc.name+"_list_keys", func(t *testing.T) {
			require.NoError(t, tc.store.Clear()) // ensure storage is reset

			require.NoError(t, tc.store.Put("a1", []byte{1}))
			require.NoError(t, tc.store.Put("a2", []byte{2}))
			require.NoError(t, tc.store.Put("b1", []byte{3}))

			keys, err := tc.store.Keys()
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"a1", "a2", "b1"}, keys)

			keys, err = tc.store.KeysWithPrefix("a")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"a1", "a2"}, keys)
		})

		t.Run(tc.name+"_binary_value", func(t *testing.T) {
			require.NoError(t, tc.store.Clear()) // ensure storage is reset
			// data slice contains an embedded NUL at index 2
			data := []byte{1, 2, 0, 4, 5}

			require.NoError(t, tc.store.Put("nullTest", data))
			got, ok, err := tc.store.Get("nullTest")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, data, got)
		})

		t.Run(tc.name+"_attempt_record", func(t *testing.T) {
			require.NoError(t, tc.store.Clear()) // ensure storage is reset
			record := &AttemptRecord{
				RunID:       "run-1",
				Pass:        "simplify-callexpr",
				Ordinal:     3,
				Size:        512,
				Interesting: true,
				DurationMs:  21,
			}
			blob, err := record.Encode()
			require.NoError(t, err)
			require.NoError(t, tc.store.Put(VariantKey([]byte("int main() {}")), blob))

			got, ok, err := tc.store.Get(VariantKey([]byte("int main() {}")))
			require.NoError(t, err)
			require.True(t, ok)
			decoded, err := DecodeAttemptRecord(got)
			require.NoError(t, err)
			assert.Equal(t, record, decoded)
		})

		t.Run(tc.name+"_concurrent", func(t *testing.T) {
			require.NoError(t, tc.store.Clear()) // ensure storage is reset

			type payload struct {
				N int
				S string
			}
			makeBlob := func(n int) []byte {
				b, _ := msgpack.Marshal(payload{N: n, S: strings.Repeat("x", 4096)})
				return b
			}

			// the record we will read over and over
			require.NoError(t, tc.store.Put("target", makeBlob(42)))

			// writer goroutine: churn the database while we read
			done := make(chan struct{})
			go func() {
				var i int
				for {
					select {
					case <-done:
						return
					default:
					}
					_ = tc.store.Put("w"+strconv.Itoa(i%8), makeBlob(i))
					i++
				}
			}()

			// repeatedly load and unmarshal
			for i := 0; i < 1_000; i++ {
				got, ok, err := tc.store.Get("target")
				require.NoError(t, err)
				require.True(t, ok)

				var out payload
				require.NoError(t, msgpack.Unmarshal(got, &out))
				require.Equal(t, 42, out.N)
			}

			close(done)
		})
	}
}

func TestBadgerStorageReopen(t *testing.T) {
	if testing.Short() {
		t.Skip("skip in short mode")
	}
	t.Parallel()

	path := filepath.Join(t.TempDir(), "db")
	store, err := NewBadgerStorage(path, 50)
	require.NoError(t, err)

	data := []byte(strings.Repeat("int x;\n", 200))
	require.NoError(t, store.Put("t1", data))
	store.Close()

	// cached verdicts must survive process restarts
	store, err = NewBadgerStorage(path, 50)
	require.NoError(t, err)
	defer store.Close()

	got, ok, err := store.Get("t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data, got)
}

func TestScopeStorage(t *testing.T) {
	tests := []struct {
		name   string
		scope  string
		keys   []string
		filter string
		expect []string
	}{
		{
			name:   "simple",
			scope:  "p",
			keys:   []string{"k1", "sub/k2"},
			filter: "k",
			expect: []string{"k1"},
		},
		{
			name:   "nested",
			scope:  "dir/sub",
			keys:   []string{"a", "sub/a1"},
			filter: "sub",
			expect: []string{"sub/a1"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			base := NewMemStorage()
			store := ScopeStorage(base, tc.scope)

			for _, k := range tc.keys {
				require.NoError(t, store.Put(k, []byte(k)))
				got, ok, err := store.Get(k)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, []byte(k), got)
			}

			var wantBase []string
			for _, k := range tc.keys {
				wantBase = append(wantBase, tc.scope+";"+k)
			}
			keys, err := base.Keys()
			require.NoError(t, err)
			assert.ElementsMatch(t, wantBase, keys)
			keys, err = store.Keys()
			require.NoError(t, err)
			assert.ElementsMatch(t, tc.keys, keys)
			keys, err = store.KeysWithPrefix(tc.filter)
			require.NoError(t, err)
			assert.ElementsMatch(t, tc.expect, keys)

			for _, k := range tc.keys {
				require.NoError(t, store.Delete(k))
			}
			keys, err = base.Keys()
			require.NoError(t, err)
			assert.Empty(t, keys)
			keys, err = store.Keys()
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		base := NewMemStorage()
		wrapped := ScopeStorage(base, "")
		assert.Equal(t, base, wrapped)
	})
}
