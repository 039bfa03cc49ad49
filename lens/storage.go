package lens

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Storage persists attempt verdicts between runs. Values are small (an
// encoded attempt record), so implementations do not need large-value
// handling.
type Storage interface {
	Put(key string, blob []byte) error
	// Get returns the stored blob and whether the key was present.
	Get(key string) ([]byte, bool, error)
	Delete(key string) error
	// KeysWithPrefix returns all keys in the store that begin with prefix.
	KeysWithPrefix(prefix string) ([]string, error)
	// Keys returns all keys in the store.
	Keys() ([]string, error)
	Clear() error
	Close()
}

// ScopeStorage wraps another Storage so all keys live under a fixed scope.
// The engine scopes the shared cache per input file with this, letting one
// cache directory serve reductions of different files.
func ScopeStorage(s Storage, scope string) Storage {
	if scope == "" {
		return s
	}
	return &scopedStorage{
		store: s,
		scope: scope + ";",
	}
}

type scopedStorage struct {
	store Storage
	scope string
}

func (s *scopedStorage) Put(key string, blob []byte) error {
	return s.store.Put(s.scope+key, blob)
}

func (s *scopedStorage) Get(key string) ([]byte, bool, error) {
	return s.store.Get(s.scope + key)
}

func (s *scopedStorage) Delete(key string) error {
	return s.store.Delete(s.scope + key)
}

func (s *scopedStorage) KeysWithPrefix(prefix string) ([]string, error) {
	scoped, err := s.store.KeysWithPrefix(s.scope + prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(scoped))
	for i, k := range scoped {
		keys[i] = strings.TrimPrefix(k, s.scope)
	}
	return keys, nil
}

func (s *scopedStorage) Keys() ([]string, error) {
	return s.KeysWithPrefix("")
}

func (s *scopedStorage) Clear() error {
	keys, err := s.Keys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (s *scopedStorage) Close() {
	s.store.Close()
}

type memStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemStorage returns an in-memory Storage, used when no cache directory
// is configured.
func NewMemStorage() Storage {
	return &memStorage{data: make(map[string][]byte)}
}

func (m *memStorage) Put(key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), blob...) // copy to guard against caller mutation
	return nil
}

func (m *memStorage) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

func (m *memStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *memStorage) KeysWithPrefix(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memStorage) Keys() ([]string, error) {
	return m.KeysWithPrefix("")
}

func (m *memStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.data)
	return nil
}

func (m *memStorage) Close() {
	// no resources to free
}

type badgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage opens a Badger-backed Storage at path. Values are stored
// zstd-compressed by this layer; Badger's own compression stays off so the
// memory budget goes to the memtables and index cache.
func NewBadgerStorage(path string, maxMemMB int) (Storage, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir failed: %w", err)
	}

	clamp := func(val, lo, high int64) int64 {
		return min(max(val, lo), high)
	}
	memTableSize := clamp(int64(maxMemMB/4), 4, 64) << 20
	opts := badger.DefaultOptions(path).
		WithInMemory(false).
		WithDetectConflicts(false). // single writer per key space
		WithChecksumVerificationMode(options.NoVerification).
		WithCompression(options.None).
		WithNumMemtables(2).
		WithMemTableSize(memTableSize).
		WithBaseTableSize(memTableSize).
		WithIndexCacheSize(clamp(int64(maxMemMB/4), 8, 64) << 20).
		WithLoggingLevel(badger.ERROR).
		WithMetricsEnabled(false)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open storage db failed: %w", err)
	}
	return &badgerStorage{db: db}, nil
}

func (b *badgerStorage) Put(key string, blob []byte) error {
	compressed := ZstdCompress(nil, blob)
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), compressed)
	})
}

func (b *badgerStorage) Get(key string) ([]byte, bool, error) {
	var stored []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(v []byte) error {
			stored = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	} else if stored == nil {
		return nil, false, nil
	}

	decompressed, err := ZstdDecompress(nil, stored)
	if err != nil {
		return nil, false, fmt.Errorf("stored value decompress failed: %w", err)
	}
	return decompressed, true, nil
}

func (b *badgerStorage) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *badgerStorage) KeysWithPrefix(prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			keys = append(keys, string(it.Item().Key()))
		}
		return nil
	})
	return keys, err
}

func (b *badgerStorage) Keys() ([]string, error) {
	return b.KeysWithPrefix("")
}

func (b *badgerStorage) Clear() error {
	return b.db.DropPrefix([]byte{})
}

func (b *badgerStorage) Close() {
	_ = b.db.Close()
}
