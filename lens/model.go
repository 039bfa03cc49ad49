package lens

import (
	"crypto/sha1"
	"fmt"

	"github.com/mtraver/base91"
	"github.com/vmihailenco/msgpack/v5"
)

// variantKeyPrefix versions the cache key scheme; bump it when the key or
// record layout changes so stale caches read as misses.
const variantKeyPrefix = "cv1:"

// VariantKey returns the attempt-cache key for a candidate variant's text.
// Keys are content-addressed so identical candidates produced by different
// (pass, ordinal) pairs share one verdict.
func VariantKey(text []byte) string {
	sha := sha1.Sum(text)
	return variantKeyPrefix + base91.StdEncoding.EncodeToString(sha[:])
}

// AttemptRecord remembers the verdict for one judged candidate variant.
type AttemptRecord struct {
	// RunID identifies the run that produced the verdict.
	RunID string `msgpack:"rid"`
	// Pass is the transformation name that generated the candidate.
	Pass string `msgpack:"p"`
	// Ordinal is the 1-based instance number the pass targeted.
	Ordinal int `msgpack:"n"`
	// Size is the candidate text size in bytes.
	Size int `msgpack:"sz"`
	// Interesting reports whether the interestingness command succeeded.
	Interesting bool `msgpack:"i"`
	// DurationMs is how long the judgment took.
	DurationMs int64 `msgpack:"ms"`
}

// Encode serializes the record as snappy-wrapped msgpack for storage.
func (r *AttemptRecord) Encode() ([]byte, error) {
	raw, err := msgpack.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("attempt record encode: %w", err)
	}
	return SnappyCompress(nil, raw), nil
}

// DecodeAttemptRecord reverses Encode.
func DecodeAttemptRecord(blob []byte) (*AttemptRecord, error) {
	raw, err := SnappyDecompress(nil, blob)
	if err != nil {
		return nil, fmt.Errorf("attempt record decompress: %w", err)
	}
	var r AttemptRecord
	if err := msgpack.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("attempt record decode: %w", err)
	}
	return &r, nil
}

// PassStats aggregates per-transformation counters over a whole run.
type PassStats struct {
	Name       string `json:"name"`
	Attempts   int    `json:"attempts"`
	Accepts    int    `json:"accepts"`
	OutOfRange int    `json:"out_of_range"`
	Failures   int    `json:"failures"`
	CacheHits  int    `json:"cache_hits"`
}

// IterationMetric records one accepted reduction step.
type IterationMetric struct {
	// Index is the 1-based acceptance number.
	Index int `json:"index"`
	// Pass is the transformation that produced this step.
	Pass string `json:"pass"`
	// Ordinal is the instance number that was rewritten.
	Ordinal int `json:"ordinal"`
	// Size is the program size in bytes after the step.
	Size int `json:"size"`
	// DurationMs is the time spent finding this step, including rejected
	// candidates.
	DurationMs int64 `json:"duration_ms"`
}
