package lens

import (
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// ZstdCompress compresses data with zstd, appending to dst.
// Used for cached candidate variant text, which compresses very well since
// successive variants share most of their bytes.
func ZstdCompress(dst, data []byte) []byte {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		panic(err) // static options, not reachable
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, dst)
}

// ZstdDecompress reverses ZstdCompress.
func ZstdDecompress(dst, data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, dst)
}

// SnappyCompress compresses data with snappy framing, appending to dst.
// Used for the small attempt records where zstd overhead is not worth it.
func SnappyCompress(dst, data []byte) []byte {
	return s2.EncodeSnappyBest(dst, data)
}

// SnappyDecompress reverses SnappyCompress.
func SnappyDecompress(dst, data []byte) ([]byte, error) {
	return snappy.Decode(dst, data)
}
