package geyser

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/grpc/encoding"
)

const zstdName = "zstd"

var registerOnce sync.Once

// registerZstd registers a zstd compressor with gRPC's encoding registry so
// that zstd-compressed response frames from the upstream are decoded
// transparently. Registration is process-global and idempotent.
func registerZstd() {
	registerOnce.Do(func() {
		encoding.RegisterCompressor(&zstdCompressor{})
	})
}

type zstdCompressor struct{}

func (*zstdCompressor) Name() string { return zstdName }

func (*zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

func (*zstdCompressor) Decompress(r io.Reader) (io.Reader, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &zstdReadCloser{dec}, nil
}

type zstdReadCloser struct {
	dec *zstd.Decoder
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}
