package otlpgrpc

import (
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/grpc/encoding"
)

// ZstdName is the grpc-encoding name of the zstd compressor.
const ZstdName = "zstd"

const (
	zstdWindowSize = 512 * 1024
	// zstdMaxWindow bounds the memory a single response frame may claim.
	zstdMaxWindow = 8 << 20
)

//nolint:gochecknoinits // grpc compressors are registered globally by name.
func init() {
	encoding.RegisterCompressor(newZstdCompressor())
}

type zstdCompressor struct {
	encoders sync.Pool
	decoders sync.Pool
}

type zstdWriter struct {
	*zstd.Encoder

	pool *sync.Pool
}

type zstdReader struct {
	*zstd.Decoder

	pool *sync.Pool
}

func newZstdCompressor() *zstdCompressor {
	c := &zstdCompressor{}
	c.encoders.New = func() any {
		zw, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithWindowSize(zstdWindowSize))

		return &zstdWriter{Encoder: zw, pool: &c.encoders}
	}

	return c
}

func (c *zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	zw := c.encoders.Get().(*zstdWriter) //nolint:forcetypeassert,revive // pool only holds writers.
	zw.Reset(w)

	return zw, nil
}

func (c *zstdCompressor) Decompress(r io.Reader) (io.Reader, error) {
	zr, ok := c.decoders.Get().(*zstdReader)
	if !ok {
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxWindow(zstdMaxWindow))
		if err != nil {
			return nil, err
		}

		return &zstdReader{Decoder: dec, pool: &c.decoders}, nil
	}

	err := zr.Reset(r)
	if err != nil {
		c.decoders.Put(zr)

		return nil, err
	}

	return zr, nil
}

func (*zstdCompressor) Name() string {
	return ZstdName
}

func (w *zstdWriter) Close() error {
	defer w.pool.Put(w)

	return w.Encoder.Close()
}

func (r *zstdReader) Read(p []byte) (int, error) {
	n, err := r.Decoder.Read(p)
	if errors.Is(err, io.EOF) {
		r.pool.Put(r)
	}

	return n, err
}
