package otlphttp

import (
	"bytes"
	"io"
	"sync"

	"github.com/hyp3rd/ewrap"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/hyp3rd/otlpexport/pkg/config"
)

type resettableWriter interface {
	io.WriteCloser
	Reset(w io.Writer)
}

var (
	_ resettableWriter = (*gzip.Writer)(nil)
	_ resettableWriter = (*zstd.Encoder)(nil)

	gzipPool = &compressor{encoding: "gzip", pool: sync.Pool{New: func() any { return gzip.NewWriter(nil) }}}
	// A single encoder goroutine keeps pooled zstd writers small.
	zstdPool = &compressor{encoding: "zstd", pool: sync.Pool{New: func() any {
		zw, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))

		return zw
	}}}
)

type compressor struct {
	encoding string
	pool     sync.Pool
}

// compressorFor returns nil for config.CompressionNone.
func compressorFor(c config.Compression) (*compressor, error) {
	switch c {
	case config.CompressionNone, "":
		return nil, nil //nolint:nilnil // no compression is a valid choice.
	case config.CompressionGzip:
		return gzipPool, nil
	case config.CompressionZstd:
		return zstdPool, nil
	default:
		return nil, ewrap.Newf("unsupported compression %q", c)
	}
}

func (c *compressor) compress(payload []byte) ([]byte, error) {
	writer := c.pool.Get().(resettableWriter) //nolint:forcetypeassert,revive // pool only holds writers.
	defer c.pool.Put(writer)

	var buf bytes.Buffer

	buf.Grow(len(payload) / 2)
	writer.Reset(&buf)

	_, err := writer.Write(payload)
	if err != nil {
		return nil, ewrap.Wrapf(err, "%s compress", c.encoding)
	}

	err = writer.Close()
	if err != nil {
		return nil, ewrap.Wrapf(err, "%s flush", c.encoding)
	}

	return buf.Bytes(), nil
}
