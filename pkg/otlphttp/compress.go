package otlphttp

import (
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ErrBodyTooLarge is returned by readLimited when the source would
// produce more than limit bytes.
var ErrBodyTooLarge = errors.New("request body too large")

const readChunkSize = 8 * 1024 // 8 KiB, per spec.md §5's decompression bomb defence.

// readLimited reads all of r into memory, reading in readChunkSize
// chunks and failing with ErrBodyTooLarge the instant the accumulated
// output would exceed limit — the buffer never grows past limit.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	out := make([]byte, 0, minInt64(limit, 64*1024))
	chunk := make([]byte, readChunkSize)
	var total int64
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			total += int64(n)
			if total > limit {
				return nil, ErrBodyTooLarge
			}
			out = append(out, chunk[:n]...)
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// decompress reads body (the compressed wire bytes, already bounded to
// limit by the caller) through the codec named by encoding, bounding the
// decompressed output to limit as well. encoding is case-sensitive per
// the OTLP wire surface ("identity", "gzip", "deflate", "zstd"); an
// unrecognised value returns errUnsupportedEncoding, which the caller
// maps to 415.
func decompress(body []byte, encoding string, limit int64) ([]byte, error) {
	switch encoding {
	case "", "identity":
		if int64(len(body)) > limit {
			return nil, ErrBodyTooLarge
		}
		return body, nil
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readLimited(zr, limit)
	case "deflate":
		zr := flate.NewReader(bytes.NewReader(body))
		defer zr.Close()
		return readLimited(zr, limit)
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readLimited(zr, limit)
	default:
		return nil, errUnsupportedEncoding
	}
}

var errUnsupportedEncoding = errors.New("unsupported content-encoding")
