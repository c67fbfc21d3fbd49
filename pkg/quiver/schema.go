package quiver

import (
	"hash/fnv"

	"github.com/apache/arrow/go/v12/arrow"
)

// SchemaFingerprint deterministically hashes an Arrow schema's field
// names, types, and nullability so that two calls with an
// equal-but-distinct *arrow.Schema value land in the same stream.
func SchemaFingerprint(schema *arrow.Schema) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(schema.String()))
	return h.Sum64()
}
