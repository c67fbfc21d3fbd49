package quiver

import (
	"strings"

	"github.com/google/uuid"
)

// PartitionKV is one ordered partition attribute; order is preserved in
// the generated path exactly as supplied.
type PartitionKV struct {
	Key, Value string
}

// PartitionPath builds the `<payload_type>/<k1>=<v1>/<k2>=<v2>/...` path
// prefix for a stream given its payload type name and ordered partition
// attributes. Values are treated as opaque strings, never interpreted.
func PartitionPath(payloadType string, attrs []PartitionKV) string {
	var b strings.Builder
	b.WriteString(payloadType)
	for _, kv := range attrs {
		b.WriteByte('/')
		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(kv.Value)
	}
	return b.String()
}

// Filename generates a segment filename of the form
// `part-<epoch_ms>-<uuid>.parquet`.
func Filename(epochMillis int64) string {
	return "part-" + itoa(epochMillis) + "-" + uuid.NewString() + ".parquet"
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	u := uint64(v)
	if neg {
		u = uint64(-v)
	}
	var buf [20]byte
	pos := len(buf)
	for u > 0 {
		pos--
		buf[pos] = byte('0' + u%10)
		u /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
