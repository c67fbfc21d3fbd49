package otlpbytes

// ConcatRepeatedField rebuilds a single message's worth of bytes by
// copying every occurrence of the given LEN (embedded message) field
// number out of each input buffer, in order, into one output buffer.
// It is how the batch processor merges several Export*ServiceRequest
// payloads that share the same top-level repeated resource-list field
// (resource_logs / resource_metrics / resource_spans all use field 1)
// without fully decoding either side.
func ConcatRepeatedField(bufs [][]byte, fieldNum int) []byte {
	var out []byte
	for _, buf := range bufs {
		p := New(buf)
		it := p.Iter(fieldNum)
		for {
			raw, ok := it.NextBytes()
			if !ok {
				break
			}
			out = append(out, encodeLenField(fieldNum, raw)...)
		}
	}
	return out
}

func encodeLenField(fieldNum int, value []byte) []byte {
	buf := make([]byte, 0, len(value)+10)
	buf = putTag(buf, fieldNum, WireLen)
	buf = putVarint(buf, uint64(len(value)))
	buf = append(buf, value...)
	return buf
}
