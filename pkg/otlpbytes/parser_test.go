package otlpbytes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeKV(fieldNum int, wt WireType, payload []byte) []byte {
	var buf []byte
	buf = putTag(buf, fieldNum, wt)
	if wt == WireLen {
		buf = putVarint(buf, uint64(len(payload)))
	}
	buf = append(buf, payload...)
	return buf
}

func encodeVarintField(fieldNum int, v uint64) []byte {
	var buf []byte
	buf = putTag(buf, fieldNum, WireVarint)
	buf = putVarint(buf, v)
	return buf
}

func TestParserScansFieldsOnDemand(t *testing.T) {
	msg := append(append([]byte{}, encodeKV(3, WireLen, []byte("hello"))...), encodeVarintField(2, 42)...)
	p := New(msg)

	s, ok := p.String(3)
	require.True(t, ok)
	require.Equal(t, "hello", s)

	v, ok := p.Varint(2)
	require.True(t, ok)
	require.EqualValues(t, 42, v)
}

func TestAccessorIdempotent(t *testing.T) {
	msg := encodeKV(3, WireLen, []byte("severity"))
	p := New(msg)
	a, _ := p.String(3)
	b, _ := p.String(3)
	require.Equal(t, a, b)
}

func TestMissingFieldReturnsFalse(t *testing.T) {
	msg := encodeVarintField(1, 1)
	p := New(msg)
	_, ok := p.String(99)
	require.False(t, ok)
}

func TestMalformedVarintDoesNotPanic(t *testing.T) {
	msg := []byte{0x08, 0xff, 0xff, 0xff} // tag for field1 varint, truncated value
	p := New(msg)
	_, ok := p.Varint(1)
	require.False(t, ok)
}

func TestEmptyBufferIsCrashFree(t *testing.T) {
	p := New(nil)
	_, ok := p.Varint(1)
	require.False(t, ok)
}

func TestRepeatedExpandedScalars(t *testing.T) {
	var msg []byte
	msg = append(msg, encodeVarintField(5, 1)...)
	msg = append(msg, encodeVarintField(5, 2)...)
	msg = append(msg, encodeVarintField(5, 3)...)
	p := New(msg)
	it := p.Scalars(5, WireVarint)
	var got []uint64
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, v)
	}
	require.Equal(t, []uint64{1, 2, 3}, got)
}

func TestRepeatedPackedScalars(t *testing.T) {
	var payload []byte
	payload = putVarint(payload, 10)
	payload = putVarint(payload, 20)
	payload = putVarint(payload, 30)
	msg := encodeKV(5, WireLen, payload)
	p := New(msg)
	it := p.Scalars(5, WireVarint)
	var got []uint64
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, v)
	}
	require.Equal(t, []uint64{10, 20, 30}, got)
}

func TestEncoderRoundTripsSingleScope(t *testing.T) {
	enc := NewEncoder()
	rec1 := encodeKV(FieldLogRecordSeverityText, WireLen, []byte("INFO"))
	rec2 := encodeKV(FieldLogRecordSeverityText, WireLen, []byte("WARN"))
	enc.Append("scope-a", rec1)
	enc.Append("scope-a", rec2)
	out := enc.Flush()

	req := New(out)
	rl, ok := req.Message(FieldLogsDataResourceLogs)
	require.True(t, ok)
	sl, ok := rl.Message(FieldResourceLogsScopeLogs)
	require.True(t, ok)
	it := sl.Iter(FieldScopeLogsLogRecords)
	first, ok := it.NextMessage()
	require.True(t, ok)
	txt, ok := first.String(FieldLogRecordSeverityText)
	require.True(t, ok)
	require.Equal(t, "INFO", txt)
	second, ok := it.NextMessage()
	require.True(t, ok)
	txt2, _ := second.String(FieldLogRecordSeverityText)
	require.Equal(t, "WARN", txt2)
}

func TestEncoderReopensOnScopeChange(t *testing.T) {
	enc := NewEncoder()
	enc.Append("a", encodeKV(FieldLogRecordSeverityText, WireLen, []byte("x")))
	enc.Append("b", encodeKV(FieldLogRecordSeverityText, WireLen, []byte("y")))
	out := enc.Flush()

	req := New(out)
	it := req.Iter(FieldLogsDataResourceLogs)
	count := 0
	for {
		_, ok := it.NextMessage()
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, 1, count) // one encoder session => one ResourceLogs envelope
}
