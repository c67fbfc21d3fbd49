package batchprocessor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-telemetry/otap-go/pkg/pdata"
)

// --- minimal local protobuf byte builders, mirroring the wire format
// otlpbytes parses, so these tests don't need a generated proto stack. ---

func putTag(buf []byte, fieldNum, wireType int) []byte {
	return putVarint(buf, uint64(fieldNum)<<3|uint64(wireType))
}

func putVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

func lenField(fieldNum int, payload []byte) []byte {
	buf := putTag(nil, fieldNum, 2)
	buf = putVarint(buf, uint64(len(payload)))
	return append(buf, payload...)
}

func stringAnyValue(s string) []byte {
	return lenField(1, []byte(s)) // AnyValue.string_value = field 1
}

func keyValue(key, value string) []byte {
	var buf []byte
	buf = append(buf, lenField(1, []byte(key))...)        // KeyValue.key = field 1
	buf = append(buf, lenField(2, stringAnyValue(value))...) // KeyValue.value = field 2
	return buf
}

func resource(attrs ...[]byte) []byte {
	var buf []byte
	for _, a := range attrs {
		buf = append(buf, lenField(1, a)...) // Resource.attributes = field 1
	}
	return buf
}

// traceRequest builds one ExportTraceServiceRequest's worth of bytes with
// a single resource carrying the given attributes and a single span
// named spanName.
func traceRequest(spanName string, attrs ...[]byte) []byte {
	scopeSpans := lenField(1, nil) // ScopeSpans.scope = field 1, empty
	span := lenField(3, []byte(spanName))
	scopeSpans = append(scopeSpans, lenField(2, span)...) // ScopeSpans.spans = field 2
	resourceSpans := lenField(1, resource(attrs...))      // ResourceSpans.resource = field 1
	resourceSpans = append(resourceSpans, lenField(2, scopeSpans)...)
	return lenField(1, resourceSpans) // TracesData.resource_spans = field 1
}

// countResourceSpans counts top-level resource_spans entries; every test
// request here carries exactly one span per resource_spans entry, so
// this doubles as a span count after merging.
func countResourceSpans(data []byte) int {
	return countLenFieldOccurrences(data, 1)
}

func countLenFieldOccurrences(data []byte, fieldNum int) int {
	count := 0
	i := 0
	for i < len(data) {
		tag := data[i]
		fn := int(tag >> 3)
		wt := int(tag & 0x7)
		i++
		switch wt {
		case 0: // varint
			for i < len(data) && data[i]&0x80 != 0 {
				i++
			}
			i++
		case 2: // len
			length, n := readVarint(data[i:])
			i += n
			if fn == fieldNum {
				count++
			}
			i += int(length)
		case 5:
			i += 4
		case 1:
			i += 8
		}
	}
	return count
}

func readVarint(b []byte) (uint64, int) {
	var v uint64
	var shift uint
	for i, by := range b {
		v |= uint64(by&0x7f) << shift
		if by&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return 0, len(b)
}

type captureEffects struct {
	sent []pdata.Envelope
}

func (c *captureEffects) Send(_ context.Context, e pdata.Envelope) error {
	c.sent = append(c.sent, e)
	return nil
}
func (c *captureEffects) ComponentName() string { return "batch/0" }

func dataEnv(data []byte) pdata.Envelope {
	return pdata.DataEnvelope(pdata.NewPData(pdata.RawBytes{Kind: pdata.SignalTraces, Data: data}))
}

func TestBatchBySameMetadataMergesAtSendBatchSize(t *testing.T) {
	p, err := New(Config{
		SendBatchSize:            2,
		Timeout:                  0,
		MetadataKeys:             []string{"service.name"},
		MetadataCardinalityLimit: 10,
	})
	require.NoError(t, err)
	eff := &captureEffects{}
	ctx := context.Background()

	req1 := traceRequest("span1", keyValue("service.name", "s1"))
	req2 := traceRequest("span2", keyValue("service.name", "s1"))
	req3 := traceRequest("span3", keyValue("service.name", "s2"))

	require.NoError(t, p.Process(ctx, dataEnv(req1), eff))
	require.Empty(t, eff.sent, "first arrival must not flush alone")

	require.NoError(t, p.Process(ctx, dataEnv(req2), eff))
	require.Len(t, eff.sent, 1, "second s1 arrival reaches send_batch_size and flushes")

	merged := eff.sent[0].Data.Payload.(pdata.RawBytes)
	require.Equal(t, 2, countResourceSpans(merged.Data))

	require.NoError(t, p.Process(ctx, dataEnv(req3), eff))
	require.Len(t, eff.sent, 1, "s2 stays pending below threshold")
}

func TestTimerTickZeroTimeoutDoesNothing(t *testing.T) {
	p, err := New(Config{
		SendBatchSize:            10,
		Timeout:                  0,
		MetadataKeys:             []string{"service.name"},
		MetadataCardinalityLimit: 10,
	})
	require.NoError(t, err)
	eff := &captureEffects{}
	ctx := context.Background()
	require.NoError(t, p.Process(ctx, dataEnv(traceRequest("s", keyValue("service.name", "s2"))), eff))

	require.NoError(t, p.Process(ctx, pdata.ControlEnvelope(pdata.TimerTick()), eff))
	require.Empty(t, eff.sent)
}

func TestTimerTickAfterTimeoutFlushes(t *testing.T) {
	p, err := New(Config{
		SendBatchSize:            10,
		Timeout:                  1 * time.Millisecond,
		MetadataKeys:             []string{"service.name"},
		MetadataCardinalityLimit: 10,
	})
	require.NoError(t, err)
	eff := &captureEffects{}
	ctx := context.Background()
	require.NoError(t, p.Process(ctx, dataEnv(traceRequest("s", keyValue("service.name", "s2"))), eff))

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, p.Process(ctx, pdata.ControlEnvelope(pdata.TimerTick()), eff))
	require.Len(t, eff.sent, 1)
}

func TestCardinalityLimitFlushesAllOnThirdDistinctKey(t *testing.T) {
	p, err := New(Config{
		SendBatchSize:            10,
		Timeout:                  0,
		MetadataKeys:             []string{"service.name"},
		MetadataCardinalityLimit: 2,
	})
	require.NoError(t, err)
	eff := &captureEffects{}
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, dataEnv(traceRequest("s1", keyValue("service.name", "a"))), eff))
	require.NoError(t, p.Process(ctx, dataEnv(traceRequest("s2", keyValue("service.name", "b"))), eff))
	require.Empty(t, eff.sent)

	require.NoError(t, p.Process(ctx, dataEnv(traceRequest("s3", keyValue("service.name", "c"))), eff))
	require.Len(t, eff.sent, 2, "third distinct key forces a flush of the two existing batches")
	require.Len(t, p.batches, 1, "only the triggering key's fresh batch remains")
}

func TestShutdownFlushesEverything(t *testing.T) {
	p, err := New(Config{
		SendBatchSize:            10,
		Timeout:                  0,
		MetadataKeys:             []string{"service.name"},
		MetadataCardinalityLimit: 10,
	})
	require.NoError(t, err)
	eff := &captureEffects{}
	ctx := context.Background()
	require.NoError(t, p.Process(ctx, dataEnv(traceRequest("s", keyValue("service.name", "a"))), eff))
	require.NoError(t, p.Process(ctx, pdata.ControlEnvelope(pdata.Shutdown(0, "bye")), eff))
	require.Len(t, eff.sent, 1)
	require.Empty(t, p.batches)
}
