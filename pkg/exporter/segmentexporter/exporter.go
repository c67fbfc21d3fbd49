package segmentexporter

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"

	"github.com/open-telemetry/otap-go/pkg/pdata"
	"github.com/open-telemetry/otap-go/pkg/pipeline"
	"github.com/open-telemetry/otap-go/pkg/quiver"
)

var payloadSchema = arrow.NewSchema(
	[]arrow.Field{{Name: "payload", Type: arrow.BinaryTypes.Binary}}, nil)

func slotFor(kind pdata.SignalKind) quiver.Slot {
	switch kind {
	case pdata.SignalTraces:
		return quiver.SlotTraces
	case pdata.SignalMetrics:
		return quiver.SlotMetrics
	default:
		return quiver.SlotLogs
	}
}

// Exporter writes every ingested payload as a single-row chunk into
// the slot matching its signal kind, one bundle per Export call.
type Exporter struct {
	mu        sync.Mutex
	file      *os.File
	writer    *quiver.SegmentWriter
	alloc     memory.Allocator
	nextBundle uint32
}

// New opens path for writing and constructs the underlying
// quiver.SegmentWriter.
func New(cfg Config) (*Exporter, error) {
	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, err
	}
	return &Exporter{
		file:   f,
		writer: quiver.NewSegmentWriter(f, cfg.TargetRowsPerFile),
		alloc:  memory.NewGoAllocator(),
	}, nil
}

// Factory adapts New to pipeline.ExporterFactory.
func Factory(_ string, cfgAny any) (pipeline.Exporter, error) {
	cfg := DefaultConfig()
	switch v := cfgAny.(type) {
	case Config:
		cfg = v
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
	}
	return New(cfg)
}

func (e *Exporter) buildRecord(raw []byte) arrow.Record {
	b := array.NewBinaryBuilder(e.alloc, arrow.BinaryTypes.Binary)
	defer b.Release()
	b.Append(raw)
	col := b.NewArray()
	defer col.Release()
	return array.NewRecord(payloadSchema, []arrow.Array{col}, 1)
}

// Export implements pipeline.Exporter. Each data envelope becomes its
// own bundle, matching the "one bundle per ingested unit" mapping the
// segment format's manifest expects.
func (e *Exporter) Export(ctx context.Context, env pdata.Envelope) error {
	if env.IsControl() {
		return nil
	}

	data := env.Data
	rb, ok := data.Payload.(pdata.RawBytesSource)
	if !ok {
		data.Context.Fire(data.ID, false, "segmentexporter: payload has no raw bytes to write")
		return nil
	}

	record := e.buildRecord(rb.RawBytes())
	defer record.Release()

	bundle := quiver.BundleID(atomic.AddUint32(&e.nextBundle, 1) - 1)

	e.mu.Lock()
	err := e.writer.WriteChunk(bundle, slotFor(data.Payload.Signal()), record)
	e.mu.Unlock()

	if err != nil {
		data.Context.Fire(data.ID, false, err.Error())
		return nil
	}
	data.Context.Fire(data.ID, true, "")
	return nil
}

// Shutdown flushes and closes the segment file.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writer.Close(); err != nil {
		e.file.Close()
		return err
	}
	return e.file.Close()
}
