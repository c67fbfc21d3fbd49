package batchprocessor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/open-telemetry/otap-go/pkg/otlpbytes"
	"github.com/open-telemetry/otap-go/pkg/pdata"
	"github.com/open-telemetry/otap-go/pkg/pipeline"
)

const metadataSeparator = "\x1f"

type batchEntry struct {
	kind       pdata.SignalKind
	requests   [][]byte
	lastUpdate time.Time
}

// Processor buffers RawBytes payloads keyed by resource-attribute
// metadata and emits each group as one merged Export*ServiceRequest once
// it reaches Config.SendBatchSize or, on TimerTick, once it has been
// idle past Config.Timeout.
type Processor struct {
	config  Config
	batches map[string]*batchEntry
}

// New validates cfg and builds a Processor.
func New(cfg Config) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Processor{config: cfg, batches: make(map[string]*batchEntry)}, nil
}

// Factory adapts New to pipeline.ProcessorFactory.
func Factory(name string, cfgAny any) (pipeline.Processor, error) {
	cfg, ok := cfgAny.(Config)
	if !ok {
		return nil, fmt.Errorf("batchprocessor %s: expected Config, got %T", name, cfgAny)
	}
	return New(cfg)
}

func resourceListField(kind pdata.SignalKind) int {
	switch kind {
	case pdata.SignalMetrics:
		return otlpbytes.FieldMetricsDataResourceMetrics
	case pdata.SignalTraces:
		return otlpbytes.FieldTracesDataResourceSpans
	default:
		return otlpbytes.FieldLogsDataResourceLogs
	}
}

func resourceField(kind pdata.SignalKind) int {
	switch kind {
	case pdata.SignalMetrics:
		return otlpbytes.FieldResourceMetricsResource
	case pdata.SignalTraces:
		return otlpbytes.FieldResourceSpansResource
	default:
		return otlpbytes.FieldResourceLogsResource
	}
}

// extractMetadata reads the configured keys from the first resource of
// the first resource-list entry, in Config.MetadataKeys order, skipping
// any key that is absent rather than padding with a placeholder.
func (p *Processor) extractMetadata(raw pdata.RawBytes) []string {
	attrs, ok := otlpbytes.FirstResourceAttrs(raw.Data, resourceListField(raw.Kind), resourceField(raw.Kind))
	if !ok {
		return nil
	}
	values := make(map[string]string, len(p.config.MetadataKeys))
	for {
		kvBytes, ok := attrs.NextBytes()
		if !ok {
			break
		}
		kv := otlpbytes.KeyValue(kvBytes)
		key, ok := kv.Key()
		if !ok {
			continue
		}
		if v, ok := kv.ValueString(); ok {
			values[key] = v
		}
	}
	metadata := make([]string, 0, len(p.config.MetadataKeys))
	for _, key := range p.config.MetadataKeys {
		if v, ok := values[key]; ok {
			metadata = append(metadata, v)
		}
	}
	return metadata
}

func metadataKey(metadata []string) string {
	return strings.Join(metadata, metadataSeparator)
}

func combine(kind pdata.SignalKind, requests [][]byte) (pdata.RawBytes, bool) {
	if len(requests) == 0 {
		return pdata.RawBytes{}, false
	}
	merged := otlpbytes.ConcatRepeatedField(requests, resourceListField(kind))
	return pdata.RawBytes{Kind: kind, Data: merged}, true
}

// Shutdown implements pipeline.Processor. Draining happens in response
// to the ControlShutdown control message broadcast during pipeline
// teardown; there is no further work to do here.
func (p *Processor) Shutdown(context.Context) error {
	return nil
}

// Process implements pipeline.Processor.
func (p *Processor) Process(ctx context.Context, e pdata.Envelope, effects pipeline.EffectHandler) error {
	if e.IsControl() {
		return p.processControl(ctx, *e.Control, effects)
	}
	return p.processData(ctx, e, effects)
}

func (p *Processor) processData(ctx context.Context, e pdata.Envelope, effects pipeline.EffectHandler) error {
	raw, ok := e.Data.Payload.(pdata.RawBytes)
	if !ok {
		return effects.Send(ctx, e)
	}

	metadata := p.extractMetadata(raw)
	entry, err := p.getOrCreateBatch(ctx, raw.Kind, metadata, effects)
	if err != nil {
		return err
	}
	entry.requests = append(entry.requests, raw.Data)
	entry.lastUpdate = time.Now()

	if uint32(len(entry.requests)) >= p.config.SendBatchSize {
		if combined, ok := combine(raw.Kind, entry.requests); ok {
			if err := effects.Send(ctx, pdata.DataEnvelope(pdata.NewPData(combined))); err != nil {
				return err
			}
		}
		entry.requests = nil
		entry.lastUpdate = time.Now()
	}
	return nil
}

// getOrCreateBatch enforces the cardinality limit: a never-seen key that
// would push the map past the limit triggers an emit-and-clear of every
// existing batch before the new key is admitted.
func (p *Processor) getOrCreateBatch(ctx context.Context, kind pdata.SignalKind, metadata []string, effects pipeline.EffectHandler) (*batchEntry, error) {
	key := metadataKey(metadata)
	if _, exists := p.batches[key]; !exists && uint32(len(p.batches)) >= p.config.MetadataCardinalityLimit {
		if err := p.flushAll(ctx, effects); err != nil {
			return nil, err
		}
	}
	entry, ok := p.batches[key]
	if !ok {
		entry = &batchEntry{kind: kind, lastUpdate: time.Now()}
		p.batches[key] = entry
	}
	return entry, nil
}

func (p *Processor) processControl(ctx context.Context, c pdata.ControlMsg, effects pipeline.EffectHandler) error {
	switch c.Kind {
	case pdata.ControlTimerTick:
		return p.flushTimedOut(ctx, effects)
	case pdata.ControlShutdown:
		return p.flushAll(ctx, effects)
	default:
		return nil
	}
}

func (p *Processor) flushTimedOut(ctx context.Context, effects pipeline.EffectHandler) error {
	if p.config.Timeout == 0 {
		return nil
	}
	now := time.Now()
	for key, entry := range p.batches {
		if len(entry.requests) == 0 || now.Sub(entry.lastUpdate) < p.config.Timeout {
			continue
		}
		delete(p.batches, key)
		if combined, ok := combine(entry.kind, entry.requests); ok {
			if err := effects.Send(ctx, pdata.DataEnvelope(pdata.NewPData(combined))); err != nil {
				return err
			}
		}
	}
	return nil
}

// flushAll emits every non-empty batch and clears the map.
func (p *Processor) flushAll(ctx context.Context, effects pipeline.EffectHandler) error {
	for key, entry := range p.batches {
		delete(p.batches, key)
		if len(entry.requests) == 0 {
			continue
		}
		if combined, ok := combine(entry.kind, entry.requests); ok {
			_ = effects.Send(ctx, pdata.DataEnvelope(pdata.NewPData(combined)))
		}
	}
	return nil
}
