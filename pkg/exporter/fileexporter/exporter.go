package fileexporter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/open-telemetry/otap-go/pkg/pdata"
	"github.com/open-telemetry/otap-go/pkg/pipeline"
)

var errUnsupportedPayload = errors.New("fileexporter: payload has no raw bytes to write")

// Exporter appends each ingested payload's raw bytes, newline
// terminated, to a lumberjack-rotated file.
type Exporter struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
}

// New opens (lazily, on first write) the rotating file described by
// cfg.
func New(cfg Config) *Exporter {
	return &Exporter{
		writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}
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
	return New(cfg), nil
}

func rawBytesOf(p pdata.Payload) ([]byte, bool) {
	rb, ok := p.(pdata.RawBytesSource)
	if !ok {
		return nil, false
	}
	return rb.RawBytes(), true
}

// Export implements pipeline.Exporter. Control envelopes are no-ops;
// data envelopes are written and ACKed or NACKed via the envelope's
// pdata.Context, never via the returned error.
func (e *Exporter) Export(ctx context.Context, env pdata.Envelope) error {
	if env.IsControl() {
		return nil
	}

	data := env.Data
	raw, ok := rawBytesOf(data.Payload)
	if !ok {
		data.Context.Fire(data.ID, false, errUnsupportedPayload.Error())
		return nil
	}

	line := make([]byte, 0, len(raw)+1)
	line = append(line, raw...)
	line = append(line, '\n')

	e.mu.Lock()
	_, err := e.writer.Write(line)
	e.mu.Unlock()

	if err != nil {
		data.Context.Fire(data.ID, false, err.Error())
		return nil
	}
	data.Context.Fire(data.ID, true, "")
	return nil
}

// Shutdown closes the underlying rotated file.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writer.Close()
}
