// Package otlphttpreceiver adapts pkg/otlphttp.Server — built against a
// Submitter, not a pipeline.EffectHandler — into a pipeline.Receiver so
// the registry-driven controller can construct and own it the same way
// it owns otlpgrpc and syslogcef.
package otlphttpreceiver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/open-telemetry/otap-go/pkg/otlphttp"
	"github.com/open-telemetry/otap-go/pkg/pdata"
	"github.com/open-telemetry/otap-go/pkg/pipeline"
)

// effectSubmitter adapts a pipeline.EffectHandler to otlphttp.Submitter.
type effectSubmitter struct {
	effects pipeline.EffectHandler
}

func (s effectSubmitter) Submit(ctx context.Context, p pdata.PData) error {
	return s.effects.Send(ctx, pdata.DataEnvelope(p))
}

// Receiver wraps an otlphttp.Server, deferring its construction to Start
// since the underlying Server needs the EffectHandler up front.
type Receiver struct {
	cfg    otlphttp.Config
	logger *zap.Logger

	server *otlphttp.Server
	errCh  chan error
}

// New constructs a Receiver from an already-decoded otlphttp.Config.
// logger may be nil.
func New(cfg otlphttp.Config, logger *zap.Logger) *Receiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Receiver{cfg: cfg, logger: logger, errCh: make(chan error, 1)}
}

// Factory adapts New to pipeline.ReceiverFactory.
func Factory(_ string, cfgAny any) (pipeline.Receiver, error) {
	cfg := otlphttp.Config{}
	switch v := cfgAny.(type) {
	case otlphttp.Config:
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
	return New(cfg, nil), nil
}

// Start builds the underlying otlphttp.Server now that effects is known
// and serves it in a background goroutine.
func (r *Receiver) Start(ctx context.Context, effects pipeline.EffectHandler) error {
	server, err := otlphttp.NewServer(r.cfg, effectSubmitter{effects: effects}, r.logger)
	if err != nil {
		return err
	}
	r.server = server

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case r.errCh <- err:
			default:
			}
			r.logger.Warn("otlphttpreceiver: serve returned", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops the underlying HTTP(S) server.
func (r *Receiver) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}
