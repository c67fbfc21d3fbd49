package retryprocessor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/open-telemetry/otap-go/pkg/pdata"
	"github.com/open-telemetry/otap-go/pkg/pipeline"
)

type pendingMessage struct {
	payload       pdata.Payload
	retryCount    int
	nextRetryTime time.Time
	lastError     string
	backoff       *backoff.ExponentialBackOff
}

// Processor tracks every PData it forwards by an internally assigned
// sequence number, reschedules a message on NACK with exponential
// backoff, and re-emits whatever is due on every TimerTick.
type Processor struct {
	mu              sync.Mutex
	config          Config
	pending         map[uint64]*pendingMessage
	nextMessageID   uint64
	lastCleanupTime time.Time
	logger          *zap.Logger
	name            string
}

// New builds a Processor with the given configuration. cfg is used as
// given: zero-valued fields are not replaced with DefaultConfig values.
func New(name string, cfg Config, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		name:            name,
		config:          cfg,
		pending:         make(map[uint64]*pendingMessage),
		nextMessageID:   1,
		lastCleanupTime: time.Now(),
		logger:          logger,
	}
}

// Factory adapts New to pipeline.ProcessorFactory. cfgAny is either a
// Config, a map decoded from the service configuration, or nil for
// defaults.
func Factory(name string, cfgAny any) (pipeline.Processor, error) {
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
	return New(name, cfg, nil), nil
}

func newBackoff(cfg Config) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(cfg.InitialRetryDelayMs) * time.Millisecond
	b.MaxInterval = time.Duration(cfg.MaxRetryDelayMs) * time.Millisecond
	b.Multiplier = cfg.BackoffMultiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

type subscriber struct {
	proc *Processor
	id   uint64
}

func (s *subscriber) Ack(pdata.ID)              { s.proc.acknowledge(s.id) }
func (s *subscriber) Nack(_ pdata.ID, reason string) { s.proc.handleNack(s.id, reason) }

func (p *Processor) acknowledge(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[id]; ok {
		delete(p.pending, id)
		p.logger.Debug("acknowledged and removed message", zap.Uint64("id", id))
	} else {
		p.logger.Warn("acknowledged non-existent message", zap.Uint64("id", id))
	}
}

func (p *Processor) handleNack(id uint64, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending, ok := p.pending[id]
	if !ok {
		return
	}
	delete(p.pending, id)
	pending.retryCount++
	pending.lastError = reason

	if pending.retryCount <= p.config.MaxRetries {
		delay := pending.backoff.NextBackOff()
		pending.nextRetryTime = time.Now().Add(delay)
		p.pending[id] = pending
		p.logger.Debug("scheduled message for retry",
			zap.Uint64("id", id), zap.Int("attempt", pending.retryCount))
	} else {
		p.logger.Error("message exceeded max retries, dropping",
			zap.Uint64("id", id), zap.Int("max_retries", p.config.MaxRetries),
			zap.String("last_error", pending.lastError))
	}
}

// Process implements pipeline.Processor.
func (p *Processor) Process(ctx context.Context, e pdata.Envelope, effects pipeline.EffectHandler) error {
	if e.IsControl() {
		return p.processControl(ctx, *e.Control, effects)
	}
	return p.processData(ctx, e, effects)
}

func (p *Processor) processData(ctx context.Context, e pdata.Envelope, effects pipeline.EffectHandler) error {
	id, tracked := p.addMessageForRetry(e.Data.Payload)
	if tracked {
		e.Data.Context.Subscribe(&subscriber{proc: p, id: id})
	} else {
		p.logger.Warn("retry queue full, forwarding without tracking",
			zap.Int("capacity", p.config.MaxPendingMessages))
	}
	return effects.Send(ctx, e)
}

func (p *Processor) addMessageForRetry(payload pdata.Payload) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) >= p.config.MaxPendingMessages {
		return 0, false
	}
	id := p.nextMessageID
	p.nextMessageID++
	p.pending[id] = &pendingMessage{
		payload:       payload,
		nextRetryTime: time.Now(),
		backoff:       newBackoff(p.config),
	}
	return id, true
}

func (p *Processor) processControl(ctx context.Context, c pdata.ControlMsg, effects pipeline.EffectHandler) error {
	switch c.Kind {
	case pdata.ControlAck:
		p.acknowledge(uint64(c.AckID))
		return nil
	case pdata.ControlNack:
		p.handleNack(uint64(c.AckID), c.NackReason)
		return nil
	case pdata.ControlTimerTick:
		if err := p.processPendingRetries(ctx, effects); err != nil {
			return err
		}
		p.cleanupExpiredMessages()
		return nil
	case pdata.ControlConfig:
		var cfg Config
		if err := json.Unmarshal(c.ConfigPayload, &cfg); err == nil {
			p.mu.Lock()
			p.config = cfg
			p.mu.Unlock()
		} else {
			p.logger.Warn("ignoring malformed retry config update", zap.Error(err))
		}
		return nil
	case pdata.ControlShutdown:
		return p.flushAll(ctx, effects)
	default:
		return nil
	}
}

func (p *Processor) processPendingRetries(ctx context.Context, effects pipeline.EffectHandler) error {
	now := time.Now()
	p.mu.Lock()
	var ready []struct {
		id      uint64
		payload pdata.Payload
	}
	for id, pending := range p.pending {
		if !pending.nextRetryTime.After(now) {
			ready = append(ready, struct {
				id      uint64
				payload pdata.Payload
			}{id, pending.payload})
		}
	}
	p.mu.Unlock()

	for _, r := range ready {
		np := pdata.NewPData(r.payload)
		np.Context.Subscribe(&subscriber{proc: p, id: r.id})
		if err := effects.Send(ctx, pdata.DataEnvelope(np)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) cleanupExpiredMessages() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	interval := time.Duration(p.config.CleanupIntervalSecs) * time.Second
	if now.Sub(p.lastCleanupTime) < interval {
		return
	}
	maxAge := time.Duration(maxFailedMessageAgeSecs) * time.Second
	for id, pending := range p.pending {
		if pending.retryCount > p.config.MaxRetries && now.Sub(pending.nextRetryTime) > maxAge {
			delete(p.pending, id)
			p.logger.Warn("removed expired message", zap.Uint64("id", id))
		}
	}
	p.lastCleanupTime = now
}

func (p *Processor) flushAll(ctx context.Context, effects pipeline.EffectHandler) error {
	p.mu.Lock()
	ids := make([]uint64, 0, len(p.pending))
	payloads := make(map[uint64]pdata.Payload, len(p.pending))
	for id, pending := range p.pending {
		ids = append(ids, id)
		payloads[id] = pending.payload
	}
	p.pending = make(map[uint64]*pendingMessage)
	p.mu.Unlock()

	for _, id := range ids {
		np := pdata.NewPData(payloads[id])
		_ = effects.Send(ctx, pdata.DataEnvelope(np))
	}
	return nil
}

// Shutdown implements pipeline.Processor. Draining happens in response to
// the ControlShutdown control message broadcast during pipeline teardown;
// there is no further work to do here.
func (p *Processor) Shutdown(context.Context) error {
	return nil
}
