package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/open-telemetry/otap-go/pkg/pdata"
)

// chanEffects is the EffectHandler a Controller hands to each processor:
// sends land on the single configured downstream channel.
type chanEffects struct {
	name string
	out  *Channel
}

func (e *chanEffects) Send(ctx context.Context, env pdata.Envelope) error {
	if err := e.out.Send(ctx, env); err != nil {
		return err
	}
	return nil
}

func (e *chanEffects) ComponentName() string { return e.name }

// processorTask adapts a Processor into a Task: one Step reads a single
// envelope from in and runs it through Process.
type processorTask struct {
	name    string
	proc    Processor
	in      *Channel
	effects EffectHandler
}

func (t *processorTask) Step(ctx context.Context) (bool, error) {
	env, ok, err := t.in.Recv(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return false, t.proc.Process(ctx, env, t.effects)
}

// exporterFanout reads the final channel in a pipeline and hands every
// envelope to every configured exporter. The first exporter to settle an
// envelope's pdata.Context wins (Context.Fire is idempotent), matching
// "an exporter's ACK/NACK targets exactly one outstanding submission."
type exporterFanout struct {
	in        *Channel
	exporters []namedExporter
}

type namedExporter struct {
	name string
	exp  Exporter
}

func (t *exporterFanout) Step(ctx context.Context) (bool, error) {
	env, ok, err := t.in.Recv(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	var errs error
	for _, ne := range t.exporters {
		if err := ne.exp.Export(ctx, env); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return false, errs
}

// RunningPipeline holds the wired, started components of one named
// pipeline.
type RunningPipeline struct {
	name       string
	receivers  []namedReceiver
	processors []namedProcessor
	exporters  []namedExporter
	firstIn    *Channel
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *zap.Logger
}

type namedReceiver struct {
	name string
	recv Receiver
}

type namedProcessor struct {
	name string
	proc Processor
	in   *Channel
	eff  EffectHandler
}

// Controller owns the lifecycle of every pipeline built from a Config: it
// constructs components in order (processors in listed order, then
// exporters, then receivers), starts them, and on Shutdown stops the
// receivers first, then drains and shuts down processors and exporters.
type Controller struct {
	registry  *Registry
	scheduler Scheduler
	logger    *zap.Logger

	mu        sync.Mutex
	pipelines map[string]*RunningPipeline
}

// NewController builds a Controller backed by registry for component
// construction and scheduler for running processor/exporter tasks.
// logger may be nil.
func NewController(registry *Registry, scheduler Scheduler, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		registry:  registry,
		scheduler: scheduler,
		logger:    logger,
		pipelines: make(map[string]*RunningPipeline),
	}
}

// Start builds and starts every pipeline declared in cfg.Service.Pipelines.
func (c *Controller) Start(ctx context.Context, cfg *Config) error {
	for name, pcfg := range cfg.Service.Pipelines {
		rp, err := c.buildPipeline(ctx, name, pcfg, cfg)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.pipelines[name] = rp
		c.mu.Unlock()
	}
	return nil
}

func (c *Controller) buildPipeline(ctx context.Context, name string, pcfg PipelineConfig, cfg *Config) (*RunningPipeline, error) {
	pctx, cancel := context.WithCancel(ctx)
	rp := &RunningPipeline{name: name, cancel: cancel, logger: c.logger}

	firstIn := NewChannel(pcfg.ReceiverChannelSize)
	rp.firstIn = firstIn

	// Chain of channels: firstIn -> proc0 -> proc1 -> ... -> exporterIn.
	chain := make([]*Channel, 0, len(pcfg.Processors)+1)
	chain = append(chain, firstIn)
	for i := range pcfg.Processors {
		size := pcfg.ProcessorChannelSize
		if i == len(pcfg.Processors)-1 {
			size = pcfg.ExporterChannelSize
		}
		chain = append(chain, NewChannel(size))
	}
	if len(pcfg.Processors) == 0 {
		// firstIn doubles as the exporter-in channel; re-create it at the
		// exporter capacity if it differs.
		if pcfg.ReceiverChannelSize != pcfg.ExporterChannelSize {
			chain[0] = NewChannel(pcfg.ExporterChannelSize)
			firstIn = chain[0]
			rp.firstIn = firstIn
		}
	}

	for i, pname := range pcfg.Processors {
		proc, err := c.registry.BuildProcessor(pname, cfg.Processors[pname])
		if err != nil {
			return nil, err
		}
		in := chain[i]
		out := chain[i+1]
		eff := &chanEffects{name: pname, out: out}
		rp.processors = append(rp.processors, namedProcessor{name: pname, proc: proc, in: in, eff: eff})
		c.scheduler.Schedule(pctx, pname, &processorTask{name: pname, proc: proc, in: in, effects: eff})
	}

	var exps []namedExporter
	for _, ename := range pcfg.Exporters {
		exp, err := c.registry.BuildExporter(ename, cfg.Exporters[ename])
		if err != nil {
			return nil, err
		}
		exps = append(exps, namedExporter{name: ename, exp: exp})
	}
	rp.exporters = exps
	finalChan := chain[len(chain)-1]
	c.scheduler.Schedule(pctx, name+"/exporters", &exporterFanout{in: finalChan, exporters: exps})

	for _, rname := range pcfg.Receivers {
		recv, err := c.registry.BuildReceiver(rname, cfg.Receivers[rname])
		if err != nil {
			return nil, err
		}
		rp.receivers = append(rp.receivers, namedReceiver{name: rname, recv: recv})
		eff := &chanEffects{name: rname, out: firstIn}
		if err := recv.Start(pctx, eff); err != nil {
			return nil, &ComponentNotCreatedError{Kind: "receiver", Name: rname, Reason: err.Error()}
		}
	}

	return rp, nil
}

// Broadcast delivers a control message directly to every processor and
// exporter in every running pipeline, independent of data-channel
// ordering. TimerTick and Shutdown are the two messages the runtime
// generates internally; Config is typically targeted at one component by
// a caller holding a direct reference, but broadcasting is harmless since
// components that don't recognize a payload leave their config
// unchanged (spec.md §4.5 "on parse error keep the current config").
func (c *Controller) Broadcast(ctx context.Context, msg pdata.ControlMsg) error {
	c.mu.Lock()
	pipelines := make([]*RunningPipeline, 0, len(c.pipelines))
	for _, rp := range c.pipelines {
		pipelines = append(pipelines, rp)
	}
	c.mu.Unlock()

	var errs error
	env := pdata.ControlEnvelope(msg)
	for _, rp := range pipelines {
		for _, np := range rp.processors {
			if err := np.proc.Process(ctx, env, np.eff); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
		for _, ne := range rp.exporters {
			if err := ne.exp.Export(ctx, env); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}
	return errs
}

// Shutdown walks every pipeline in reverse: receivers stop accepting,
// processors and exporters drain and flush via a broadcast Shutdown
// control message, then the scheduler is waited on up to deadline.
func (c *Controller) Shutdown(ctx context.Context, deadline time.Duration, reason string) error {
	c.mu.Lock()
	pipelines := make([]*RunningPipeline, 0, len(c.pipelines))
	for _, rp := range c.pipelines {
		pipelines = append(pipelines, rp)
	}
	c.mu.Unlock()

	var errs error
	for _, rp := range pipelines {
		for _, nr := range rp.receivers {
			if err := nr.recv.Shutdown(ctx); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}

	deadlineMillis := deadline.Milliseconds()
	if err := c.Broadcast(ctx, pdata.Shutdown(deadlineMillis, reason)); err != nil {
		errs = multierr.Append(errs, err)
	}

	done := make(chan struct{})
	go func() {
		c.scheduler.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(deadline):
		c.logger.Warn("shutdown deadline elapsed before scheduler drained")
	}

	for _, rp := range pipelines {
		rp.cancel()
		for _, np := range rp.processors {
			if err := np.proc.Shutdown(ctx); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
		for _, ne := range rp.exporters {
			if err := ne.exp.Shutdown(ctx); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}
	return errs
}
