package otlpgrpc

import (
	"context"
	"encoding/json"
	"net"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"

	"github.com/open-telemetry/otap-go/pkg/otlphttp"
	"github.com/open-telemetry/otap-go/pkg/pdata"
	"github.com/open-telemetry/otap-go/pkg/pipeline"
)

// Receiver exposes the OTLP Logs/Metrics/Trace collector services over
// gRPC. Each Export call re-marshals the decoded request back to wire
// bytes, the same RawBytes.Data shape a PData carries coming off
// OTLP/HTTP, so downstream processors never need to know which intake
// path a message arrived through.
//
// Go has no method overloading, so the three collector service
// interfaces (each declaring its own Export(ctx, *XRequest) (*XResponse,
// error)) cannot all be satisfied by one type; Receiver implements
// LogsServiceServer directly and registers two small wrapper types for
// the metrics and trace services, all three sharing Receiver's state
// and its submit helper.
type Receiver struct {
	collogspb.UnimplementedLogsServiceServer

	cfg    Config
	logger *zap.Logger

	effects pipeline.EffectHandler
	slots   *otlphttp.SlotTable

	server *grpc.Server
	ln     net.Listener
}

type metricsServer struct {
	colmetricspb.UnimplementedMetricsServiceServer
	r *Receiver
}

type traceServer struct {
	coltracepb.UnimplementedTraceServiceServer
	r *Receiver
}

// New constructs a Receiver. logger may be nil.
func New(cfg Config, logger *zap.Logger) *Receiver {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Receiver{cfg: cfg, logger: logger, slots: otlphttp.NewSlotTable(cfg.DownstreamChannelCapacity)}
}

// Factory adapts New to pipeline.ReceiverFactory.
func Factory(_ string, cfgAny any) (pipeline.Receiver, error) {
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
	return New(cfg, nil), nil
}

// Addr returns the bound listener's address. Only meaningful after a
// successful Start; useful for tests and ":0" ephemeral-port configs.
func (r *Receiver) Addr() string {
	if r.ln == nil {
		return ""
	}
	return r.ln.Addr().String()
}

// Start binds the listener, registers the collector services, and
// serves in a background goroutine. It returns once the listener is
// bound.
func (r *Receiver) Start(ctx context.Context, effects pipeline.EffectHandler) error {
	ln, err := net.Listen("tcp", r.cfg.Addr)
	if err != nil {
		return err
	}
	r.ln = ln
	r.effects = effects

	r.server = grpc.NewServer(grpc.MaxRecvMsgSize(r.cfg.MaxRecvMsgSize))
	collogspb.RegisterLogsServiceServer(r.server, r)
	colmetricspb.RegisterMetricsServiceServer(r.server, &metricsServer{r: r})
	coltracepb.RegisterTraceServiceServer(r.server, &traceServer{r: r})

	go func() {
		if err := r.server.Serve(ln); err != nil {
			r.logger.Debug("otlpgrpc: serve returned", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops the gRPC server, waiting for in-flight RPCs to finish.
func (r *Receiver) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	stopped := make(chan struct{})
	go func() {
		r.server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		r.server.Stop()
		return ctx.Err()
	}
}

func (r *Receiver) submit(ctx context.Context, kind pdata.SignalKind, req proto.Message) error {
	raw, err := proto.Marshal(req)
	if err != nil {
		return err
	}

	pd := pdata.NewPData(pdata.RawBytes{Kind: kind, Data: raw})

	if !r.cfg.WaitForResult {
		return r.effects.Send(ctx, pdata.DataEnvelope(pd))
	}

	deadline, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	slot, err := r.slots.Acquire(deadline)
	if err != nil {
		return err
	}
	defer r.slots.Release(slot)
	pd.Context.Subscribe(slot)

	if err := r.effects.Send(deadline, pdata.DataEnvelope(pd)); err != nil {
		return err
	}
	ok, reason, err := slot.Wait(deadline)
	if err != nil {
		return err
	}
	if !ok {
		return errNacked(reason)
	}
	return nil
}

// Export implements collogspb.LogsServiceServer.
func (r *Receiver) Export(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	if err := r.submit(ctx, pdata.SignalLogs, req); err != nil {
		return nil, err
	}
	return &collogspb.ExportLogsServiceResponse{}, nil
}

// Export implements colmetricspb.MetricsServiceServer.
func (m *metricsServer) Export(ctx context.Context, req *colmetricspb.ExportMetricsServiceRequest) (*colmetricspb.ExportMetricsServiceResponse, error) {
	if err := m.r.submit(ctx, pdata.SignalMetrics, req); err != nil {
		return nil, err
	}
	return &colmetricspb.ExportMetricsServiceResponse{}, nil
}

// Export implements coltracepb.TraceServiceServer.
func (t *traceServer) Export(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	if err := t.r.submit(ctx, pdata.SignalTraces, req); err != nil {
		return nil, err
	}
	return &coltracepb.ExportTraceServiceResponse{}, nil
}

func errNacked(reason string) error {
	return &nackedError{reason: reason}
}

type nackedError struct{ reason string }

func (e *nackedError) Error() string { return "otlpgrpc: downstream rejected the batch: " + e.reason }
