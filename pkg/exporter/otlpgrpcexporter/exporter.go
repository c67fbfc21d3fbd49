package otlpgrpcexporter

import (
	"context"
	"encoding/json"
	"net"
	"net/url"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"

	"github.com/open-telemetry/otap-go/pkg/netproxy"
	"github.com/open-telemetry/otap-go/pkg/pdata"
	"github.com/open-telemetry/otap-go/pkg/pipeline"
)

// Exporter un-marshals each ingested payload's raw OTLP bytes back into
// the typed Export*ServiceRequest it came from and re-sends it to an
// upstream collector, the mirror image of pkg/receiver/otlpgrpc's
// marshal-to-raw-bytes intake.
type Exporter struct {
	cfg     Config
	conn    *grpc.ClientConn
	logs    collogspb.LogsServiceClient
	metrics colmetricspb.MetricsServiceClient
	trace   coltracepb.TraceServiceClient
}

// dialerFor builds a grpc.WithContextDialer func that resolves proxy
// configuration per dial the same way any other egress connection in
// this module would (pkg/netproxy.Config.ProxyForURL / DialWithConfig),
// including transparent HTTP CONNECT tunneling when a proxy applies.
func dialerFor(proxyCfg netproxy.Config) func(context.Context, string) (net.Conn, error) {
	return func(ctx context.Context, addr string) (net.Conn, error) {
		target := &url.URL{Scheme: "http", Host: addr}
		return netproxy.DialWithConfig(target, proxyCfg, netproxy.DialOptions{})
	}
}

func proxyConfig(cfg Config) netproxy.Config {
	return netproxy.Config{
		HTTPProxy:  cfg.HTTPProxy,
		HTTPSProxy: cfg.HTTPSProxy,
		AllProxy:   cfg.AllProxy,
		NoProxy:    cfg.NoProxy,
	}.MergeWithEnv()
}

// New dials cfg.Endpoint and returns a ready Exporter.
func New(cfg Config) (*Exporter, error) {
	cfg.setDefaults()
	conn, err := grpc.Dial(cfg.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialerFor(proxyConfig(cfg))),
	)
	if err != nil {
		return nil, err
	}
	return &Exporter{
		cfg:     cfg,
		conn:    conn,
		logs:    collogspb.NewLogsServiceClient(conn),
		metrics: colmetricspb.NewMetricsServiceClient(conn),
		trace:   coltracepb.NewTraceServiceClient(conn),
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

// Export implements pipeline.Exporter. Outcome is reported via the
// envelope's pdata.Context, never via the returned error.
func (e *Exporter) Export(ctx context.Context, env pdata.Envelope) error {
	if env.IsControl() {
		return nil
	}

	data := env.Data
	rb, ok := data.Payload.(pdata.RawBytesSource)
	if !ok {
		data.Context.Fire(data.ID, false, "otlpgrpcexporter: payload has no raw bytes to forward")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	if err := e.forward(ctx, data.Payload.Signal(), rb.RawBytes()); err != nil {
		data.Context.Fire(data.ID, false, err.Error())
		return nil
	}
	data.Context.Fire(data.ID, true, "")
	return nil
}

func (e *Exporter) forward(ctx context.Context, kind pdata.SignalKind, raw []byte) error {
	switch kind {
	case pdata.SignalMetrics:
		var req colmetricspb.ExportMetricsServiceRequest
		if err := proto.Unmarshal(raw, &req); err != nil {
			return err
		}
		_, err := e.metrics.Export(ctx, &req)
		return err
	case pdata.SignalTraces:
		var req coltracepb.ExportTraceServiceRequest
		if err := proto.Unmarshal(raw, &req); err != nil {
			return err
		}
		_, err := e.trace.Export(ctx, &req)
		return err
	default:
		var req collogspb.ExportLogsServiceRequest
		if err := proto.Unmarshal(raw, &req); err != nil {
			return err
		}
		_, err := e.logs.Export(ctx, &req)
		return err
	}
}

// Shutdown closes the upstream gRPC connection.
func (e *Exporter) Shutdown(context.Context) error {
	return e.conn.Close()
}
