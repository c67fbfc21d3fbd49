// Package otlphttp implements the OTLP/HTTP intake path: bounded
// admission, request validation, compression handling with
// decompression-bomb protection, and an optional per-request ACK wait.
package otlphttp

import (
	"context"
	"crypto/tls"
	"errors"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/open-telemetry/otap-go/pkg/pdata"
)

const (
	defaultRequestTimeout = 30 * time.Second
	permitTimeoutFallback = 5 * time.Second
)

// Config configures one OTLP/HTTP intake server.
type Config struct {
	Addr string

	LogsPath    string // default "/v1/logs"
	MetricsPath string // default "/v1/metrics"
	TracesPath  string // default "/v1/traces"

	MaxConcurrentRequests    int
	MaxRequestBodySize       int64
	RequestTimeout           time.Duration
	WaitForResult            bool
	DownstreamChannelCapacity int

	TLS *TLSConfig
}

func (c *Config) setDefaults() {
	if c.LogsPath == "" {
		c.LogsPath = "/v1/logs"
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/v1/metrics"
	}
	if c.TracesPath == "" {
		c.TracesPath = "/v1/traces"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxConcurrentRequests <= 0 {
		c.MaxConcurrentRequests = 1
	}
	if c.DownstreamChannelCapacity <= 0 {
		c.DownstreamChannelCapacity = c.MaxConcurrentRequests
	}
}

func (c *Config) permitTimeout() time.Duration {
	if c.RequestTimeout > 0 {
		return c.RequestTimeout
	}
	return permitTimeoutFallback
}

// Submitter hands a PData off to the pipeline. Submit should suspend
// (block) on downstream backpressure, not drop.
type Submitter interface {
	Submit(ctx context.Context, p pdata.PData) error
}

// Server terminates OTLP/HTTP and hands payloads to a Submitter.
type Server struct {
	cfg       Config
	submitter Submitter
	logger    *zap.Logger

	sem   chan struct{}
	slots *SlotTable
	certs *CertResolver

	httpServer *http.Server
}

// NewServer builds a Server. logger may be nil.
func NewServer(cfg Config, submitter Submitter, logger *zap.Logger) (*Server, error) {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:       cfg,
		submitter: submitter,
		logger:    logger,
		sem:       make(chan struct{}, cfg.MaxConcurrentRequests),
		slots:     NewSlotTable(cfg.DownstreamChannelCapacity),
	}
	if cfg.TLS != nil {
		certs, err := NewCertResolver(*cfg.TLS, logger)
		if err != nil {
			return nil, err
		}
		s.certs = certs
	}
	return s, nil
}

// ListenAndServe starts the HTTP (or HTTPS, if TLS is configured)
// listener and serves on it. It blocks until Shutdown is called (then
// returning http.ErrServerClosed) or the listener fails.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.LogsPath, s.handler(pdata.SignalLogs))
	mux.HandleFunc(s.cfg.MetricsPath, s.handler(pdata.SignalMetrics))
	mux.HandleFunc(s.cfg.TracesPath, s.handler(pdata.SignalTraces))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { writeNotFound(w) })

	s.httpServer = &http.Server{Addr: s.cfg.Addr, Handler: mux}
	if s.certs != nil {
		s.httpServer.TLSConfig = &tls.Config{GetCertificate: s.certs.GetCertificate}
		return s.httpServer.ListenAndServeTLS("", "")
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new connections and closes the TLS poller.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.certs != nil {
		s.certs.Close()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handler(kind pdata.SignalKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, kind)
	}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, kind pdata.SignalKind) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || ct != pbContentType {
		writeUnsupportedMediaType(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	permitTimeout := s.cfg.permitTimeout()
	permitCtx, permitCancel := context.WithTimeout(ctx, permitTimeout)
	defer permitCancel()
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-permitCtx.Done():
		writeServiceUnavailable(w, "permit acquisition timed out")
		return
	}

	wireBody, err := readLimited(r.Body, s.cfg.MaxRequestBodySize)
	if errors.Is(err, ErrBodyTooLarge) {
		writeBodyTooLarge(w)
		return
	}
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}

	encoding := r.Header.Get("Content-Encoding")
	body, err := decompress(wireBody, encoding, s.cfg.MaxRequestBodySize)
	if errors.Is(err, ErrBodyTooLarge) {
		writeBodyTooLarge(w)
		return
	}
	if errors.Is(err, errUnsupportedEncoding) {
		writeUnsupportedMediaType(w)
		return
	}
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}

	p := pdata.NewPData(pdata.RawBytes{Kind: kind, Data: body})

	var slot *Slot
	if s.cfg.WaitForResult {
		slot, err = s.slots.Acquire(ctx)
		if err != nil {
			writeServiceUnavailable(w, "slot table exhausted")
			return
		}
		defer s.slots.Release(slot)
		p.Context.Subscribe(slot)
	}

	if err := s.submitter.Submit(ctx, p); err != nil {
		writeServiceUnavailable(w, err.Error())
		return
	}

	if !s.cfg.WaitForResult {
		writeSuccess(w, kind)
		return
	}

	ok, reason, err := slot.Wait(ctx)
	if err != nil {
		writeServiceUnavailable(w, "timed out waiting for result")
		return
	}
	if !ok {
		writeServiceUnavailable(w, reason)
		return
	}
	writeSuccess(w, kind)
}
