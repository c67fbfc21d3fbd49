package syslogcef

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/open-telemetry/otap-go/pkg/parser/syslog"
	"github.com/open-telemetry/otap-go/pkg/pdata"
	"github.com/open-telemetry/otap-go/pkg/pipeline"
	"github.com/open-telemetry/otap-go/pkg/telemetry"
)

// Receiver terminates the configured TCP and/or UDP listeners and feeds
// every framed message through pkg/parser/syslog before emitting it.
type Receiver struct {
	cfg    Config
	logger *zap.Logger
	name   string

	mu         sync.Mutex
	tcpLn      net.Listener
	udpConn    net.PacketConn
	wg         sync.WaitGroup
	shutdownCh chan struct{}
}

// New constructs a Receiver. logger may be nil.
func New(name string, cfg Config, logger *zap.Logger) *Receiver {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Receiver{cfg: cfg, logger: logger, name: name, shutdownCh: make(chan struct{})}
}

// Factory adapts New to pipeline.ReceiverFactory. logger is always nil
// here, so a receiver built through Factory logs to a no-op logger.
func Factory(name string, cfgAny any) (pipeline.Receiver, error) {
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

// Start binds the configured listeners and returns once they are bound.
// Accept and read loops run in background goroutines until Shutdown.
func (r *Receiver) Start(ctx context.Context, effects pipeline.EffectHandler) error {
	if r.cfg.TCPAddr != "" {
		ln, err := net.Listen("tcp", r.cfg.TCPAddr)
		if err != nil {
			return err
		}
		r.tcpLn = ln
		r.wg.Add(1)
		go r.acceptLoop(ctx, effects)
	}

	if r.cfg.UDPAddr != "" {
		conn, err := net.ListenPacket("udp", r.cfg.UDPAddr)
		if err != nil {
			if r.tcpLn != nil {
				r.tcpLn.Close()
			}
			return err
		}
		r.udpConn = conn
		r.wg.Add(1)
		go r.udpLoop(ctx, effects)
	}

	return nil
}

// Shutdown closes the listeners, which unblocks the accept/read loops,
// then waits for them to return.
func (r *Receiver) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	select {
	case <-r.shutdownCh:
	default:
		close(r.shutdownCh)
	}
	if r.tcpLn != nil {
		r.tcpLn.Close()
	}
	if r.udpConn != nil {
		r.udpConn.Close()
	}
	r.mu.Unlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ShutdownGrace)
		defer cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Receiver) acceptLoop(ctx context.Context, effects pipeline.EffectHandler) {
	defer r.wg.Done()
	for {
		conn, err := r.tcpLn.Accept()
		if err != nil {
			select {
			case <-r.shutdownCh:
				return
			default:
				r.logger.Warn("syslogcef: tcp accept failed", zap.Error(err))
				return
			}
		}
		r.wg.Add(1)
		go r.handleConn(ctx, conn, effects)
	}
}

func (r *Receiver) handleConn(ctx context.Context, conn net.Conn, effects pipeline.EffectHandler) {
	defer r.wg.Done()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), r.cfg.MaxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg := make([]byte, len(line))
		copy(msg, line)
		r.emit(ctx, msg, effects)
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-r.shutdownCh:
		default:
			r.logger.Warn("syslogcef: tcp read failed", zap.Error(err))
		}
	}
}

func (r *Receiver) udpLoop(ctx context.Context, effects pipeline.EffectHandler) {
	defer r.wg.Done()
	buf := make([]byte, r.cfg.MaxDatagramSize)
	for {
		n, _, err := r.udpConn.ReadFrom(buf)
		if err != nil {
			select {
			case <-r.shutdownCh:
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				r.logger.Warn("syslogcef: udp read failed", zap.Error(err))
				return
			}
		}
		if n == 0 {
			continue
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		r.emit(ctx, datagram, effects)
	}
}

// emit parses raw and sends it downstream regardless of parse outcome:
// framing succeeded, so the message is forwarded either way, with
// Parsed left nil when recognition failed.
func (r *Receiver) emit(ctx context.Context, raw []byte, effects pipeline.EffectHandler) {
	parsed, err := syslog.Parse(raw)
	if err != nil {
		telemetry.Default().IncCounter(telemetry.MetricReceiverRejected, 1)
		r.logger.Debug("syslogcef: parse failed", zap.Error(err))
	} else {
		telemetry.Default().IncCounter(telemetry.MetricReceiverAccepted, 1)
	}

	pd := pdata.NewPData(Message{Raw: raw, Parsed: parsed})
	if err := effects.Send(ctx, pdata.DataEnvelope(pd)); err != nil {
		r.logger.Warn("syslogcef: downstream send failed", zap.Error(err))
	}
}
