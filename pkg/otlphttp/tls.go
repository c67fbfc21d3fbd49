package otlphttp

import (
	"crypto/tls"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TLSConfig configures the optional TLS acceptor. Either the PEM fields
// or the file-path fields must be set; file-backed certificates are
// polled for changes.
type TLSConfig struct {
	CertPEM, KeyPEM   string
	CertFile, KeyFile string
	ReloadInterval    time.Duration // default 30s when file-backed
}

// CertResolver holds the current certificate behind a lock-free atomic
// pointer, with a guarded background reload routine for file-backed
// credentials. GetCertificate is safe to call concurrently from many TLS
// handshake goroutines; it always returns the credential set at the
// start of the in-flight handshake even if a reload races in.
type CertResolver struct {
	current   atomic.Pointer[tls.Certificate]
	reloading atomic.Bool
	cfg       TLSConfig
	logger    *zap.Logger
	lastMod   time.Time
	stop      chan struct{}
}

// NewCertResolver loads the initial certificate (from PEM strings or
// files) and, for file-backed configs, starts a polling goroutine.
func NewCertResolver(cfg TLSConfig, logger *zap.Logger) (*CertResolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &CertResolver{cfg: cfg, logger: logger, stop: make(chan struct{})}

	cert, err := r.load()
	if err != nil {
		return nil, err
	}
	r.current.Store(cert)

	if cfg.CertFile != "" {
		if fi, err := os.Stat(cfg.CertFile); err == nil {
			r.lastMod = fi.ModTime()
		}
		interval := cfg.ReloadInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		go r.pollLoop(interval)
	}
	return r, nil
}

func (r *CertResolver) load() (*tls.Certificate, error) {
	var cert tls.Certificate
	var err error
	if r.cfg.CertFile != "" {
		cert, err = tls.LoadX509KeyPair(r.cfg.CertFile, r.cfg.KeyFile)
	} else {
		cert, err = tls.X509KeyPair([]byte(r.cfg.CertPEM), []byte(r.cfg.KeyPEM))
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *CertResolver) pollLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.maybeReload()
		case <-r.stop:
			return
		}
	}
}

func (r *CertResolver) maybeReload() {
	fi, err := os.Stat(r.cfg.CertFile)
	if err != nil {
		return
	}
	if !fi.ModTime().After(r.lastMod) {
		return
	}
	if !r.reloading.CompareAndSwap(false, true) {
		return
	}
	defer r.reloading.Store(false)

	cert, err := r.load()
	if err != nil {
		r.logger.Warn("tls certificate reload failed", zap.Error(err))
		return
	}
	r.current.Store(cert)
	r.lastMod = fi.ModTime()
	r.logger.Info("tls certificate reloaded")
}

// GetCertificate implements the tls.Config.GetCertificate hook.
func (r *CertResolver) GetCertificate(_ *tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.current.Load(), nil
}

// Close stops the background poller, if any.
func (r *CertResolver) Close() { close(r.stop) }
