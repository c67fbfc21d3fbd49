// Package otlpgrpcexporter implements a pipeline.Exporter that forwards
// ingested OTLP payloads to an upstream collector over gRPC, dialing
// through pkg/netproxy so HTTP_PROXY/HTTPS_PROXY/NO_PROXY apply to
// egress exactly as they do for any other outbound connection this
// process makes.
package otlpgrpcexporter

import "time"

// Config is the otlpgrpcexporter's decoded component configuration.
type Config struct {
	Endpoint string        `json:"endpoint"`
	Timeout  time.Duration `json:"timeout"`

	// Proxy overrides. Unset fields fall back to the process
	// environment (HTTP_PROXY/HTTPS_PROXY/ALL_PROXY/NO_PROXY) via
	// netproxy.Config.MergeWithEnv.
	HTTPProxy  *string `json:"http_proxy,omitempty"`
	HTTPSProxy *string `json:"https_proxy,omitempty"`
	AllProxy   *string `json:"all_proxy,omitempty"`
	NoProxy    *string `json:"no_proxy,omitempty"`
}

const defaultTimeout = 10 * time.Second

// DefaultConfig returns the zero-value-safe defaults applied when a
// field is unset.
func DefaultConfig() Config {
	return Config{Timeout: defaultTimeout}
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}
