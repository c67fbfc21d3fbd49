// Package otlpgrpc implements the OTLP/gRPC intake path: a grpc.Server
// exposing the standard Logs/Metrics/Trace collector services, handing
// each request's raw wire bytes to the pipeline as a PData.
package otlpgrpc

import "time"

// Config configures one OTLP/gRPC intake server.
type Config struct {
	Addr string `json:"addr"`

	MaxRecvMsgSize int `json:"max_recv_msg_size"`

	// WaitForResult, if true, blocks the Export RPC until the pipeline
	// has ACKed or NACKed the submitted PData, returning a gRPC error on
	// NACK or RequestTimeout expiry instead of acking immediately on
	// enqueue.
	WaitForResult bool `json:"wait_for_result"`

	RequestTimeout            time.Duration `json:"request_timeout"`
	DownstreamChannelCapacity int           `json:"downstream_channel_capacity"`
}

const (
	defaultMaxRecvMsgSize  = 16 * 1024 * 1024
	defaultRequestTimeout  = 30 * time.Second
	defaultChannelCapacity = 64
)

// DefaultConfig returns the zero-value-safe defaults applied to an unset
// Config field.
func DefaultConfig() Config {
	return Config{
		MaxRecvMsgSize:            defaultMaxRecvMsgSize,
		RequestTimeout:            defaultRequestTimeout,
		DownstreamChannelCapacity: defaultChannelCapacity,
	}
}

func (c *Config) setDefaults() {
	if c.MaxRecvMsgSize <= 0 {
		c.MaxRecvMsgSize = defaultMaxRecvMsgSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.DownstreamChannelCapacity <= 0 {
		c.DownstreamChannelCapacity = defaultChannelCapacity
	}
}
