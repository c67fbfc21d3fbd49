// Package syslogcef implements a pipeline.Receiver that terminates TCP
// (line-delimited) and UDP (datagram-delimited) syslog/CEF intake,
// recognizes RFC 5424, RFC 3164, and bare or embedded CEF messages via
// pkg/parser/syslog, and emits one PData per message.
package syslogcef

import "time"

// Config configures one syslogcef receiver instance. Either address may
// be left empty to disable that transport.
type Config struct {
	TCPAddr string `json:"tcp_addr"`
	UDPAddr string `json:"udp_addr"`

	// MaxLineSize bounds a single TCP-framed message, guarding against an
	// unbounded line filling memory before a '\n' ever arrives.
	MaxLineSize int `json:"max_line_size"`

	// MaxDatagramSize bounds a single UDP read; datagrams larger than
	// this are truncated by the kernel before they reach us, so this
	// only needs to cover realistic syslog/CEF payload sizes.
	MaxDatagramSize int `json:"max_datagram_size"`

	// ShutdownGrace bounds how long Shutdown waits for in-flight
	// accept/read loops to notice the closed listeners and return.
	ShutdownGrace time.Duration `json:"shutdown_grace"`
}

const (
	defaultMaxLineSize     = 64 * 1024
	defaultMaxDatagramSize = 64 * 1024
	defaultShutdownGrace   = 5 * time.Second
)

// DefaultConfig returns the zero-value-safe defaults applied to an unset
// Config field.
func DefaultConfig() Config {
	return Config{
		MaxLineSize:     defaultMaxLineSize,
		MaxDatagramSize: defaultMaxDatagramSize,
		ShutdownGrace:   defaultShutdownGrace,
	}
}

func (c *Config) setDefaults() {
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = defaultMaxLineSize
	}
	if c.MaxDatagramSize <= 0 {
		c.MaxDatagramSize = defaultMaxDatagramSize
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = defaultShutdownGrace
	}
}
