package syslogcef

import (
	"github.com/open-telemetry/otap-go/pkg/parser/syslog"
	"github.com/open-telemetry/otap-go/pkg/pdata"
)

// Message is the Payload a syslogcef receiver emits: the raw bytes as
// received, plus whatever this package's parser recognized in them.
// Parsed is nil when recognition failed but the message was still
// forwarded (receivers never silently drop traffic they can frame).
type Message struct {
	Raw    []byte
	Parsed *syslog.ParsedMessage
}

func (Message) Signal() pdata.SignalKind { return pdata.SignalLogs }

// RawBytes satisfies pdata.RawBytesSource, letting raw-bytes-only sinks
// (pkg/exporter/fileexporter, pkg/exporter/segmentexporter) consume a
// Message exactly as they would a pdata.RawBytes.
func (m Message) RawBytes() []byte { return m.Raw }
