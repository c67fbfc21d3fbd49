// Package pdata defines the unit of data that flows through a pipeline
// graph: PData envelopes and the ControlMsg sum type that shares their
// channels.
package pdata

import (
	"sync"

	"github.com/google/uuid"
)

// SignalKind tags the OTLP signal carried by a payload.
type SignalKind int

const (
	SignalLogs SignalKind = iota
	SignalMetrics
	SignalTraces
)

func (k SignalKind) String() string {
	switch k {
	case SignalLogs:
		return "logs"
	case SignalMetrics:
		return "metrics"
	case SignalTraces:
		return "traces"
	default:
		return "unknown"
	}
}

// Payload is carried by a PData. It is satisfied by the lazily-decoded
// byte view (pkg/otlpbytes), by a fully materialized form, or by any
// intermediate typed representation a processor produces.
type Payload interface {
	Signal() SignalKind
}

// RawBytes is the simplest Payload: undecoded OTLP protobuf bytes tagged
// with their signal kind. Processors that only need to route or count
// messages never need to touch pkg/otlpbytes at all.
type RawBytes struct {
	Kind SignalKind
	Data []byte
}

func (r RawBytes) Signal() SignalKind { return r.Kind }

// RawBytesSource is implemented by any Payload reducible to a flat byte
// slice. Sinks that don't care about a payload's structure (a raw-line
// file exporter, a single-column columnar blob) accept this instead of
// requiring the concrete RawBytes type, so a receiver's own richer
// Payload (carrying both the wire bytes and whatever it parsed from
// them) can still flow into them unchanged.
type RawBytesSource interface {
	RawBytes() []byte
}

func (r RawBytes) RawBytes() []byte { return r.Data }

// ID identifies a PData for ACK/NACK correlation.
type ID uint64

// Subscriber receives the terminal outcome of a PData it subscribed to.
// Exactly one of Ack/Nack fires, never both, and never more than once.
type Subscriber interface {
	Ack(id ID)
	Nack(id ID, reason string)
}

// Context is the small per-message routing map carried alongside a
// payload: which subscribers are interested in this message's outcome.
// Cardinality is bounded by the number of components that registered
// interest, not by message volume.
type Context struct {
	mu          sync.Mutex
	subscribers []Subscriber
	fired       bool
}

// Subscribe registers s to receive this PData's terminal ACK or NACK.
func (c *Context) Subscribe(s Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, s)
}

// Fire delivers either an Ack (ok) or a Nack (!ok, with reason) to every
// registered subscriber exactly once. Subsequent calls are no-ops.
func (c *Context) Fire(id ID, ok bool, reason string) {
	c.mu.Lock()
	if c.fired {
		c.mu.Unlock()
		return
	}
	c.fired = true
	subs := c.subscribers
	c.mu.Unlock()

	for _, s := range subs {
		if ok {
			s.Ack(id)
		} else {
			s.Nack(id, reason)
		}
	}
}

// PData is the envelope that travels through a pipeline graph.
type PData struct {
	ID      ID
	Payload Payload
	Context *Context
}

// NewPData builds a PData with a fresh random-sourced id and an empty
// subscription context. Components that need deterministic ids for
// retry/correlation bookkeeping (e.g. pkg/retryprocessor) mint their own
// sequence instead of relying on this one.
func NewPData(payload Payload) PData {
	return PData{
		ID:      ID(uuid.New().ID()),
		Payload: payload,
		Context: &Context{},
	}
}

// ControlMsg is the sum type of non-data messages sharing a channel with
// PData. Exactly one field is meaningful per instance; Kind disambiguates.
type ControlMsgKind int

const (
	ControlAck ControlMsgKind = iota
	ControlNack
	ControlTimerTick
	ControlConfig
	ControlShutdown
)

type ControlMsg struct {
	Kind ControlMsgKind

	// ControlAck / ControlNack
	AckID      ID
	NackReason string

	// ControlConfig
	ConfigPayload []byte

	// ControlShutdown
	ShutdownDeadlineMillis int64
	ShutdownReason         string
}

func Ack(id ID) ControlMsg {
	return ControlMsg{Kind: ControlAck, AckID: id}
}

func Nack(id ID, reason string) ControlMsg {
	return ControlMsg{Kind: ControlNack, AckID: id, NackReason: reason}
}

func TimerTick() ControlMsg {
	return ControlMsg{Kind: ControlTimerTick}
}

func Config(payload []byte) ControlMsg {
	return ControlMsg{Kind: ControlConfig, ConfigPayload: payload}
}

func Shutdown(deadlineMillis int64, reason string) ControlMsg {
	return ControlMsg{Kind: ControlShutdown, ShutdownDeadlineMillis: deadlineMillis, ShutdownReason: reason}
}

// Envelope is the concrete union carried by a pipeline Channel: either a
// PData or a ControlMsg, never both.
type Envelope struct {
	Data    *PData
	Control *ControlMsg
}

func DataEnvelope(p PData) Envelope {
	return Envelope{Data: &p}
}

func ControlEnvelope(c ControlMsg) Envelope {
	return Envelope{Control: &c}
}

func (e Envelope) IsControl() bool { return e.Control != nil }
