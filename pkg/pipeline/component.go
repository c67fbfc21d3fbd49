package pipeline

import (
	"context"

	"github.com/open-telemetry/otap-go/pkg/pdata"
)

// EffectHandler is passed to a Processor's Process call; it is the only
// way a component may emit data downstream or read its own identity.
// Narrowing the interface this way is the engine's one form of dynamic
// dispatch: components never reflect on each other's concrete types.
type EffectHandler interface {
	// Send enqueues e on this component's single configured downstream
	// channel, blocking (suspending) if it is full.
	Send(ctx context.Context, e pdata.Envelope) error
	// ComponentName returns this component's `type/instance` name.
	ComponentName() string
}

// Receiver accepts data from outside the process and pushes PData onto
// its output channel. Start is expected to return once listening sockets
// are bound; it must not block the caller indefinitely.
type Receiver interface {
	Start(ctx context.Context, effects EffectHandler) error
	Shutdown(ctx context.Context) error
}

// Processor consumes one envelope at a time and optionally emits zero or
// more envelopes downstream via effects. It MUST suspend only at I/O
// points (channel send/recv, timers); it must never block the scheduler.
type Processor interface {
	Process(ctx context.Context, e pdata.Envelope, effects EffectHandler) error
	Shutdown(ctx context.Context) error
}

// Exporter sinks data out of the process. It reports outcome via the
// envelope's pdata.Context (Ack/Nack), not via its return value; a
// non-nil error here is a component-level failure distinct from the
// per-message outcome.
type Exporter interface {
	Export(ctx context.Context, e pdata.Envelope) error
	Shutdown(ctx context.Context) error
}

// ReceiverFactory constructs a Receiver from a decoded configuration
// value. name is the full `type/instance` component name.
type ReceiverFactory func(name string, cfg any) (Receiver, error)

// ProcessorFactory constructs a Processor.
type ProcessorFactory func(name string, cfg any) (Processor, error)

// ExporterFactory constructs an Exporter.
type ExporterFactory func(name string, cfg any) (Exporter, error)
