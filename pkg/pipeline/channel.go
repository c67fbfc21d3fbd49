package pipeline

import (
	"context"

	"github.com/open-telemetry/otap-go/pkg/pdata"
)

// MinChannelSize and MaxChannelSize bound every channel capacity in a
// pipeline, per the configuration schema.
const (
	MinChannelSize = 1
	MaxChannelSize = 1000
)

// Channel is a bounded FIFO carrying pdata.Envelope between two
// components. Sends block when full (suspension, never drop).
type Channel struct {
	ch chan pdata.Envelope
}

// NewChannel builds a Channel with the given capacity, which must already
// be within [MinChannelSize, MaxChannelSize] — callers validate at config
// load time via Validate(), not here.
func NewChannel(capacity int) *Channel {
	return &Channel{ch: make(chan pdata.Envelope, capacity)}
}

// Send blocks until the envelope is accepted or ctx is done.
func (c *Channel) Send(ctx context.Context, e pdata.Envelope) error {
	select {
	case c.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend attempts a non-blocking send, reporting whether it succeeded.
func (c *Channel) TrySend(e pdata.Envelope) bool {
	select {
	case c.ch <- e:
		return true
	default:
		return false
	}
}

// Recv blocks until an envelope is available, the channel is closed, or
// ctx is done.
func (c *Channel) Recv(ctx context.Context) (pdata.Envelope, bool, error) {
	select {
	case e, ok := <-c.ch:
		return e, ok, nil
	case <-ctx.Done():
		return pdata.Envelope{}, false, ctx.Err()
	}
}

// TryRecv attempts a non-blocking receive.
func (c *Channel) TryRecv() (pdata.Envelope, bool) {
	select {
	case e, ok := <-c.ch:
		return e, ok
	default:
		return pdata.Envelope{}, false
	}
}

// Close closes the underlying channel. Only the single owning sender side
// of a graph edge may call this.
func (c *Channel) Close() { close(c.ch) }

// Len reports the number of envelopes currently buffered.
func (c *Channel) Len() int { return len(c.ch) }

// Cap reports the channel's configured capacity.
func (c *Channel) Cap() int { return cap(c.ch) }
