package otlphttp

import (
	"context"

	"github.com/open-telemetry/otap-go/pkg/pdata"
)

type slotResult struct {
	ok     bool
	reason string
}

// Slot is a single-use ACK/NACK waiter, registered as a pdata.Subscriber
// on the PData submitted through it. It fires its oneshot exactly once
// (Ack xor Nack), matching the pdata.Context contract.
type Slot struct {
	result chan slotResult
}

func (s *Slot) Ack(_ pdata.ID) {
	select {
	case s.result <- slotResult{ok: true}:
	default:
	}
}

func (s *Slot) Nack(_ pdata.ID, reason string) {
	select {
	case s.result <- slotResult{ok: false, reason: reason}:
	default:
	}
}

// Wait blocks for this slot's outcome, ctx cancellation (request
// timeout), or both.
func (s *Slot) Wait(ctx context.Context) (ok bool, reason string, err error) {
	select {
	case r := <-s.result:
		return r.ok, r.reason, nil
	case <-ctx.Done():
		return false, "", ctx.Err()
	}
}

// SlotTable is a fixed pool of reusable Slots, sized to the downstream
// channel's capacity — never more in-flight ACK waits than the channel
// could possibly be holding messages for.
type SlotTable struct {
	free chan *Slot
}

// NewSlotTable builds a table of n slots.
func NewSlotTable(n int) *SlotTable {
	t := &SlotTable{free: make(chan *Slot, n)}
	for i := 0; i < n; i++ {
		t.free <- &Slot{result: make(chan slotResult, 1)}
	}
	return t
}

// Acquire blocks until a slot is free or ctx is done.
func (t *SlotTable) Acquire(ctx context.Context) (*Slot, error) {
	select {
	case s := <-t.free:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns s to the free pool. Guaranteed to be called on every
// exit path (success, NACK, cancellation, timeout) by the HTTP handler.
func (t *SlotTable) Release(s *Slot) {
	select {
	case <-s.result:
	default:
	}
	t.free <- s
}
