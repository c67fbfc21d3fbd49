package quiver

import "fmt"

// ErrInvalidSlot reports a Slot value outside the bundle's slot range.
type ErrInvalidSlot struct {
	Slot Slot
}

func (e *ErrInvalidSlot) Error() string {
	return fmt.Sprintf("quiver: slot %d exceeds MaxSlotsPerBundle", e.Slot)
}

// ErrLimitExceeded reports a hard segment limit being hit.
type ErrLimitExceeded struct {
	What  string
	Limit int
}

func (e *ErrLimitExceeded) Error() string {
	return fmt.Sprintf("quiver: %s limit of %d exceeded", e.What, e.Limit)
}

// ErrUnresolvedFlushCycle reports that Close ran the forced flush-ordering
// fixed point and streams still remained open; this indicates a cycle in
// the slot hierarchy, which childrenOf's construction should prevent.
type ErrUnresolvedFlushCycle struct {
	Remaining int
}

func (e *ErrUnresolvedFlushCycle) Error() string {
	return fmt.Sprintf("quiver: %d streams could not be closed by the flush-ordering fixed point", e.Remaining)
}

// ErrInvalidFooterSize reports a footer encoding whose size doesn't match
// FooterV1Size, which would desynchronize the trailer's fixed offsets.
type ErrInvalidFooterSize struct {
	Got int
}

func (e *ErrInvalidFooterSize) Error() string {
	return fmt.Sprintf("quiver: encoded footer is %d bytes, want %d", e.Got, FooterV1Size)
}

// ErrCorruptSegment reports a segment file that failed trailer, CRC, or
// bounds validation on read.
type ErrCorruptSegment struct {
	Reason string
}

func (e *ErrCorruptSegment) Error() string {
	return fmt.Sprintf("quiver: corrupt segment: %s", e.Reason)
}
