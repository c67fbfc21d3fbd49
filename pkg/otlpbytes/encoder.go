package otlpbytes

// placeholderLen is the fixed width of a reserved, back-patchable varint
// length prefix. Four bytes of 7 bits each encode lengths up to ~256MiB,
// comfortably larger than any single ResourceLogs/ScopeLogs envelope this
// encoder produces; protobuf permits non-minimal (padded) varints, which
// is what makes back-patching possible at all.
const placeholderLen = 4

func putTag(buf []byte, fieldNum int, wt WireType) []byte {
	return putVarint(buf, uint64(fieldNum)<<3|uint64(wt))
}

func putVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// reservePlaceholder appends placeholderLen bytes that decode to 0 and
// returns the offset of the first reserved byte, to be patched later by
// patchPlaceholder.
func reservePlaceholder(buf []byte) ([]byte, int) {
	pos := len(buf)
	for i := 0; i < placeholderLen; i++ {
		buf = append(buf, 0x80)
	}
	buf[len(buf)-1] = 0x00
	return buf, pos
}

// patchPlaceholder overwrites the placeholderLen bytes at pos with
// length encoded as a non-minimal 4-byte varint.
func patchPlaceholder(buf []byte, pos int, length int) {
	v := uint64(length)
	for i := 0; i < placeholderLen; i++ {
		b := byte(v) | 0x80
		if i == placeholderLen-1 {
			b = byte(v)
		}
		buf[pos+i] = b
		v >>= 7
	}
}

// encoderState is the stateful OTLP log encoder's state machine, per
// spec.md §4.2's Idle/ResourceOpen/ScopeOpen model. ResourceOpen is
// reachable only as a transient intra-call state: Append always opens
// both the ResourceLogs and ScopeLogs envelope together on the Idle
// transition, so no externally observable state ever stops there.
type encoderState int

const (
	stateIdle encoderState = iota
	stateResourceOpen
	stateScopeOpen
)

// Encoder streams LogRecord bytes into a single OTLP ExportLogsServiceRequest-
// shaped buffer (one ResourceLogs, one ScopeLogs per contiguous run of a
// scope id), opening and closing envelopes lazily and reusing its backing
// array across Flush calls.
type Encoder struct {
	buf   []byte
	state encoderState

	resourcePlaceholder int
	scopePlaceholder     int
	currentScopeID       string
}

// NewEncoder builds an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 4096)}
}

// Append adds one already-serialized LogRecord to the stream under the
// given scope identifier. Consecutive records under the same scopeID
// share one ScopeLogs envelope; a change in scopeID closes the previous
// envelope (patching its length) and opens a new one.
func (e *Encoder) Append(scopeID string, recordBytes []byte) {
	switch e.state {
	case stateIdle:
		e.openResource()
		e.openScope(scopeID)
	case stateScopeOpen:
		if scopeID != e.currentScopeID {
			e.closeScope()
			e.openScope(scopeID)
		}
	}
	e.writeRecord(recordBytes)
	e.currentScopeID = scopeID
	e.state = stateScopeOpen
}

func (e *Encoder) openResource() {
	e.buf = putTag(e.buf, FieldLogsDataResourceLogs, WireLen)
	e.buf, e.resourcePlaceholder = reservePlaceholder(e.buf)
	e.state = stateResourceOpen
}

func (e *Encoder) openScope(scopeID string) {
	e.buf = putTag(e.buf, FieldResourceLogsScopeLogs, WireLen)
	e.buf, e.scopePlaceholder = reservePlaceholder(e.buf)
	e.state = stateScopeOpen
}

func (e *Encoder) writeRecord(recordBytes []byte) {
	e.buf = putTag(e.buf, FieldScopeLogsLogRecords, WireLen)
	e.buf = putVarint(e.buf, uint64(len(recordBytes)))
	e.buf = append(e.buf, recordBytes...)
}

func (e *Encoder) closeScope() {
	length := len(e.buf) - (e.scopePlaceholder + placeholderLen)
	patchPlaceholder(e.buf, e.scopePlaceholder, length)
}

func (e *Encoder) closeResource() {
	length := len(e.buf) - (e.resourcePlaceholder + placeholderLen)
	patchPlaceholder(e.buf, e.resourcePlaceholder, length)
}

// Flush closes any open envelopes, returns a copy of the accumulated
// bytes, and resets the encoder to Idle while retaining its buffer
// capacity for reuse.
func (e *Encoder) Flush() []byte {
	if e.state == stateScopeOpen {
		e.closeScope()
		e.closeResource()
	}
	out := make([]byte, len(e.buf))
	copy(out, e.buf)
	e.buf = e.buf[:0]
	e.state = stateIdle
	e.currentScopeID = ""
	return out
}
