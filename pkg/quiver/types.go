// Package quiver implements the columnar segment writer and reader:
// Arrow-IPC-backed streams assembled into a single self-describing file
// with a directory, bundle manifest, versioned footer, and a fixed-size
// trailer carrying an integrity checksum.
package quiver

// Segment file layout constants, bit-exact with the original format.
const (
	SegmentMagic        = "QUIVER\x00S"
	SegmentVersion       = 1
	TrailerSize          = 16 // footer_size(4) + magic(8) + crc32(4)
	FooterV1Size         = 34 // version(2)+stream_count(4)+bundle_count(4)+directory_offset(8)+directory_length(4)+manifest_offset(8)+manifest_length(4)
	MaxStreamsPerSegment = 100_000
	MaxBundlesPerSegment = 10_000_000
	MaxSlotsPerBundle    = 64
	MaxDictsPerStream    = 10_000
	MaxChunksPerStream   = 10_000_000
)

// StreamID identifies one (slot, schema_fingerprint) stream within a
// segment.
type StreamID uint32

// Slot is a fixed small-integer identifier for a logical sub-table.
type Slot uint8

const (
	SlotLogs Slot = iota
	SlotLogAttrs
	SlotResourceAttrs
	SlotScopeAttrs
	SlotTraces
	SlotSpans
	SlotSpanAttrs
	SlotSpanEvents
	SlotSpanLinks
	SlotMetrics
	SlotMetricAttrs
	SlotDataPoints
	SlotDataPointAttrs
)

// parentSlot describes the slot hierarchy the flush-ordering invariant
// enforces: a parent's stream is never closed before every child stream
// sharing the same bundle.
var parentSlot = map[Slot]Slot{
	SlotLogAttrs:       SlotLogs,
	SlotResourceAttrs:  SlotLogs,
	SlotScopeAttrs:     SlotLogs,
	SlotSpans:          SlotTraces,
	SlotSpanAttrs:      SlotSpans,
	SlotSpanEvents:     SlotSpans,
	SlotSpanLinks:      SlotSpans,
	SlotDataPoints:     SlotMetrics,
	SlotDataPointAttrs: SlotDataPoints,
	SlotMetricAttrs:    SlotMetrics,
}

func childrenOf(s Slot) []Slot {
	var out []Slot
	for child, parent := range parentSlot {
		if parent == s {
			out = append(out, child)
		}
	}
	return out
}

// StreamKey identifies a stream by its logical table and Arrow schema
// shape.
type StreamKey struct {
	Slot              Slot
	SchemaFingerprint uint64
}

// StreamMetadata is one stream directory entry, written bottom-up after
// all stream bytes.
type StreamMetadata struct {
	ID                StreamID
	Slot              Slot
	SchemaFingerprint uint64
	ByteOffset        uint64
	ByteLength        uint64
	RowCount          uint64
	ChunkCount        uint32
}

// BundleID identifies one application-level ingested unit within a
// segment.
type BundleID uint32

// ManifestEntry is a single bundle's slot -> (stream, chunk) mapping.
type ManifestEntry struct {
	Bundle BundleID
	Slots  map[Slot]ChunkRef
}

// ChunkRef locates one columnar batch within a stream.
type ChunkRef struct {
	Stream StreamID
	Chunk  uint32
}
