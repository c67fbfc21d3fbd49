package quiver

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/ipc"
	"github.com/apache/arrow/go/v12/arrow/memory"

	"github.com/open-telemetry/otap-go/pkg/werror"
)

// SegmentReader parses a fully-written segment file: it validates the
// trailer and CRC up front, then parses the footer, stream directory, and
// bundle manifest on open so stream/chunk lookups are O(1) afterward.
type SegmentReader struct {
	data      []byte
	streams   map[StreamID]StreamMetadata
	bundles   map[BundleID]*ManifestEntry
	allocator memory.Allocator
}

// OpenSegment validates and indexes the full contents of a segment file.
// data must hold the entire file; SegmentReader never mutates it.
func OpenSegment(data []byte) (*SegmentReader, error) {
	if len(data) < TrailerSize {
		return nil, werror.Wrap(&ErrCorruptSegment{Reason: "file shorter than trailer"})
	}
	trailer := data[len(data)-TrailerSize:]
	footerSize := binary.LittleEndian.Uint32(trailer[0:4])
	magic := string(trailer[4:12])
	wantCRC := binary.LittleEndian.Uint32(trailer[12:16])
	if magic != SegmentMagic {
		return nil, werror.Wrap(&ErrCorruptSegment{Reason: "bad magic"})
	}
	if int(footerSize) != FooterV1Size {
		return nil, werror.Wrap(&ErrCorruptSegment{Reason: "unsupported footer size"})
	}
	if len(data) < TrailerSize+int(footerSize) {
		return nil, werror.Wrap(&ErrCorruptSegment{Reason: "file shorter than footer+trailer"})
	}

	footerStart := len(data) - TrailerSize - int(footerSize)
	footer := data[footerStart : footerStart+int(footerSize)]

	crcInput := make([]byte, 0, len(footer)+12)
	crcInput = append(crcInput, footer...)
	crcInput = append(crcInput, trailer[:12]...)
	if got := crc32.ChecksumIEEE(crcInput); got != wantCRC {
		return nil, werror.Wrap(&ErrCorruptSegment{Reason: "crc mismatch"})
	}

	fr := bytes.NewReader(footer)
	var version uint16
	var streamCount, bundleCount uint32
	var directoryOffset, manifestOffset uint64
	var directoryLength, manifestLength uint32
	for _, f := range []struct {
		v interface{}
	}{
		{&version}, {&streamCount}, {&bundleCount},
		{&directoryOffset}, {&directoryLength},
		{&manifestOffset}, {&manifestLength},
	} {
		if err := binary.Read(fr, binary.LittleEndian, f.v); err != nil {
			return nil, werror.Wrap(&ErrCorruptSegment{Reason: "truncated footer"})
		}
	}
	if version != SegmentVersion {
		return nil, werror.Wrap(&ErrCorruptSegment{Reason: "unsupported version"})
	}
	if streamCount > MaxStreamsPerSegment || bundleCount > MaxBundlesPerSegment {
		return nil, werror.Wrap(&ErrCorruptSegment{Reason: "declared counts exceed hard limits"})
	}

	if uint64(len(data)) < directoryOffset+uint64(directoryLength) {
		return nil, werror.Wrap(&ErrCorruptSegment{Reason: "directory out of bounds"})
	}
	dir := data[directoryOffset : directoryOffset+uint64(directoryLength)]
	streams, err := parseDirectory(dir, int(streamCount))
	if err != nil {
		return nil, err
	}

	if uint64(len(data)) < manifestOffset+uint64(manifestLength) {
		return nil, werror.Wrap(&ErrCorruptSegment{Reason: "manifest out of bounds"})
	}
	man := data[manifestOffset : manifestOffset+uint64(manifestLength)]
	bundles, err := parseManifest(man, int(bundleCount))
	if err != nil {
		return nil, err
	}

	return &SegmentReader{
		data:      data,
		streams:   streams,
		bundles:   bundles,
		allocator: memory.NewGoAllocator(),
	}, nil
}

const streamMetadataSize = 4 + 1 + 8 + 8 + 8 + 8 + 4 // 41 bytes

func parseDirectory(dir []byte, count int) (map[StreamID]StreamMetadata, error) {
	if len(dir) != count*streamMetadataSize {
		return nil, werror.Wrap(&ErrCorruptSegment{Reason: "directory length mismatch"})
	}
	out := make(map[StreamID]StreamMetadata, count)
	r := bytes.NewReader(dir)
	for i := 0; i < count; i++ {
		var sm StreamMetadata
		var id uint32
		var slot byte
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, werror.Wrap(&ErrCorruptSegment{Reason: "truncated directory entry"})
		}
		if err := binary.Read(r, binary.LittleEndian, &slot); err != nil {
			return nil, werror.Wrap(&ErrCorruptSegment{Reason: "truncated directory entry"})
		}
		sm.ID = StreamID(id)
		sm.Slot = Slot(slot)
		if err := binary.Read(r, binary.LittleEndian, &sm.SchemaFingerprint); err != nil {
			return nil, werror.Wrap(&ErrCorruptSegment{Reason: "truncated directory entry"})
		}
		if err := binary.Read(r, binary.LittleEndian, &sm.ByteOffset); err != nil {
			return nil, werror.Wrap(&ErrCorruptSegment{Reason: "truncated directory entry"})
		}
		if err := binary.Read(r, binary.LittleEndian, &sm.ByteLength); err != nil {
			return nil, werror.Wrap(&ErrCorruptSegment{Reason: "truncated directory entry"})
		}
		if err := binary.Read(r, binary.LittleEndian, &sm.RowCount); err != nil {
			return nil, werror.Wrap(&ErrCorruptSegment{Reason: "truncated directory entry"})
		}
		if err := binary.Read(r, binary.LittleEndian, &sm.ChunkCount); err != nil {
			return nil, werror.Wrap(&ErrCorruptSegment{Reason: "truncated directory entry"})
		}
		out[sm.ID] = sm
	}
	return out, nil
}

func parseManifest(man []byte, count int) (map[BundleID]*ManifestEntry, error) {
	out := make(map[BundleID]*ManifestEntry, count)
	r := bytes.NewReader(man)
	for i := 0; i < count; i++ {
		var bundle uint32
		var bitmap uint64
		if err := binary.Read(r, binary.LittleEndian, &bundle); err != nil {
			return nil, werror.Wrap(&ErrCorruptSegment{Reason: "truncated manifest entry"})
		}
		if err := binary.Read(r, binary.LittleEndian, &bitmap); err != nil {
			return nil, werror.Wrap(&ErrCorruptSegment{Reason: "truncated manifest entry"})
		}
		entry := &ManifestEntry{Bundle: BundleID(bundle), Slots: make(map[Slot]ChunkRef)}
		for slot := Slot(0); slot < MaxSlotsPerBundle; slot++ {
			if bitmap&(1<<uint(slot)) == 0 {
				continue
			}
			var streamID, chunk uint32
			if err := binary.Read(r, binary.LittleEndian, &streamID); err != nil {
				return nil, werror.Wrap(&ErrCorruptSegment{Reason: "truncated manifest slot ref"})
			}
			if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
				return nil, werror.Wrap(&ErrCorruptSegment{Reason: "truncated manifest slot ref"})
			}
			entry.Slots[slot] = ChunkRef{Stream: StreamID(streamID), Chunk: chunk}
		}
		out[entry.Bundle] = entry
	}
	return out, nil
}

// StreamCount returns the number of streams in the segment.
func (r *SegmentReader) StreamCount() int { return len(r.streams) }

// BundleCount returns the number of bundles in the segment.
func (r *SegmentReader) BundleCount() int { return len(r.bundles) }

// Bundle returns the manifest entry for the given bundle, if present.
func (r *SegmentReader) Bundle(id BundleID) (*ManifestEntry, bool) {
	e, ok := r.bundles[id]
	return e, ok
}

// StreamMetadata returns the directory entry for the given stream.
func (r *SegmentReader) StreamMetadata(id StreamID) (StreamMetadata, bool) {
	sm, ok := r.streams[id]
	return sm, ok
}

// ReadStream returns an Arrow IPC reader over every record batch
// (chunk) of the given stream, in write order.
func (r *SegmentReader) ReadStream(id StreamID) (*ipc.Reader, error) {
	sm, ok := r.streams[id]
	if !ok {
		return nil, werror.Wrap(&ErrCorruptSegment{Reason: "unknown stream id"})
	}
	if uint64(len(r.data)) < sm.ByteOffset+sm.ByteLength {
		return nil, werror.Wrap(&ErrCorruptSegment{Reason: "stream byte range out of bounds"})
	}
	section := r.data[sm.ByteOffset : sm.ByteOffset+sm.ByteLength]
	return ipc.NewReader(bytes.NewReader(section), ipc.WithAllocator(r.allocator))
}

// ReadChunk resolves a (bundle, slot) pair to the concrete Arrow record
// batch it refers to.
func (r *SegmentReader) ReadChunk(bundle BundleID, slot Slot) (arrow.Record, error) {
	entry, ok := r.bundles[bundle]
	if !ok {
		return nil, werror.Wrap(&ErrCorruptSegment{Reason: "unknown bundle id"})
	}
	ref, ok := entry.Slots[slot]
	if !ok {
		return nil, werror.Wrap(&ErrCorruptSegment{Reason: "slot not present in bundle"})
	}
	ipcr, err := r.ReadStream(ref.Stream)
	if err != nil {
		return nil, err
	}
	var rec arrow.Record
	for i := uint32(0); i <= ref.Chunk; i++ {
		if !ipcr.Next() {
			if err := ipcr.Err(); err != nil && err != io.EOF {
				return nil, werror.Wrap(err)
			}
			return nil, werror.Wrap(&ErrCorruptSegment{Reason: "chunk index beyond stream length"})
		}
		rec = ipcr.Record()
	}
	rec.Retain()
	return rec, nil
}
