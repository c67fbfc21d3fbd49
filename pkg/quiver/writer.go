package quiver

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"sort"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/ipc"

	"github.com/open-telemetry/otap-go/pkg/werror"
)

// DefaultTargetRowsPerFile is the row count at which a stream
// auto-flushes, absent an explicit override.
const DefaultTargetRowsPerFile = 10_000

type openStream struct {
	key         StreamKey
	id          StreamID
	schema      *arrow.Schema
	buf         bytes.Buffer
	ipcw        *ipc.Writer
	rowCount    uint64
	chunkCount  uint32
	readyToClose bool
}

// SegmentWriter assembles bundles of Arrow records into streams and
// finalizes them into a single self-describing segment file written to
// dst. It enforces the hard limits from spec.md §4.4 and the
// child-before-parent flush ordering invariant.
type SegmentWriter struct {
	dst          io.Writer
	targetRows   uint64
	offset       uint64
	nextStreamID StreamID
	open         map[StreamKey]*openStream
	closed       []StreamMetadata
	manifest     map[BundleID]*ManifestEntry
	bundleOrder  []BundleID
	streamCount  int
}

// NewSegmentWriter builds a SegmentWriter that streams output to dst as
// soon as each stream's flush-ordering dependencies are satisfied.
// targetRowsPerFile <= 0 uses DefaultTargetRowsPerFile.
func NewSegmentWriter(dst io.Writer, targetRowsPerFile int) *SegmentWriter {
	if targetRowsPerFile <= 0 {
		targetRowsPerFile = DefaultTargetRowsPerFile
	}
	return &SegmentWriter{
		dst:        dst,
		targetRows: uint64(targetRowsPerFile),
		open:       make(map[StreamKey]*openStream),
		manifest:   make(map[BundleID]*ManifestEntry),
	}
}

// WriteChunk appends one Arrow record batch as a chunk in the stream for
// (slot, record.Schema()), recording it in bundle's manifest entry.
func (w *SegmentWriter) WriteChunk(bundle BundleID, slot Slot, record arrow.Record) error {
	if slot >= MaxSlotsPerBundle {
		return werror.Wrap(&ErrInvalidSlot{Slot: slot})
	}
	fp := SchemaFingerprint(record.Schema())
	key := StreamKey{Slot: slot, SchemaFingerprint: fp}

	st, ok := w.open[key]
	if !ok {
		if w.streamCount >= MaxStreamsPerSegment {
			return werror.Wrap(&ErrLimitExceeded{What: "streams", Limit: MaxStreamsPerSegment})
		}
		st = &openStream{key: key, id: w.nextStreamID, schema: record.Schema()}
		w.nextStreamID++
		w.streamCount++
		w.open[key] = st
	}
	if st.chunkCount >= MaxChunksPerStream {
		return werror.Wrap(&ErrLimitExceeded{What: "chunks per stream", Limit: MaxChunksPerStream})
	}
	if st.ipcw == nil {
		ipcw, err := ipc.NewWriter(&st.buf, ipc.WithSchema(st.schema))
		if err != nil {
			return werror.Wrap(err)
		}
		st.ipcw = ipcw
	}
	if err := st.ipcw.Write(record); err != nil {
		return werror.Wrap(err)
	}
	chunkIdx := st.chunkCount
	st.rowCount += uint64(record.NumRows())
	st.chunkCount++

	entry, ok := w.manifest[bundle]
	if !ok {
		if len(w.manifest) >= MaxBundlesPerSegment {
			return werror.Wrap(&ErrLimitExceeded{What: "bundles", Limit: MaxBundlesPerSegment})
		}
		entry = &ManifestEntry{Bundle: bundle, Slots: make(map[Slot]ChunkRef)}
		w.manifest[bundle] = entry
		w.bundleOrder = append(w.bundleOrder, bundle)
	}
	entry.Slots[slot] = ChunkRef{Stream: st.id, Chunk: chunkIdx}

	if st.rowCount >= w.targetRows {
		st.readyToClose = true
		return w.runFlushCycle(false)
	}
	return nil
}

// Flush runs the flush-ordering fixed point over every stream marked
// ready, closing whatever the dependency order currently allows.
func (w *SegmentWriter) Flush() error {
	return w.runFlushCycle(false)
}

// runFlushCycle repeatedly closes streams eligible under the
// child-before-parent rule: a stream closes only once every currently
// open stream for a child slot has already closed. When forceAll is set
// (explicit shutdown), every open stream is treated as ready.
func (w *SegmentWriter) runFlushCycle(forceAll bool) error {
	progressed := true
	for progressed {
		progressed = false
		for key, st := range w.open {
			if !forceAll && !st.readyToClose {
				continue
			}
			if w.hasOpenChild(st.key.Slot) {
				continue
			}
			if err := w.closeStream(st); err != nil {
				return err
			}
			delete(w.open, key)
			progressed = true
		}
	}
	return nil
}

func (w *SegmentWriter) hasOpenChild(slot Slot) bool {
	for _, child := range childrenOf(slot) {
		for k := range w.open {
			if k.Slot == child {
				return true
			}
		}
	}
	return false
}

func (w *SegmentWriter) closeStream(st *openStream) error {
	if st.ipcw != nil {
		if err := st.ipcw.Close(); err != nil {
			return werror.Wrap(err)
		}
	}
	n, err := w.dst.Write(st.buf.Bytes())
	if err != nil {
		return werror.Wrap(err)
	}
	w.closed = append(w.closed, StreamMetadata{
		ID:                st.id,
		Slot:              st.key.Slot,
		SchemaFingerprint: st.key.SchemaFingerprint,
		ByteOffset:        w.offset,
		ByteLength:        uint64(n),
		RowCount:          st.rowCount,
		ChunkCount:        st.chunkCount,
	})
	w.offset += uint64(n)
	return nil
}

// Close finalizes the segment: force-flushes every remaining stream,
// then writes the stream directory, batch manifest, footer, and trailer.
func (w *SegmentWriter) Close() error {
	if err := w.runFlushCycle(true); err != nil {
		return err
	}
	if len(w.open) != 0 {
		return werror.Wrap(&ErrUnresolvedFlushCycle{Remaining: len(w.open)})
	}

	sort.Slice(w.closed, func(i, j int) bool { return w.closed[i].ID < w.closed[j].ID })

	var dir bytes.Buffer
	for _, sm := range w.closed {
		writeStreamMetadata(&dir, sm)
	}
	directoryOffset := w.offset
	if _, err := w.dst.Write(dir.Bytes()); err != nil {
		return werror.Wrap(err)
	}
	w.offset += uint64(dir.Len())

	sort.Slice(w.bundleOrder, func(i, j int) bool { return w.bundleOrder[i] < w.bundleOrder[j] })
	var man bytes.Buffer
	for _, b := range w.bundleOrder {
		writeManifestEntry(&man, w.manifest[b])
	}
	manifestOffset := w.offset
	if _, err := w.dst.Write(man.Bytes()); err != nil {
		return werror.Wrap(err)
	}
	w.offset += uint64(man.Len())

	var footer bytes.Buffer
	binary.Write(&footer, binary.LittleEndian, uint16(SegmentVersion))
	binary.Write(&footer, binary.LittleEndian, uint32(len(w.closed)))
	binary.Write(&footer, binary.LittleEndian, uint32(len(w.bundleOrder)))
	binary.Write(&footer, binary.LittleEndian, directoryOffset)
	binary.Write(&footer, binary.LittleEndian, uint32(dir.Len()))
	binary.Write(&footer, binary.LittleEndian, manifestOffset)
	binary.Write(&footer, binary.LittleEndian, uint32(man.Len()))
	if footer.Len() != FooterV1Size {
		return werror.Wrap(&ErrInvalidFooterSize{Got: footer.Len()})
	}
	if _, err := w.dst.Write(footer.Bytes()); err != nil {
		return werror.Wrap(err)
	}

	var trailerHead bytes.Buffer
	binary.Write(&trailerHead, binary.LittleEndian, uint32(footer.Len()))
	trailerHead.WriteString(SegmentMagic)

	crcInput := append(append([]byte{}, footer.Bytes()...), trailerHead.Bytes()...)
	crc := crc32.ChecksumIEEE(crcInput)

	trailer := trailerHead.Bytes()
	trailer = binary.LittleEndian.AppendUint32(trailer, crc)
	if _, err := w.dst.Write(trailer); err != nil {
		return werror.Wrap(err)
	}
	return nil
}

func writeStreamMetadata(w *bytes.Buffer, sm StreamMetadata) {
	binary.Write(w, binary.LittleEndian, uint32(sm.ID))
	w.WriteByte(byte(sm.Slot))
	binary.Write(w, binary.LittleEndian, sm.SchemaFingerprint)
	binary.Write(w, binary.LittleEndian, sm.ByteOffset)
	binary.Write(w, binary.LittleEndian, sm.ByteLength)
	binary.Write(w, binary.LittleEndian, sm.RowCount)
	binary.Write(w, binary.LittleEndian, sm.ChunkCount)
}

func writeManifestEntry(w *bytes.Buffer, e *ManifestEntry) {
	binary.Write(w, binary.LittleEndian, uint32(e.Bundle))
	var bitmap uint64
	for slot := range e.Slots {
		bitmap |= 1 << uint(slot)
	}
	binary.Write(w, binary.LittleEndian, bitmap)
	for slot := Slot(0); slot < MaxSlotsPerBundle; slot++ {
		ref, ok := e.Slots[slot]
		if !ok {
			continue
		}
		binary.Write(w, binary.LittleEndian, uint32(ref.Stream))
		binary.Write(w, binary.LittleEndian, ref.Chunk)
	}
}
