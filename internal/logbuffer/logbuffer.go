// Package logbuffer implements the term-partitioned shared-memory stream
// that backs every publication and image: three term partitions plus a
// metadata region, atomic fetch-add append, PAD-frame term rotation, and a
// scanner for sequential read. It generalizes a per-connection outbound-
// queue/read-loop model into the lock-free, shared-memory semantics the
// driver's agents require: multiple writers never coordinate except
// through the atomic tail counter, and readers observe a frame only after
// its length is published with release ordering.
package logbuffer

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/xid"

	protoerr "github.com/alxayo/mediadriver/internal/errors"
	"github.com/alxayo/mediadriver/internal/wire"
)

const (
	// PartitionCount is the fixed number of term partitions per log buffer.
	PartitionCount = 3

	// MinTermLength and MaxTermLength bound the configurable term length.
	MinTermLength = 64 * 1024
	MaxTermLength = 1 << 30

	// MetadataLength is the size of the metadata region appended after the
	// three term partitions.
	MetadataLength = 4096
)

// Metadata field offsets within the metadata region, all accessed with
// atomic load/store for cross-process visibility.
const (
	offsetTailCounter0 = 0  // int64 per partition, 3 of them
	offsetTailCounter1 = 8
	offsetTailCounter2 = 16
	offsetActiveTermCount = 24 // int32: term rotation count; modulo 3 it is the active partition index
	offsetInitialTermID   = 28 // int32
	offsetTermLength      = 32 // int32
	offsetMTULength       = 36 // int32
	offsetCorrelationID   = 40 // int64: publication registration id
	offsetEndOfStreamPos  = 48 // int64: -1 until EOS recorded
	offsetIsConnected     = 56 // int32: 0/1
)

// ValidateTermLength checks the term length is a power of two within bounds.
func ValidateTermLength(termLength int32) error {
	if termLength < MinTermLength || termLength > MaxTermLength {
		return protoerr.NewConfigurationError("logbuffer.term_length",
			fmt.Errorf("term length %d outside [%d,%d]", termLength, MinTermLength, MaxTermLength))
	}
	if termLength&(termLength-1) != 0 {
		return protoerr.NewConfigurationError("logbuffer.term_length",
			fmt.Errorf("term length %d is not a power of two", termLength))
	}
	return nil
}

// TotalLength returns the size, in bytes, of the backing file/mapping for a
// log buffer with the given term length.
func TotalLength(termLength int32) int64 {
	return int64(termLength)*PartitionCount + MetadataLength
}

// AppendResult is the outcome of a claim/append call, mirroring the
// back-pressure / ADMIN_ACTION / CLOSED / MAX_POSITION_EXCEEDED
// outcomes plus the ordinary success position.
type AppendResult int64

const (
	ResultBackPressured      AppendResult = -1
	ResultAdminAction        AppendResult = -2
	ResultClosed             AppendResult = -3
	ResultMaxPositionExceeded AppendResult = -4
)

func (r AppendResult) Failed() bool { return r < 0 }

// LogBuffer owns the three term partitions and metadata region for one
// publication or image.
type LogBuffer struct {
	terms         [PartitionCount][]byte
	metadata      []byte
	termLength    int32
	initialTermID int32
	mtuLength     int32
	closer        func() error

	// entityTag is an opaque, globally-unique, non-sequential token
	// distinguishing this log buffer instance across driver restarts,
	// generated with github.com/rs/xid (not persisted into the metadata
	// region itself, and exposed only through EntityTag: no client event
	// carries it; non-sequential so it can't be guessed/replayed).
	entityTag xid.ID
}

// New wraps already-allocated buffers (terms + metadata) as a LogBuffer.
// NewMapped (mmap-backed) and NewInMemory (heap-backed) both build on it.
func New(terms [PartitionCount][]byte, metadata []byte, termLength, initialTermID, mtuLength int32, closer func() error) (*LogBuffer, error) {
	if err := ValidateTermLength(termLength); err != nil {
		return nil, err
	}
	for i, t := range terms {
		if int32(len(t)) != termLength {
			return nil, protoerr.NewConfigurationError("logbuffer.new",
				fmt.Errorf("partition %d has length %d, want %d", i, len(t), termLength))
		}
	}
	if len(metadata) < MetadataLength {
		return nil, protoerr.NewConfigurationError("logbuffer.new",
			fmt.Errorf("metadata region too small: %d", len(metadata)))
	}
	lb := &LogBuffer{
		terms: terms, metadata: metadata, termLength: termLength,
		initialTermID: initialTermID, mtuLength: mtuLength, closer: closer,
		entityTag: xid.New(),
	}
	lb.putInt32(offsetInitialTermID, initialTermID)
	lb.putInt32(offsetTermLength, termLength)
	lb.putInt32(offsetMTULength, mtuLength)
	lb.putInt64(offsetEndOfStreamPos, -1)
	return lb, nil
}

// NewInMemory allocates plain heap buffers, used by tests and by the
// Conductor for every publication, network and IPC alike.
func NewInMemory(termLength, initialTermID, mtuLength int32) (*LogBuffer, error) {
	var terms [PartitionCount][]byte
	for i := range terms {
		terms[i] = make([]byte, termLength)
	}
	return New(terms, make([]byte, MetadataLength), termLength, initialTermID, mtuLength, func() error { return nil })
}

func (lb *LogBuffer) Close() error {
	if lb.closer != nil {
		return lb.closer()
	}
	return nil
}

func (lb *LogBuffer) TermLength() int32    { return lb.termLength }
func (lb *LogBuffer) InitialTermID() int32 { return lb.initialTermID }
func (lb *LogBuffer) MTULength() int32     { return lb.mtuLength }

// EntityTag returns this log buffer's opaque instance identifier.
func (lb *LogBuffer) EntityTag() string { return lb.entityTag.String() }

func (lb *LogBuffer) partition(index int32) []byte { return lb.terms[index%PartitionCount] }

func (lb *LogBuffer) putInt32(offset int, v int32) {
	atomic.StoreInt32((*int32)(ptrAt32(lb.metadata, offset)), v)
}
func (lb *LogBuffer) getInt32(offset int) int32 {
	return atomic.LoadInt32((*int32)(ptrAt32(lb.metadata, offset)))
}
func (lb *LogBuffer) putInt64(offset int, v int64) {
	atomic.StoreInt64((*int64)(ptrAt64(lb.metadata, offset)), v)
}
func (lb *LogBuffer) getInt64(offset int) int64 {
	return atomic.LoadInt64((*int64)(ptrAt64(lb.metadata, offset)))
}

// ActiveTermCount is the number of term rotations so far; modulo 3 it is
// the index of the currently active partition.
func (lb *LogBuffer) ActiveTermCount() int32 { return lb.getInt32(offsetActiveTermCount) }

// RawTailVolatile reads the current append position (relative to the start
// of the active partition) for partition index, with volatile semantics.
func (lb *LogBuffer) RawTailVolatile(partitionIndex int32) int64 {
	return atomic.LoadInt64((*int64)(ptrAt64(lb.metadata, tailOffset(partitionIndex))))
}

func tailOffset(partitionIndex int32) int {
	switch partitionIndex % PartitionCount {
	case 0:
		return offsetTailCounter0
	case 1:
		return offsetTailCounter1
	default:
		return offsetTailCounter2
	}
}

// SetEndOfStreamPosition records the EOS position once a publication is
// revoked or closed cleanly; -1 means "no EOS yet".
func (lb *LogBuffer) SetEndOfStreamPosition(pos int64) { lb.putInt64(offsetEndOfStreamPos, pos) }
func (lb *LogBuffer) EndOfStreamPosition() int64       { return lb.getInt64(offsetEndOfStreamPos) }

func (lb *LogBuffer) SetConnected(v bool) {
	i := int32(0)
	if v {
		i = 1
	}
	lb.putInt32(offsetIsConnected, i)
}
func (lb *LogBuffer) IsConnected() bool { return lb.getInt32(offsetIsConnected) != 0 }

// ComputeTermID returns the term id that position maps into, given the
// position's active term id and the distance in terms between them.
func ComputeTermID(activeTermID int32, termCountDistance int32) int32 {
	return activeTermID + termCountDistance
}

// ComputePositionFromTermOffset combines a term's base position with an
// in-term offset. termBasePosition is initialTermID-relative.
func ComputePositionFromTermOffset(termBasePosition int64, termOffset int32) int64 {
	return termBasePosition + int64(termOffset)
}

// FrameType re-exported for callers that only depend on logbuffer.
type FrameType = wire.FrameType
