package logbuffer

import (
	"sync/atomic"

	"github.com/alxayo/mediadriver/internal/wire"
)

// Appender claims space in one term partition and publishes frame length
// with release ordering: reserve via atomic fetch-add, write the frame
// body, then publish frameLength last so a concurrent scanner never
// observes a partially-written frame.
type Appender struct {
	lb             *LogBuffer
	partitionIndex int32
}

func NewAppender(lb *LogBuffer, partitionIndex int32) *Appender {
	return &Appender{lb: lb, partitionIndex: partitionIndex}
}

// Claim reserves length bytes (already aligned by the caller to
// wire.FrameAlignment) in the active partition and returns the raw tail
// value before the claim. The tail is not bounded by the term length: a
// claim that runs past the end of the term is the caller's to detect and
// rotate.
func (a *Appender) Claim(alignedLength int32) (rawTailBefore int64) {
	term := a.lb.partition(a.partitionIndex)
	tailPtr := (*int64)(ptrAt64(a.lb.metadata, tailOffset(a.partitionIndex)))
	newTail := atomic.AddInt64(tailPtr, int64(alignedLength))
	rawTailBefore = newTail - int64(alignedLength)
	_ = term
	return rawTailBefore
}

// TermOffset extracts the in-term offset from a raw tail value.
func TermOffset(rawTail int64, termLength int32) int32 {
	return int32(rawTail % int64(termLength))
}

// AppendUnfragmented writes a single DATA frame that fits the claimed
// space without fragmentation. termOffset must come from a prior Claim
// whose result landed entirely within the term (offset+alignedLength <=
// termLength); callers are responsible for rotation when it doesn't.
func (a *Appender) AppendUnfragmented(termOffset int32, frame wire.DataFrame) (int32, error) {
	term := a.lb.partition(a.partitionIndex)
	n, err := wire.EncodeData(term[termOffset:], frame)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// AppendPadding writes a PAD frame filling [termOffset, termLength). It
// does not change the active term; RotateTerm does that.
func (a *Appender) AppendPadding(termOffset int32, sessionID, streamID, termID int32) error {
	term := a.lb.partition(a.partitionIndex)
	padLength := int32(len(term)) - termOffset
	if padLength <= 0 {
		return nil
	}
	_, err := wire.EncodePad(term[termOffset:], sessionID, streamID, termID, termOffset, padLength)
	return err
}

// RotateTerm increments ActiveTermCount by one (the active partition is
// that count modulo 3),
// called by the appender that successfully claimed the PAD closing the
// current term.
func (lb *LogBuffer) RotateTerm() int32 {
	for {
		cur := lb.ActiveTermCount()
		next := cur + 1
		if atomic.CompareAndSwapInt32((*int32)(ptrAt32(lb.metadata, offsetActiveTermCount)), cur, next) {
			return next
		}
	}
}
