package logbuffer

import (
	"github.com/alxayo/mediadriver/internal/wire"
)

// Scanner sequentially reads published frames from one term partition,
// starting at an arbitrary offset (typically the subscriber's rebuild
// position modulo term length). It never blocks: when the frame at the
// current offset has frameLength 0 (not yet published), Scan returns
// (wire.DataFrame{}, false, nil).
type Scanner struct {
	lb             *LogBuffer
	partitionIndex int32
	offset         int32
}

func NewScanner(lb *LogBuffer, partitionIndex, offset int32) *Scanner {
	return &Scanner{lb: lb, partitionIndex: partitionIndex, offset: offset}
}

func (s *Scanner) Offset() int32 { return s.offset }

// Scan attempts to read the next frame. Returns ok=false with no error when
// nothing has been published yet at the current offset (length still 0).
func (s *Scanner) Scan() (frame wire.DataFrame, ok bool, err error) {
	term := s.lb.partition(s.partitionIndex)
	if s.offset >= int32(len(term)) {
		return wire.DataFrame{}, false, nil
	}
	length, err := wire.PeekFrameLength(term[s.offset:])
	if err != nil {
		// Not enough bytes remain to even hold a header; treat as unpublished.
		return wire.DataFrame{}, false, nil
	}
	if length == 0 {
		return wire.DataFrame{}, false, nil
	}
	aligned := wire.AlignedLength(length)
	f, err := wire.DecodeData(term[s.offset : s.offset+aligned])
	if err != nil {
		return wire.DataFrame{}, false, err
	}
	s.offset += aligned
	return f, true, nil
}

// AtTermEnd reports whether the scanner's offset has reached the end of
// its partition.
func (s *Scanner) AtTermEnd() bool {
	return s.offset >= s.lb.termLength
}
