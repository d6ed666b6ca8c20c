package wire

import (
	"encoding/binary"
	"fmt"

	protoerr "github.com/alxayo/mediadriver/internal/errors"
)

// DataHeaderLength is the fixed header size preceding a DATA/PAD frame's
// payload: common(8) + termOffset(4) + sessionID(4) + streamID(4) +
// termID(4) + reservedValue(8).
const DataHeaderLength = 32

// DataFrame is a DATA or PAD frame (PAD carries no meaningful payload but
// shares the same header shape so a scanner never special-cases it).
type DataFrame struct {
	CommonHeader
	TermOffset    int32
	SessionID     int32
	StreamID      int32
	TermID        int32
	ReservedValue int64
	Payload       []byte
}

// EncodeData writes a DATA (or PAD, depending on h.Type) frame into dst,
// which must be at least DataHeaderLength+len(payload) bytes. Returns the
// unaligned frame length written.
func EncodeData(dst []byte, f DataFrame) (int32, error) {
	total := int32(DataHeaderLength + len(f.Payload))
	if int32(len(dst)) < total {
		return 0, protoerr.NewProtocolMismatch("wire.encode_data", fmt.Errorf("dst too small: need %d have %d", total, len(dst)))
	}
	f.CommonHeader.FrameLength = total
	f.CommonHeader.Version = Version
	encodeCommonHeader(dst, f.CommonHeader)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(f.TermOffset))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(f.SessionID))
	binary.LittleEndian.PutUint32(dst[16:20], uint32(f.StreamID))
	binary.LittleEndian.PutUint32(dst[20:24], uint32(f.TermID))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(f.ReservedValue))
	copy(dst[32:total], f.Payload)
	return total, nil
}

// DecodeData parses a DATA/PAD frame from b. b may be longer than the frame
// (e.g. a whole term partition slice); only FrameLength bytes are consumed.
func DecodeData(b []byte) (DataFrame, error) {
	ch, err := decodeCommonHeader(b)
	if err != nil {
		return DataFrame{}, err
	}
	if ch.FrameLength < DataHeaderLength || int(ch.FrameLength) > len(b) {
		return DataFrame{}, protoerr.NewProtocolMismatch("wire.decode_data",
			fmt.Errorf("invalid frameLength %d for buffer of %d bytes", ch.FrameLength, len(b)))
	}
	f := DataFrame{
		CommonHeader:  ch,
		TermOffset:    int32(binary.LittleEndian.Uint32(b[8:12])),
		SessionID:     int32(binary.LittleEndian.Uint32(b[12:16])),
		StreamID:      int32(binary.LittleEndian.Uint32(b[16:20])),
		TermID:        int32(binary.LittleEndian.Uint32(b[20:24])),
		ReservedValue: int64(binary.LittleEndian.Uint64(b[24:32])),
	}
	if ch.FrameLength > DataHeaderLength {
		f.Payload = b[DataHeaderLength:ch.FrameLength]
	}
	return f, nil
}

// IsBegin, IsEnd, IsEOS, IsGroup, IsRevoked test the DATA frame flag bits.
func (f DataFrame) IsBegin() bool   { return f.Flags&FlagBegin != 0 }
func (f DataFrame) IsEnd() bool     { return f.Flags&FlagEnd != 0 }
func (f DataFrame) IsEOS() bool     { return f.Flags&FlagEOS != 0 }
func (f DataFrame) IsGroup() bool   { return f.Flags&FlagGroup != 0 }
func (f DataFrame) IsRevoked() bool { return f.Flags&FlagRevoked != 0 }

// EncodePad writes a PAD frame occupying exactly paddedLength bytes (the
// remainder of a term), used by the log-buffer to rotate terms.
func EncodePad(dst []byte, sessionID, streamID, termID, termOffset, paddedLength int32) (int32, error) {
	if int32(len(dst)) < paddedLength || paddedLength < DataHeaderLength {
		return 0, protoerr.NewProtocolMismatch("wire.encode_pad", fmt.Errorf("invalid paddedLength %d", paddedLength))
	}
	f := DataFrame{
		CommonHeader: CommonHeader{Type: TypePad, Version: Version},
		TermOffset:   termOffset,
		SessionID:    sessionID,
		StreamID:     streamID,
		TermID:       termID,
	}
	encodeCommonHeader(dst, CommonHeader{FrameLength: paddedLength, Version: Version, Type: TypePad})
	binary.LittleEndian.PutUint32(dst[8:12], uint32(f.TermOffset))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(f.SessionID))
	binary.LittleEndian.PutUint32(dst[16:20], uint32(f.StreamID))
	binary.LittleEndian.PutUint32(dst[20:24], uint32(f.TermID))
	return paddedLength, nil
}
