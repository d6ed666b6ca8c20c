// Package wire implements the driver's fixed-layout, little-endian frame
// codec: the on-the-wire (and on-log-buffer) representation of PAD, DATA,
// NAK, SM, ERR, SETUP, RTTM, RES, ATS_DATA, ATS_SETUP, RSP_SETUP and EXT
// frames. It generalizes a two-phase chunk-header parse (basic header ->
// type-specific header -> optional extension) into one decode function per
// frame type, and a single-pass writer into a symmetric Encode/Decode pair.
package wire

import (
	"encoding/binary"
	"fmt"

	protoerr "github.com/alxayo/mediadriver/internal/errors"
)

// FrameType enumerates the wire frame type field (HeaderLength-offset 6,
// uint16, little-endian).
type FrameType uint16

const (
	TypePad       FrameType = 0x00
	TypeData      FrameType = 0x01
	TypeNak       FrameType = 0x02
	TypeStatus    FrameType = 0x03 // SM: Status Message
	TypeError     FrameType = 0x04 // ERR
	TypeSetup     FrameType = 0x05
	TypeRTTMeasurement FrameType = 0x06 // RTTM
	TypeResolution FrameType = 0x07     // RES
	TypeATSData   FrameType = 0x08
	TypeATSSetup  FrameType = 0x09
	TypeRspSetup  FrameType = 0x0A // RSP_SETUP: response to a SETUP on a rejected/redirected channel
	TypeExt       FrameType = 0xFFFF
)

func (t FrameType) String() string {
	switch t {
	case TypePad:
		return "PAD"
	case TypeData:
		return "DATA"
	case TypeNak:
		return "NAK"
	case TypeStatus:
		return "SM"
	case TypeError:
		return "ERR"
	case TypeSetup:
		return "SETUP"
	case TypeRTTMeasurement:
		return "RTTM"
	case TypeResolution:
		return "RES"
	case TypeATSData:
		return "ATS_DATA"
	case TypeATSSetup:
		return "ATS_SETUP"
	case TypeRspSetup:
		return "RSP_SETUP"
	case TypeExt:
		return "EXT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int16(t))
	}
}

// DATA frame flags (single byte, header offset 4).
const (
	FlagBegin   uint8 = 0x80
	FlagEnd     uint8 = 0x40
	FlagEOS     uint8 = 0x20
	FlagGroup   uint8 = 0x10 // multi-destination group marker
	FlagRevoked uint8 = 0x08
)

// Version is the single supported wire protocol version.
const Version uint8 = 0x0

// FrameAlignment is the byte boundary every frame (including its trailing
// padding) must start and end on within a term.
const FrameAlignment = 32

// CommonHeaderLength is the size, in bytes, of the fields shared by every
// frame type: frameLength, version, flags, type.
const CommonHeaderLength = 8

// CommonHeader is the prefix present on every frame.
type CommonHeader struct {
	FrameLength int32 // total length of frame including header & payload, may be negative while being written (see logbuffer)
	Version     uint8
	Flags       uint8
	Type        FrameType
}

func decodeCommonHeader(b []byte) (CommonHeader, error) {
	if len(b) < CommonHeaderLength {
		return CommonHeader{}, protoerr.NewProtocolMismatch("wire.decode_common_header",
			fmt.Errorf("need %d bytes, have %d", CommonHeaderLength, len(b)))
	}
	h := CommonHeader{
		FrameLength: int32(binary.LittleEndian.Uint32(b[0:4])),
		Version:     b[4],
		Flags:       b[5],
		Type:        FrameType(binary.LittleEndian.Uint16(b[6:8])),
	}
	return h, nil
}

func encodeCommonHeader(b []byte, h CommonHeader) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(h.FrameLength))
	b[4] = h.Version
	b[5] = h.Flags
	binary.LittleEndian.PutUint16(b[6:8], uint16(h.Type))
}

// AlignedLength rounds length up to the next FrameAlignment boundary.
func AlignedLength(length int32) int32 {
	const mask = FrameAlignment - 1
	return (length + mask) &^ mask
}

// PeekType reads only the frame type from a buffer, without validating the
// rest of the header; used by dispatch loops deciding which Decode* to call.
func PeekType(b []byte) (FrameType, error) {
	h, err := decodeCommonHeader(b)
	if err != nil {
		return 0, err
	}
	return h.Type, nil
}

// PeekFrameLength reads only frameLength, used by the log-buffer scanner to
// know how far to advance before the rest of the header is necessarily valid
// (frameLength is published last, with release semantics, by the writer).
func PeekFrameLength(b []byte) (int32, error) {
	h, err := decodeCommonHeader(b)
	if err != nil {
		return 0, err
	}
	return h.FrameLength, nil
}
