package wire

import (
	"encoding/binary"
	"fmt"

	protoerr "github.com/alxayo/mediadriver/internal/errors"
)

// ResolutionFrame (RES) carries a name-resolver entry (self-announcement or
// a gossiped peer), consumed by the (no-op by default) internal/resolver.
type ResolutionFrame struct {
	CommonHeader
	AgeInMs  int32
	Port     int32
	Name     []byte
	Address  []byte // raw IPv4/IPv6 bytes
}

const resHeaderLength = 16

func EncodeResolution(dst []byte, f ResolutionFrame) (int32, error) {
	total := int32(resHeaderLength + len(f.Address) + len(f.Name))
	if int32(len(dst)) < total {
		return 0, protoerr.NewProtocolMismatch("wire.encode_res", fmt.Errorf("dst too small"))
	}
	encodeCommonHeader(dst, CommonHeader{FrameLength: total, Version: Version, Type: TypeResolution})
	binary.LittleEndian.PutUint32(dst[8:12], uint32(f.AgeInMs))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(f.Port))
	off := resHeaderLength
	copy(dst[off:off+len(f.Address)], f.Address)
	off += len(f.Address)
	copy(dst[off:off+len(f.Name)], f.Name)
	return total, nil
}

func DecodeResolution(b []byte, addrLen int) (ResolutionFrame, error) {
	ch, err := decodeCommonHeader(b)
	if err != nil {
		return ResolutionFrame{}, err
	}
	if int(ch.FrameLength) > len(b) || ch.FrameLength < int32(resHeaderLength+addrLen) {
		return ResolutionFrame{}, protoerr.NewProtocolMismatch("wire.decode_res", fmt.Errorf("invalid frame"))
	}
	f := ResolutionFrame{
		CommonHeader: ch,
		AgeInMs:      int32(binary.LittleEndian.Uint32(b[8:12])),
		Port:         int32(binary.LittleEndian.Uint32(b[12:16])),
	}
	off := resHeaderLength
	f.Address = b[off : off+addrLen]
	off += addrLen
	if int(ch.FrameLength) > off {
		f.Name = b[off:ch.FrameLength]
	}
	return f, nil
}

// ATSFrame wraps a DATA or SETUP frame's payload for the as-traffic-shaped
// transport-security envelope (ATS_DATA/ATS_SETUP). The driver does not
// implement encryption/authentication (Non-goal); these codecs exist so an
// encrypted-session peer's frames can still be parsed far enough to route
// or reject them instead of merely dropping them as malformed.
type ATSFrame struct {
	CommonHeader
	SessionID int32
	StreamID  int32
	KeyID     int64
	Payload   []byte
}

const atsHeaderLength = 24

func EncodeATS(dst []byte, typ FrameType, f ATSFrame) (int32, error) {
	if typ != TypeATSData && typ != TypeATSSetup {
		return 0, protoerr.NewProtocolMismatch("wire.encode_ats", fmt.Errorf("type %s is not an ATS frame", typ))
	}
	total := int32(atsHeaderLength + len(f.Payload))
	if int32(len(dst)) < total {
		return 0, protoerr.NewProtocolMismatch("wire.encode_ats", fmt.Errorf("dst too small"))
	}
	encodeCommonHeader(dst, CommonHeader{FrameLength: total, Version: Version, Type: typ})
	binary.LittleEndian.PutUint32(dst[8:12], uint32(f.SessionID))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(f.StreamID))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(f.KeyID))
	copy(dst[atsHeaderLength:total], f.Payload)
	return total, nil
}

func DecodeATS(b []byte) (ATSFrame, error) {
	ch, err := decodeCommonHeader(b)
	if err != nil {
		return ATSFrame{}, err
	}
	if ch.Type != TypeATSData && ch.Type != TypeATSSetup {
		return ATSFrame{}, protoerr.NewProtocolMismatch("wire.decode_ats", fmt.Errorf("type %s is not an ATS frame", ch.Type))
	}
	if len(b) < atsHeaderLength || int(ch.FrameLength) > len(b) || ch.FrameLength < atsHeaderLength {
		return ATSFrame{}, protoerr.NewProtocolMismatch("wire.decode_ats", fmt.Errorf("short/invalid buffer"))
	}
	f := ATSFrame{
		CommonHeader: ch,
		SessionID:    int32(binary.LittleEndian.Uint32(b[8:12])),
		StreamID:     int32(binary.LittleEndian.Uint32(b[12:16])),
		KeyID:        int64(binary.LittleEndian.Uint64(b[16:24])),
	}
	if ch.FrameLength > atsHeaderLength {
		f.Payload = b[atsHeaderLength:ch.FrameLength]
	}
	return f, nil
}

// RspSetupFrame (RSP_SETUP) replies to a SETUP the driver will not
// establish an image for (e.g. channel rejected by the resolver), echoing
// the session/stream ids so the sender can stop retrying.
type RspSetupFrame struct {
	CommonHeader
	SessionID int32
	StreamID  int32
	ErrorCode int32
}

const rspSetupLength = 20

func EncodeRspSetup(dst []byte, f RspSetupFrame) (int32, error) {
	if int32(len(dst)) < rspSetupLength {
		return 0, protoerr.NewProtocolMismatch("wire.encode_rsp_setup", fmt.Errorf("dst too small"))
	}
	encodeCommonHeader(dst, CommonHeader{FrameLength: rspSetupLength, Version: Version, Type: TypeRspSetup})
	binary.LittleEndian.PutUint32(dst[8:12], uint32(f.SessionID))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(f.StreamID))
	binary.LittleEndian.PutUint32(dst[16:20], uint32(f.ErrorCode))
	return rspSetupLength, nil
}

func DecodeRspSetup(b []byte) (RspSetupFrame, error) {
	ch, err := decodeCommonHeader(b)
	if err != nil {
		return RspSetupFrame{}, err
	}
	if len(b) < rspSetupLength {
		return RspSetupFrame{}, protoerr.NewProtocolMismatch("wire.decode_rsp_setup", fmt.Errorf("short buffer"))
	}
	return RspSetupFrame{
		CommonHeader: ch,
		SessionID:    int32(binary.LittleEndian.Uint32(b[8:12])),
		StreamID:     int32(binary.LittleEndian.Uint32(b[12:16])),
		ErrorCode:    int32(binary.LittleEndian.Uint32(b[16:20])),
	}, nil
}
