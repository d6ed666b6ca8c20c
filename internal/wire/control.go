package wire

import (
	"encoding/binary"
	"fmt"

	protoerr "github.com/alxayo/mediadriver/internal/errors"
)

// NakFrame requests retransmission of [TermOffset, TermOffset+Length) within TermID.
type NakFrame struct {
	CommonHeader
	SessionID  int32
	StreamID   int32
	TermID     int32
	TermOffset int32
	Length     int32
}

const nakLength = 32

func EncodeNak(dst []byte, f NakFrame) (int32, error) {
	if int32(len(dst)) < nakLength {
		return 0, protoerr.NewProtocolMismatch("wire.encode_nak", fmt.Errorf("dst too small"))
	}
	encodeCommonHeader(dst, CommonHeader{FrameLength: nakLength, Version: Version, Type: TypeNak})
	binary.LittleEndian.PutUint32(dst[8:12], uint32(f.SessionID))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(f.StreamID))
	binary.LittleEndian.PutUint32(dst[16:20], uint32(f.TermID))
	binary.LittleEndian.PutUint32(dst[20:24], uint32(f.TermOffset))
	binary.LittleEndian.PutUint32(dst[24:28], uint32(f.Length))
	return nakLength, nil
}

func DecodeNak(b []byte) (NakFrame, error) {
	ch, err := decodeCommonHeader(b)
	if err != nil {
		return NakFrame{}, err
	}
	if len(b) < nakLength {
		return NakFrame{}, protoerr.NewProtocolMismatch("wire.decode_nak", fmt.Errorf("short buffer"))
	}
	return NakFrame{
		CommonHeader: ch,
		SessionID:    int32(binary.LittleEndian.Uint32(b[8:12])),
		StreamID:     int32(binary.LittleEndian.Uint32(b[12:16])),
		TermID:       int32(binary.LittleEndian.Uint32(b[16:20])),
		TermOffset:   int32(binary.LittleEndian.Uint32(b[20:24])),
		Length:       int32(binary.LittleEndian.Uint32(b[24:28])),
	}, nil
}

// StatusMessageFlags.
const SMFlagEOS uint8 = 0x80

// StatusFrame (SM) carries receiver feedback: consumption position and
// receiver window, used by sender-side flow control.
type StatusFrame struct {
	CommonHeader
	SessionID            int32
	StreamID             int32
	ConsumptionTermID    int32
	ConsumptionTermOffset int32
	ReceiverWindow       int32
	ReceiverID           int64
	GroupTag             int64 // valid only when Flags has TaggedGroup semantics; 0 otherwise
}

const statusLength = 40

func EncodeStatus(dst []byte, f StatusFrame) (int32, error) {
	if int32(len(dst)) < statusLength {
		return 0, protoerr.NewProtocolMismatch("wire.encode_sm", fmt.Errorf("dst too small"))
	}
	encodeCommonHeader(dst, CommonHeader{FrameLength: statusLength, Version: Version, Type: TypeStatus, Flags: f.Flags})
	binary.LittleEndian.PutUint32(dst[8:12], uint32(f.SessionID))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(f.StreamID))
	binary.LittleEndian.PutUint32(dst[16:20], uint32(f.ConsumptionTermID))
	binary.LittleEndian.PutUint32(dst[20:24], uint32(f.ConsumptionTermOffset))
	binary.LittleEndian.PutUint32(dst[24:28], uint32(f.ReceiverWindow))
	binary.LittleEndian.PutUint64(dst[28:36], uint64(f.ReceiverID))
	binary.LittleEndian.PutUint32(dst[36:40], uint32(f.GroupTag))
	return statusLength, nil
}

func DecodeStatus(b []byte) (StatusFrame, error) {
	ch, err := decodeCommonHeader(b)
	if err != nil {
		return StatusFrame{}, err
	}
	if len(b) < statusLength {
		return StatusFrame{}, protoerr.NewProtocolMismatch("wire.decode_sm", fmt.Errorf("short buffer"))
	}
	return StatusFrame{
		CommonHeader:          ch,
		SessionID:             int32(binary.LittleEndian.Uint32(b[8:12])),
		StreamID:              int32(binary.LittleEndian.Uint32(b[12:16])),
		ConsumptionTermID:     int32(binary.LittleEndian.Uint32(b[16:20])),
		ConsumptionTermOffset: int32(binary.LittleEndian.Uint32(b[20:24])),
		ReceiverWindow:        int32(binary.LittleEndian.Uint32(b[24:28])),
		ReceiverID:            int64(binary.LittleEndian.Uint64(b[28:36])),
		GroupTag:              int64(int32(binary.LittleEndian.Uint32(b[36:40]))),
	}, nil
}

// ErrorFrame (ERR) reports a frame this endpoint rejected back to its sender.
type ErrorFrame struct {
	CommonHeader
	SessionID     int32
	StreamID      int32
	ReceiverID    int64
	ErrorCode     int32
	OffendingType FrameType
	Message       []byte
}

const errHeaderLength = 28

func EncodeError(dst []byte, f ErrorFrame) (int32, error) {
	total := int32(errHeaderLength + len(f.Message))
	if int32(len(dst)) < total {
		return 0, protoerr.NewProtocolMismatch("wire.encode_err", fmt.Errorf("dst too small"))
	}
	encodeCommonHeader(dst, CommonHeader{FrameLength: total, Version: Version, Type: TypeError})
	binary.LittleEndian.PutUint32(dst[8:12], uint32(f.SessionID))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(f.StreamID))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(f.ReceiverID))
	binary.LittleEndian.PutUint32(dst[24:28], uint32(f.ErrorCode))
	copy(dst[errHeaderLength:total], f.Message)
	return total, nil
}

func DecodeError(b []byte) (ErrorFrame, error) {
	ch, err := decodeCommonHeader(b)
	if err != nil {
		return ErrorFrame{}, err
	}
	if len(b) < errHeaderLength || int(ch.FrameLength) > len(b) || ch.FrameLength < errHeaderLength {
		return ErrorFrame{}, protoerr.NewProtocolMismatch("wire.decode_err", fmt.Errorf("short/invalid buffer"))
	}
	f := ErrorFrame{
		CommonHeader: ch,
		SessionID:    int32(binary.LittleEndian.Uint32(b[8:12])),
		StreamID:     int32(binary.LittleEndian.Uint32(b[12:16])),
		ReceiverID:   int64(binary.LittleEndian.Uint64(b[16:24])),
		ErrorCode:    int32(binary.LittleEndian.Uint32(b[24:28])),
	}
	if ch.FrameLength > errHeaderLength {
		f.Message = b[errHeaderLength:ch.FrameLength]
	}
	return f, nil
}

// SetupFrame (SETUP) announces a new publication stream to receivers,
// carrying the parameters needed to create a Publication-Image.
type SetupFrame struct {
	CommonHeader
	TermOffset     int32
	SessionID      int32
	StreamID       int32
	InitialTermID  int32
	ActiveTermID   int32
	TermLength     int32
	MTULength      int32
	TTL            int32
	GroupTag       int64 // 0 when absent
}

const setupLength = 48

func EncodeSetup(dst []byte, f SetupFrame) (int32, error) {
	if int32(len(dst)) < setupLength {
		return 0, protoerr.NewProtocolMismatch("wire.encode_setup", fmt.Errorf("dst too small"))
	}
	encodeCommonHeader(dst, CommonHeader{FrameLength: setupLength, Version: Version, Type: TypeSetup, Flags: f.Flags})
	binary.LittleEndian.PutUint32(dst[8:12], uint32(f.TermOffset))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(f.SessionID))
	binary.LittleEndian.PutUint32(dst[16:20], uint32(f.StreamID))
	binary.LittleEndian.PutUint32(dst[20:24], uint32(f.InitialTermID))
	binary.LittleEndian.PutUint32(dst[24:28], uint32(f.ActiveTermID))
	binary.LittleEndian.PutUint32(dst[28:32], uint32(f.TermLength))
	binary.LittleEndian.PutUint32(dst[32:36], uint32(f.MTULength))
	binary.LittleEndian.PutUint32(dst[36:40], uint32(f.TTL))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(f.GroupTag))
	return setupLength, nil
}

func DecodeSetup(b []byte) (SetupFrame, error) {
	ch, err := decodeCommonHeader(b)
	if err != nil {
		return SetupFrame{}, err
	}
	if len(b) < setupLength {
		return SetupFrame{}, protoerr.NewProtocolMismatch("wire.decode_setup", fmt.Errorf("short buffer"))
	}
	return SetupFrame{
		CommonHeader:  ch,
		TermOffset:    int32(binary.LittleEndian.Uint32(b[8:12])),
		SessionID:     int32(binary.LittleEndian.Uint32(b[12:16])),
		StreamID:      int32(binary.LittleEndian.Uint32(b[16:20])),
		InitialTermID: int32(binary.LittleEndian.Uint32(b[20:24])),
		ActiveTermID:  int32(binary.LittleEndian.Uint32(b[24:28])),
		TermLength:    int32(binary.LittleEndian.Uint32(b[28:32])),
		MTULength:     int32(binary.LittleEndian.Uint32(b[32:36])),
		TTL:           int32(binary.LittleEndian.Uint32(b[36:40])),
		GroupTag:      int64(binary.LittleEndian.Uint64(b[40:48])),
	}, nil
}

// RTTMeasurementFrame (RTTM) supports round-trip-time estimation between a
// publication and its receivers.
type RTTMeasurementFrame struct {
	CommonHeader
	SessionID  int32
	StreamID   int32
	EchoTimestampNs int64
	ReceptionDelta  int64
	ReceiverID      int64
}

const rttmLength = 40

// RTTM flag: set when this frame is a reply to a prior measurement request.
const RTTMFlagReply uint8 = 0x80

func EncodeRTTMeasurement(dst []byte, f RTTMeasurementFrame) (int32, error) {
	if int32(len(dst)) < rttmLength {
		return 0, protoerr.NewProtocolMismatch("wire.encode_rttm", fmt.Errorf("dst too small"))
	}
	encodeCommonHeader(dst, CommonHeader{FrameLength: rttmLength, Version: Version, Type: TypeRTTMeasurement, Flags: f.Flags})
	binary.LittleEndian.PutUint32(dst[8:12], uint32(f.SessionID))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(f.StreamID))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(f.EchoTimestampNs))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(f.ReceptionDelta))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(f.ReceiverID))
	return rttmLength, nil
}

func DecodeRTTMeasurement(b []byte) (RTTMeasurementFrame, error) {
	ch, err := decodeCommonHeader(b)
	if err != nil {
		return RTTMeasurementFrame{}, err
	}
	if len(b) < rttmLength {
		return RTTMeasurementFrame{}, protoerr.NewProtocolMismatch("wire.decode_rttm", fmt.Errorf("short buffer"))
	}
	return RTTMeasurementFrame{
		CommonHeader:    ch,
		SessionID:       int32(binary.LittleEndian.Uint32(b[8:12])),
		StreamID:        int32(binary.LittleEndian.Uint32(b[12:16])),
		EchoTimestampNs: int64(binary.LittleEndian.Uint64(b[16:24])),
		ReceptionDelta:  int64(binary.LittleEndian.Uint64(b[24:32])),
		ReceiverID:      int64(binary.LittleEndian.Uint64(b[32:40])),
	}, nil
}
