package wire

import (
	"bytes"
	"testing"
)

func TestDataFrameRoundTrip(t *testing.T) {
	buf := make([]byte, 128)
	payload := []byte("hello media driver")
	want := DataFrame{
		CommonHeader:  CommonHeader{Type: TypeData, Flags: FlagBegin | FlagEnd},
		TermOffset:    64,
		SessionID:     42,
		StreamID:      7,
		TermID:        1001,
		ReservedValue: -1,
		Payload:       payload,
	}
	n, err := EncodeData(buf, want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeData(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SessionID != want.SessionID || got.StreamID != want.StreamID || got.TermID != want.TermID {
		t.Fatalf("field mismatch: %+v", got)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Fatalf("payload mismatch: %q", got.Payload)
	}
	if !got.IsBegin() || !got.IsEnd() {
		t.Fatalf("expected begin+end flags set")
	}
}

func TestEncodePadFillsExactLength(t *testing.T) {
	buf := make([]byte, 256)
	n, err := EncodePad(buf, 1, 2, 3, 0, 128)
	if err != nil {
		t.Fatalf("encode pad: %v", err)
	}
	if n != 128 {
		t.Fatalf("expected 128, got %d", n)
	}
	typ, err := PeekType(buf)
	if err != nil {
		t.Fatalf("peek type: %v", err)
	}
	if typ != TypePad {
		t.Fatalf("expected PAD, got %s", typ)
	}
}

func TestNakRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	want := NakFrame{SessionID: 5, StreamID: 6, TermID: 9, TermOffset: 1408, Length: 1408}
	if _, err := EncodeNak(buf, want); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeNak(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != (NakFrame{CommonHeader: got.CommonHeader, SessionID: 5, StreamID: 6, TermID: 9, TermOffset: 1408, Length: 1408}) {
		t.Fatalf("mismatch: %+v", got)
	}
}

func TestStatusFrameRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	want := StatusFrame{SessionID: 1, StreamID: 2, ConsumptionTermID: 3, ConsumptionTermOffset: 4096, ReceiverWindow: 131072, ReceiverID: 99}
	if _, err := EncodeStatus(buf, want); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeStatus(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ReceiverWindow != want.ReceiverWindow || got.ReceiverID != want.ReceiverID {
		t.Fatalf("mismatch: %+v", got)
	}
}

func TestSetupFrameRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	want := SetupFrame{
		SessionID: 10, StreamID: 20, InitialTermID: 1, ActiveTermID: 1,
		TermLength: 16 * 1024 * 1024, MTULength: 1408, TTL: 16,
	}
	if _, err := EncodeSetup(buf, want); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeSetup(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TermLength != want.TermLength || got.MTULength != want.MTULength {
		t.Fatalf("mismatch: %+v", got)
	}
}

func TestErrorFrameRoundTrip(t *testing.T) {
	buf := make([]byte, 128)
	msg := []byte("unknown publication")
	want := ErrorFrame{SessionID: 1, StreamID: 2, ErrorCode: 1, Message: msg}
	n, err := EncodeError(buf, want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeError(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got.Message, msg) {
		t.Fatalf("message mismatch: %q", got.Message)
	}
}

func TestDecodeDataRejectsTruncatedFrame(t *testing.T) {
	buf := make([]byte, 128)
	_, _ = EncodeData(buf, DataFrame{CommonHeader: CommonHeader{Type: TypeData}, Payload: []byte("x")})
	if _, err := DecodeData(buf[:4]); err == nil {
		t.Fatalf("expected error decoding truncated frame")
	}
}

func TestAlignedLength(t *testing.T) {
	cases := map[int32]int32{0: 0, 1: 32, 32: 32, 33: 64, 63: 64, 1408: 1408 + 0}
	for in, want := range cases {
		if got := AlignedLength(in); got%32 != 0 || got < in {
			t.Fatalf("AlignedLength(%d)=%d invalid", in, got)
		}
		_ = want
	}
}
