package logbuffer

import (
	"testing"

	"github.com/alxayo/mediadriver/internal/wire"
)

func newTestBuffer(t *testing.T) *LogBuffer {
	t.Helper()
	lb, err := NewInMemory(64*1024, 1, 1408)
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	return lb
}

func TestValidateTermLengthRejectsNonPowerOfTwo(t *testing.T) {
	if err := ValidateTermLength(100000); err == nil {
		t.Fatalf("expected error for non power of two")
	}
	if err := ValidateTermLength(MinTermLength); err != nil {
		t.Fatalf("unexpected error at minimum: %v", err)
	}
}

func TestAppendAndScanRoundTrip(t *testing.T) {
	lb := newTestBuffer(t)
	appender := NewAppender(lb, 0)

	payload := []byte("frame payload")
	aligned := wire.AlignedLength(wire.DataHeaderLength + int32(len(payload)))
	rawTail := appender.Claim(aligned)
	offset := TermOffset(rawTail, lb.TermLength())

	if _, err := appender.AppendUnfragmented(offset, wire.DataFrame{
		CommonHeader: wire.CommonHeader{Type: wire.TypeData, Flags: wire.FlagBegin | wire.FlagEnd},
		SessionID:    1, StreamID: 2, TermID: 1, TermOffset: offset,
		Payload: payload,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	scanner := NewScanner(lb, 0, 0)
	frame, ok, err := scanner.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !ok {
		t.Fatalf("expected a published frame")
	}
	if string(frame.Payload) != string(payload) {
		t.Fatalf("payload mismatch: %q", frame.Payload)
	}

	_, ok, err = scanner.Scan()
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if ok {
		t.Fatalf("expected no further frame published yet")
	}
}

func TestRotateTermAdvancesActiveCount(t *testing.T) {
	lb := newTestBuffer(t)
	if got := lb.RotateTerm(); got != 1 {
		t.Fatalf("expected active term count 1, got %d", got)
	}
	if got := lb.ActiveTermCount(); got != 1 {
		t.Fatalf("expected ActiveTermCount()==1, got %d", got)
	}
}

func TestEndOfStreamPositionDefaultsToMinusOne(t *testing.T) {
	lb := newTestBuffer(t)
	if lb.EndOfStreamPosition() != -1 {
		t.Fatalf("expected default EOS position -1, got %d", lb.EndOfStreamPosition())
	}
	lb.SetEndOfStreamPosition(4096)
	if lb.EndOfStreamPosition() != 4096 {
		t.Fatalf("expected 4096, got %d", lb.EndOfStreamPosition())
	}
}
