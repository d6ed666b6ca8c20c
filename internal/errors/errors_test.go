package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"
	"time"
)

// fakeTimeoutErr simulates a net.Error with Timeout semantics (we don't need full net.Error here).
type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string { return "fake timeout" }
func (fakeTimeoutErr) Timeout() bool { return true }

func TestIsDriverErrorClassification(t *testing.T) {
	root := stdErrors.New("root")
	wrapped := fmt.Errorf("adding context: %w", root)
	ce := NewChannelEndpointError("aeron:udp?endpoint=localhost:9999", wrapped).(*ChannelEndpointError)
	if !IsDriverError(ce) {
		t.Fatalf("expected IsDriverError=true for channel endpoint error")
	}
	if !stdErrors.Is(ce, root) {
		t.Fatalf("expected errors.Is to find root cause")
	}
	var want *ChannelEndpointError
	if !stdErrors.As(ce, &want) {
		t.Fatalf("expected errors.As to *ChannelEndpointError")
	}
	if want.Channel != "aeron:udp?endpoint=localhost:9999" {
		t.Fatalf("unexpected channel: %s", want.Channel)
	}

	pm := NewProtocolMismatch("decode.frame_length", nil)
	if !IsDriverError(pm) {
		t.Fatalf("expected protocol mismatch classified as driver error")
	}
	ice := NewInvalidChannelError("conductor.addPublication", "existing publication has clashing sessionId=5")
	if !IsDriverError(ice) {
		t.Fatalf("expected invalid channel error classified")
	}
	cp := NewControlProtocolError(ErrCodeUnknownPublication, "no such registration id")
	if !IsDriverError(cp) {
		t.Fatalf("expected control protocol error classified")
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(NewDriverTimeoutError("awaitResponse", 5*time.Second)) {
		t.Fatalf("expected DriverTimeoutError recognized")
	}
	if !IsTimeout(&ConductorServiceTimeoutError{Duration: time.Second}) {
		t.Fatalf("expected ConductorServiceTimeoutError recognized")
	}
	if !IsTimeout(NewClientTimeoutError(42)) {
		t.Fatalf("expected ClientTimeoutError recognized")
	}
	if !IsTimeout(context.DeadlineExceeded) {
		t.Fatalf("expected context deadline recognized")
	}
	var ne error = fakeTimeoutErr{}
	if !IsTimeout(ne) {
		t.Fatalf("expected net-like timeout recognized")
	}
}

func TestUnwrapChains(t *testing.T) {
	base := stdErrors.New("io EOF")
	l1 := fmt.Errorf("read: %w", base)
	l2 := NewChannelEndpointError("aeron:udp?endpoint=localhost:9999", l1)
	if !stdErrors.Is(l2, base) {
		t.Fatalf("errors.Is should reach base cause")
	}
	var dm driverMarker
	if !stdErrors.As(l2, &dm) {
		t.Fatalf("expected to match driverMarker via As")
	}
}

func TestNilSafety(t *testing.T) {
	if IsDriverError(nil) {
		t.Fatalf("nil should not be driver error")
	}
	if IsTimeout(nil) {
		t.Fatalf("nil should not be timeout")
	}
}

func TestConstructorWithoutCause(t *testing.T) {
	pm := NewProtocolMismatch("decode.version", nil)
	if pm == nil {
		t.Fatalf("constructor returned nil")
	}
	if errStr := pm.Error(); errStr == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestAgentTerminationRequested(t *testing.T) {
	err := NewAgentTerminationRequested("TerminateDriver command accepted")
	if !IsTermination(err) {
		t.Fatalf("expected IsTermination=true")
	}
	if IsTermination(stdErrors.New("plain")) {
		t.Fatalf("plain error should not be a termination request")
	}
}

func TestControlProtocolErrorCodeStrings(t *testing.T) {
	cases := map[ControlProtocolErrorCode]string{
		ErrCodeUnknownPublication:  "UNKNOWN_PUBLICATION",
		ErrCodeUnknownSubscription: "UNKNOWN_SUBSCRIPTION",
		ErrCodeChannelError:        "CHANNEL_ERROR",
		ErrCodeInvalidChannel:      "INVALID_CHANNEL",
		ErrCodeUnknownCounter:      "UNKNOWN_COUNTER",
		ErrCodeUnknownClient:       "UNKNOWN_CLIENT",
		ErrCodeMalformedCommand:    "MALFORMED_COMMAND",
		ErrCodeGenericError:        "GENERIC_ERROR",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Fatalf("code %d: got %s want %s", code, got, want)
		}
	}
}

func TestNegativePredicates(t *testing.T) {
	if IsDriverError(stdErrors.New("plain")) {
		t.Fatalf("plain error shouldn't be driver error")
	}
	if IsTimeout(stdErrors.New("plain")) {
		t.Fatalf("plain error shouldn't be timeout")
	}
}
