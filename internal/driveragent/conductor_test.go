package driveragent

import (
	"testing"
	"time"

	"github.com/alxayo/mediadriver/internal/clientproto"
	protoerr "github.com/alxayo/mediadriver/internal/errors"
)

func newTestConductor() *Conductor {
	senderQ := NewSPSCQueue(16)
	receiverQ := NewSPSCQueue(16)
	senderAgent := NewSenderAgent(senderQ, nil)
	receiverAgent := NewReceiverAgent(receiverQ, nil)
	return NewConductor(NewSenderProxy(senderQ, senderAgent), NewReceiverProxy(receiverQ, receiverAgent), "", nil)
}

func TestAddPublicationIPCProducesPublicationReady(t *testing.T) {
	c := newTestConductor()
	c.Commands.Offer(clientproto.Command{
		Type: clientproto.CmdAddPublication, CorrelationID: 1,
		Channel: "aeron:ipc", StreamID: 10,
	})
	if _, err := c.DoWork(); err != nil {
		t.Fatalf("unexpected termination: %v", err)
	}
	evs, _ := c.Events.Since(0)
	if len(evs) != 1 || evs[0].Type != clientproto.EventPublicationReady {
		t.Fatalf("expected PUBLICATION_READY, got %+v", evs)
	}
	if c.PublicationsActive() != 1 {
		t.Fatalf("expected 1 active publication, got %d", c.PublicationsActive())
	}
}

func TestAddPublicationUDPRequiresEndpoint(t *testing.T) {
	c := newTestConductor()
	c.Commands.Offer(clientproto.Command{
		Type: clientproto.CmdAddPublication, CorrelationID: 2,
		Channel: "aeron:udp", StreamID: 1,
	})
	if _, err := c.DoWork(); err != nil {
		t.Fatalf("unexpected termination: %v", err)
	}
	evs, _ := c.Events.Since(0)
	if len(evs) != 1 || evs[0].Type != clientproto.EventOnError {
		t.Fatalf("expected ON_ERROR for missing endpoint, got %+v", evs)
	}
}

func TestAddPublicationUDPCreatesEndpointAndNotifiesAgents(t *testing.T) {
	c := newTestConductor()
	c.Commands.Offer(clientproto.Command{
		Type: clientproto.CmdAddPublication, CorrelationID: 3,
		Channel: "aeron:udp?endpoint=127.0.0.1:0", StreamID: 5,
	})
	if _, err := c.DoWork(); err != nil {
		t.Fatalf("unexpected termination: %v", err)
	}
	evs, _ := c.Events.Since(0)
	if len(evs) != 1 || evs[0].Type != clientproto.EventPublicationReady {
		t.Fatalf("expected PUBLICATION_READY, got %+v", evs)
	}
	if len(c.endpoints) != 1 {
		t.Fatalf("expected 1 endpoint created, got %d", len(c.endpoints))
	}
	if c.senderProxy.q.Len() == 0 {
		t.Fatalf("expected sender proxy notified of new endpoint/publication")
	}
}

// TestAddPublicationSessionClashReturnsInvalidChannel covers the exclusive
// registration clash scenario: a second publication on the same channel,
// stream and session id as an existing one is refused.
func TestAddPublicationSessionClashReturnsInvalidChannel(t *testing.T) {
	c := newTestConductor()
	c.Commands.Offer(clientproto.Command{
		Type: clientproto.CmdAddPublication, CorrelationID: 1,
		Channel: "aeron:ipc", StreamID: 10, SessionID: 5,
	})
	if _, err := c.DoWork(); err != nil {
		t.Fatalf("unexpected termination: %v", err)
	}
	c.Commands.Offer(clientproto.Command{
		Type: clientproto.CmdAddExclusivePublication, CorrelationID: 2,
		Channel: "aeron:ipc", StreamID: 10, SessionID: 5,
	})
	if _, err := c.DoWork(); err != nil {
		t.Fatalf("unexpected termination: %v", err)
	}
	evs, _ := c.Events.Since(1)
	if len(evs) != 1 || evs[0].Type != clientproto.EventOnError {
		t.Fatalf("expected ON_ERROR for clashing sessionId, got %+v", evs)
	}
	if evs[0].ErrorMessage == "" {
		t.Fatalf("expected a clash reason in the error message")
	}
}

func TestRemovePublicationUnknownRegistrationReturnsUnknownPublication(t *testing.T) {
	c := newTestConductor()
	c.Commands.Offer(clientproto.Command{Type: clientproto.CmdRemovePublication, CorrelationID: 1, RegistrationID: 404})
	if _, err := c.DoWork(); err != nil {
		t.Fatalf("unexpected termination: %v", err)
	}
	evs, _ := c.Events.Since(0)
	if len(evs) != 1 || evs[0].Type != clientproto.EventOnError {
		t.Fatalf("expected ON_ERROR, got %+v", evs)
	}
}

func TestRemovePublicationTwiceReturnsUnknownPublicationSecondTime(t *testing.T) {
	c := newTestConductor()
	c.Commands.Offer(clientproto.Command{
		Type: clientproto.CmdAddPublication, CorrelationID: 1,
		Channel: "aeron:ipc", StreamID: 1,
	})
	if _, err := c.DoWork(); err != nil {
		t.Fatalf("unexpected termination: %v", err)
	}
	addEvs, _ := c.Events.Since(0)
	regID := addEvs[0].RegistrationID

	c.Commands.Offer(clientproto.Command{Type: clientproto.CmdRemovePublication, CorrelationID: 2, RegistrationID: regID})
	if _, err := c.DoWork(); err != nil {
		t.Fatalf("unexpected termination: %v", err)
	}
	c.Commands.Offer(clientproto.Command{Type: clientproto.CmdRemovePublication, CorrelationID: 3, RegistrationID: regID})
	if _, err := c.DoWork(); err != nil {
		t.Fatalf("unexpected termination: %v", err)
	}

	evs, _ := c.Events.Since(1)
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %+v", evs)
	}
	if evs[0].Type != clientproto.EventOperationSuccess {
		t.Fatalf("expected first remove to succeed, got %+v", evs[0])
	}
	if evs[1].Type != clientproto.EventOnError {
		t.Fatalf("expected second remove to fail as unknown publication, got %+v", evs[1])
	}
}

func TestAddSubscriptionIPCLinksExistingPublication(t *testing.T) {
	c := newTestConductor()
	c.Commands.Offer(clientproto.Command{
		Type: clientproto.CmdAddPublication, CorrelationID: 1,
		Channel: "aeron:ipc", StreamID: 10,
	})
	if _, err := c.DoWork(); err != nil {
		t.Fatalf("unexpected termination: %v", err)
	}
	c.Commands.Offer(clientproto.Command{
		Type: clientproto.CmdAddSubscription, CorrelationID: 2,
		Channel: "aeron:ipc", StreamID: 10,
	})
	if _, err := c.DoWork(); err != nil {
		t.Fatalf("unexpected termination: %v", err)
	}
	evs, _ := c.Events.Since(1)
	if len(evs) != 1 || evs[0].Type != clientproto.EventSubscriptionReady {
		t.Fatalf("expected SUBSCRIPTION_READY, got %+v", evs)
	}
	if len(c.subscriptions) != 1 {
		t.Fatalf("expected 1 tracked subscription, got %d", len(c.subscriptions))
	}
}

func TestClientKeepaliveTracksLiveness(t *testing.T) {
	c := newTestConductor()
	c.Commands.Offer(clientproto.Command{Type: clientproto.CmdClientKeepalive, ClientID: 99})
	if _, err := c.DoWork(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.Clients.lastSeen[99]; !ok {
		t.Fatalf("expected client 99 tracked")
	}
}

// TestClientTimeoutIncrementsSystemCounter covers the client-timeouts
// system counter bumping once per expired client on a Conductor duty cycle.
func TestClientTimeoutIncrementsSystemCounter(t *testing.T) {
	c := newTestConductor()
	c.Clients.timeout = 0
	c.Clients.Keepalive(42, c.now().Add(-time.Hour))

	before := c.Counters.Get(c.clientTimeoutsCounterID)
	if _, err := c.DoWork(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := c.Counters.Get(c.clientTimeoutsCounterID)
	if after != before+1 {
		t.Fatalf("expected client-timeouts counter to increment by 1, got %d -> %d", before, after)
	}

	evs, _ := c.Events.Since(0)
	if len(evs) != 1 || evs[0].Type != clientproto.EventClientTimeout {
		t.Fatalf("expected CLIENT_TIMEOUT event, got %+v", evs)
	}
}

func TestTerminateDriverSignalsTerminationOnNextCycle(t *testing.T) {
	c := newTestConductor()
	c.Commands.Offer(clientproto.Command{Type: clientproto.CmdTerminateDriver, CorrelationID: 7})
	if _, err := c.DoWork(); err != nil {
		t.Fatalf("first cycle (processing the command) should not itself report termination: %v", err)
	}
	_, err := c.DoWork()
	if err == nil {
		t.Fatalf("expected termination error on cycle after TERMINATE_DRIVER")
	}
	var term *protoerr.AgentTerminationRequested
	if !protoerr.IsTermination(err) {
		t.Fatalf("expected IsTermination(err) true, got %v (%T)", err, term)
	}
}

func TestUnregisteredCommandProducesOnError(t *testing.T) {
	c := newTestConductor()
	c.Commands.Offer(clientproto.Command{Type: clientproto.CommandType(999), CorrelationID: 4})
	if _, err := c.DoWork(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	evs, _ := c.Events.Since(0)
	if len(evs) != 1 || evs[0].Type != clientproto.EventOnError {
		t.Fatalf("expected ON_ERROR for unhandled command, got %+v", evs)
	}
}
