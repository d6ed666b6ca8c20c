// Package clientproto implements the client-command protocol: an
// in-process, mutex-guarded to-driver command ring and a broadcast
// to-clients event log, with a fixed command/event set. It generalizes
// rpc.Dispatcher's decode-route-handler pattern (teacher: AMF0 command name
// string dispatch, internal/rtmp/rpc/dispatcher.go) from a string-keyed
// command name into a CommandType enum dispatch over Go Command structs
// (no binary encoding), with correlation-id echoing on every resulting event.
package clientproto

import (
	"log/slog"

	"github.com/alxayo/mediadriver/internal/logger"
)

// CommandType enumerates every to-driver command.
type CommandType int32

const (
	CmdAddPublication CommandType = iota + 1
	CmdRemovePublication
	CmdAddSubscription
	CmdRemoveSubscription
	CmdClientKeepalive
	CmdAddCounter
	CmdRemoveCounter
	CmdClientClose
	CmdAddRcvDestination
	CmdRemoveRcvDestination
	CmdTerminateDriver
	CmdAddStaticCounter
	CmdAddExclusivePublication
	CmdAddDestination
	CmdRemoveDestination
	CmdNextAvailableSessionId
	CmdRejectImage
)

func (c CommandType) String() string {
	switch c {
	case CmdAddPublication:
		return "ADD_PUBLICATION"
	case CmdRemovePublication:
		return "REMOVE_PUBLICATION"
	case CmdAddSubscription:
		return "ADD_SUBSCRIPTION"
	case CmdRemoveSubscription:
		return "REMOVE_SUBSCRIPTION"
	case CmdClientKeepalive:
		return "CLIENT_KEEPALIVE"
	case CmdAddCounter:
		return "ADD_COUNTER"
	case CmdRemoveCounter:
		return "REMOVE_COUNTER"
	case CmdClientClose:
		return "CLIENT_CLOSE"
	case CmdAddRcvDestination:
		return "ADD_RCV_DESTINATION"
	case CmdRemoveRcvDestination:
		return "REMOVE_RCV_DESTINATION"
	case CmdTerminateDriver:
		return "TERMINATE_DRIVER"
	case CmdAddStaticCounter:
		return "ADD_STATIC_COUNTER"
	case CmdAddExclusivePublication:
		return "ADD_EXCLUSIVE_PUBLICATION"
	case CmdAddDestination:
		return "ADD_DESTINATION"
	case CmdRemoveDestination:
		return "REMOVE_DESTINATION"
	case CmdNextAvailableSessionId:
		return "NEXT_AVAILABLE_SESSION_ID"
	case CmdRejectImage:
		return "REJECT_IMAGE"
	default:
		return "UNKNOWN_COMMAND"
	}
}

// EventType enumerates every to-client broadcast event.
type EventType int32

const (
	EventPublicationReady EventType = iota + 1
	EventSubscriptionReady
	EventAvailableImage
	EventUnavailableImage
	EventOperationSuccess
	EventOnError
	EventClientTimeout
	EventCounterReady
	EventUnavailableCounter
	EventExclusivePublicationReady
	EventChannelEndpointError
	EventPublicationError
	EventStaticCounter
	EventNextAvailableSessionId
	EventAsyncError
)

func (e EventType) String() string {
	switch e {
	case EventPublicationReady:
		return "PUBLICATION_READY"
	case EventSubscriptionReady:
		return "SUBSCRIPTION_READY"
	case EventAvailableImage:
		return "AVAILABLE_IMAGE"
	case EventUnavailableImage:
		return "UNAVAILABLE_IMAGE"
	case EventOperationSuccess:
		return "OPERATION_SUCCESS"
	case EventOnError:
		return "ON_ERROR"
	case EventClientTimeout:
		return "CLIENT_TIMEOUT"
	case EventCounterReady:
		return "COUNTER_READY"
	case EventUnavailableCounter:
		return "UNAVAILABLE_COUNTER"
	case EventExclusivePublicationReady:
		return "EXCLUSIVE_PUBLICATION_READY"
	case EventChannelEndpointError:
		return "CHANNEL_ENDPOINT_ERROR"
	case EventPublicationError:
		return "PUBLICATION_ERROR"
	case EventStaticCounter:
		return "STATIC_COUNTER"
	case EventNextAvailableSessionId:
		return "NEXT_AVAILABLE_SESSION_ID"
	case EventAsyncError:
		return "ASYNC_ERROR"
	default:
		return "UNKNOWN_EVENT"
	}
}

// Command is a decoded to-driver command with its correlation id, echoed
// on whatever event(s) result from processing it.
type Command struct {
	Type          CommandType
	CorrelationID int64
	ClientID      int64

	Channel            string
	StreamID           int32
	SessionID          int32 // optional explicit session id for publications, or reject-image's image session id
	RegistrationID     int64 // for remove/keepalive/destination/counter commands referencing a prior add
	CounterTypeID      int32
	CounterKeyBuffer   []byte
	CounterLabel       string
	Destination        string // ADD/REMOVE_RCV_DESTINATION, ADD/REMOVE_DESTINATION
	Reason             string // REJECT_IMAGE
}

// Event is a to-client broadcast event.
type Event struct {
	Type           EventType
	CorrelationID  int64
	RegistrationID int64
	SessionID      int32
	StreamID       int32
	Channel        string
	ErrorCode      int32
	ErrorMessage   string
}

// CommandHandler functions process one decoded command and return the
// resulting events (usually exactly one: an OPERATION_SUCCESS/PUBLICATION_
// READY/ON_ERROR, occasionally more for cascading removals).
type (
	AddPublicationHandler    func(cmd Command) []Event
	RemovePublicationHandler func(cmd Command) []Event
	AddSubscriptionHandler   func(cmd Command) []Event
	RemoveSubscriptionHandler func(cmd Command) []Event
	ClientKeepaliveHandler   func(cmd Command) []Event
	ClientCloseHandler       func(cmd Command) []Event
	AddCounterHandler        func(cmd Command) []Event
	RemoveCounterHandler     func(cmd Command) []Event
	RcvDestinationHandler    func(cmd Command) []Event
	TerminateDriverHandler   func(cmd Command) []Event
	DestinationHandler       func(cmd Command) []Event
	NextAvailableSessionIdHandler func(cmd Command) []Event
	RejectImageHandler       func(cmd Command) []Event
)

// Dispatcher routes decoded commands to registered handlers, the same
// shape as rpc.Dispatcher but keyed by CommandType rather than an AMF0
// command-name string.
type Dispatcher struct {
	OnAddPublication     AddPublicationHandler
	OnRemovePublication   RemovePublicationHandler
	OnAddSubscription     AddSubscriptionHandler
	OnRemoveSubscription  RemoveSubscriptionHandler
	OnClientKeepalive     ClientKeepaliveHandler
	OnClientClose         ClientCloseHandler
	OnAddCounter          AddCounterHandler
	OnRemoveCounter       RemoveCounterHandler
	OnAddRcvDestination   RcvDestinationHandler
	OnRemoveRcvDestination RcvDestinationHandler
	OnTerminateDriver     TerminateDriverHandler
	OnAddExclusivePublication AddPublicationHandler
	OnAddDestination      DestinationHandler
	OnRemoveDestination   DestinationHandler
	OnNextAvailableSessionId NextAvailableSessionIdHandler
	OnRejectImage         RejectImageHandler

	log *slog.Logger
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{log: logger.Logger().With("component", "clientproto_dispatcher")}
}

// Dispatch routes cmd to its registered handler, returning the events the
// handler produces. Unregistered handlers produce a single ON_ERROR event
// echoing the command's correlation id, rather than being silently dropped
// (the to-driver ring has no notion of "unknown command is fine"; every
// decoded command must resolve to a registered handler).
func (d *Dispatcher) Dispatch(cmd Command) []Event {
	switch cmd.Type {
	case CmdAddPublication:
		if d.OnAddPublication != nil {
			return d.OnAddPublication(cmd)
		}
	case CmdRemovePublication:
		if d.OnRemovePublication != nil {
			return d.OnRemovePublication(cmd)
		}
	case CmdAddSubscription:
		if d.OnAddSubscription != nil {
			return d.OnAddSubscription(cmd)
		}
	case CmdRemoveSubscription:
		if d.OnRemoveSubscription != nil {
			return d.OnRemoveSubscription(cmd)
		}
	case CmdClientKeepalive:
		if d.OnClientKeepalive != nil {
			return d.OnClientKeepalive(cmd)
		}
	case CmdClientClose:
		if d.OnClientClose != nil {
			return d.OnClientClose(cmd)
		}
	case CmdAddCounter, CmdAddStaticCounter:
		if d.OnAddCounter != nil {
			return d.OnAddCounter(cmd)
		}
	case CmdRemoveCounter:
		if d.OnRemoveCounter != nil {
			return d.OnRemoveCounter(cmd)
		}
	case CmdAddRcvDestination:
		if d.OnAddRcvDestination != nil {
			return d.OnAddRcvDestination(cmd)
		}
	case CmdRemoveRcvDestination:
		if d.OnRemoveRcvDestination != nil {
			return d.OnRemoveRcvDestination(cmd)
		}
	case CmdTerminateDriver:
		if d.OnTerminateDriver != nil {
			return d.OnTerminateDriver(cmd)
		}
	case CmdAddExclusivePublication:
		if d.OnAddExclusivePublication != nil {
			return d.OnAddExclusivePublication(cmd)
		}
	case CmdAddDestination:
		if d.OnAddDestination != nil {
			return d.OnAddDestination(cmd)
		}
	case CmdRemoveDestination:
		if d.OnRemoveDestination != nil {
			return d.OnRemoveDestination(cmd)
		}
	case CmdNextAvailableSessionId:
		if d.OnNextAvailableSessionId != nil {
			return d.OnNextAvailableSessionId(cmd)
		}
	case CmdRejectImage:
		if d.OnRejectImage != nil {
			return d.OnRejectImage(cmd)
		}
	}
	d.log.Warn("no handler registered for command", "type", cmd.Type.String(), "correlation_id", cmd.CorrelationID)
	return []Event{{Type: EventOnError, CorrelationID: cmd.CorrelationID, ErrorMessage: "no handler registered for " + cmd.Type.String()}}
}
