// Package call implements the two call-lifecycle state machines: one for the
// client side and one for the operator side. Each machine is a synchronous
// reducer — every wire envelope, user action, and media event enters through
// a method that holds the machine's lock, so events are applied one at a
// time in arrival order.
package call

// ClientState is the client-side view of the call lifecycle.
type ClientState int

const (
	ClientIdle       ClientState = iota
	ClientRequesting             // own offer sent, awaiting the operator's response
	ClientIncoming               // unsolicited operator offer received, awaiting user accept/decline
	ClientConnecting             // answer sent, awaiting the media layer
	ClientConnected
	ClientHangingUp
)

func (s ClientState) String() string {
	switch s {
	case ClientIdle:
		return "idle"
	case ClientRequesting:
		return "requesting"
	case ClientIncoming:
		return "incoming"
	case ClientConnecting:
		return "connecting"
	case ClientConnected:
		return "connected"
	case ClientHangingUp:
		return "hangingup"
	}
	return "unknown"
}

// OperatorState is the operator-side view of the call lifecycle.
type OperatorState int

const (
	OperatorIdle           OperatorState = iota
	OperatorPendingRequest               // a client asked to be called back
	OperatorCalling                      // offer sent, awaiting answer / media layer
	OperatorConnected
)

func (s OperatorState) String() string {
	switch s {
	case OperatorIdle:
		return "idle"
	case OperatorPendingRequest:
		return "pending_request"
	case OperatorCalling:
		return "calling"
	case OperatorConnected:
		return "connected"
	}
	return "unknown"
}

// Initiator records which side started the call a session belongs to.
type Initiator int

const (
	InitiatorClient Initiator = iota
	InitiatorOperator
)
