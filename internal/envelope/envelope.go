// Package envelope defines the JSON message format exchanged over both
// WebSocket legs of the relay, and the validity rules for each message type.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Type identifies the kind of signaling message.
type Type string

// Client → server.
const (
	TypeMessage            Type = "message"
	TypeRequestCall        Type = "request_call"
	TypeAnswer             Type = "webrtc_answer"
	TypeCandidate          Type = "webrtc_candidate"
	TypeHangup             Type = "webrtc_hangup"
	TypeClientAcceptedCall Type = "client_accepted_call"
	TypeClientDeclinedCall Type = "client_declined_call"
	TypeClientBusy         Type = "client_busy"
)

// Server → client.
const (
	TypeYourID               Type = "your_id"
	TypeOperatorMessage      Type = "operator_message"
	TypeOffer                Type = "webrtc_offer"
	TypeOperatorHangup       Type = "operator_hangup"
	TypeOperatorDisconnected Type = "operator_disconnected"
	TypeOperatorError        Type = "operator_error"
	TypeBusy                 Type = "webrtc_busy"
	TypeCallDeclined         Type = "call_declined_by_operator"
	TypeSystemError          Type = "system_error"
)

// Operator → server. TypeOffer, TypeCandidate, TypeHangup and
// TypeCallDeclined are shared with the lists above.
const (
	TypeMessageToClient Type = "message_to_client"
	TypeOperatorBusy    Type = "operator_busy"
)

// Server → operator. The webrtc_* and client_* types above are reused with a
// clientId injected by the relay.
const (
	TypeActiveClients      Type = "active_clients"
	TypeClientConnected    Type = "client_connected"
	TypeClientDisconnected Type = "client_disconnected"
	TypeClientError        Type = "client_error"
	TypeClientMessage      Type = "client_message"
	TypeClientRequestCall  Type = "client_request_call"
	TypeClientHangup       Type = "client_hangup"
	TypeProcessingResults  Type = "processing_results"
	TypeAISuggestion       Type = "ai_suggestion"
)

var (
	// ErrUnknownType marks an envelope whose type is not in the taxonomy.
	ErrUnknownType = errors.New("unknown envelope type")
	// ErrMissingPayload marks an envelope whose type-specific required field
	// is empty. The receiver must not act on such a message.
	ErrMissingPayload = errors.New("missing required payload")
)

// Envelope is the JSON structure exchanged over both WebSocket connections.
// Which optional fields are meaningful depends on Type; Validate enforces
// the required ones.
type Envelope struct {
	Type Type `json:"type"`

	Text      string          `json:"text,omitempty"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`

	// Identity fields. ClientID is injected by the relay on the operator leg
	// and stripped on the client leg; TargetClientID is how the operator
	// addresses the (single) client.
	ClientID       string   `json:"clientId,omitempty"`
	TargetClientID string   `json:"targetClientId,omitempty"`
	ClientIDs      []string `json:"clientIds,omitempty"`

	Reason string          `json:"reason,omitempty"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Validate checks that the type is recognized and that the type-specific
// required payload is present. SDP- and candidate-bearing types with an
// empty payload are malformed by contract.
func (e *Envelope) Validate() error {
	switch e.Type {
	case TypeMessage, TypeMessageToClient, TypeOperatorMessage, TypeClientMessage:
		if e.Text == "" {
			return fmt.Errorf("%w: %q needs text", ErrMissingPayload, e.Type)
		}
	case TypeRequestCall, TypeOffer, TypeAnswer:
		if e.SDP == "" {
			return fmt.Errorf("%w: %q needs sdp", ErrMissingPayload, e.Type)
		}
	case TypeCandidate:
		if emptyJSON(e.Candidate) {
			return fmt.Errorf("%w: %q needs candidate", ErrMissingPayload, e.Type)
		}
	case TypeHangup, TypeClientAcceptedCall, TypeClientDeclinedCall, TypeClientBusy,
		TypeYourID, TypeOperatorHangup, TypeOperatorDisconnected, TypeOperatorError,
		TypeBusy, TypeCallDeclined, TypeSystemError, TypeOperatorBusy,
		TypeActiveClients, TypeClientConnected, TypeClientDisconnected,
		TypeClientError, TypeClientRequestCall, TypeClientHangup,
		TypeProcessingResults, TypeAISuggestion:
		// No required payload beyond the type itself.
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	return nil
}

// FromClient reports whether the client side is allowed to send t.
func FromClient(t Type) bool {
	switch t {
	case TypeMessage, TypeRequestCall, TypeAnswer, TypeCandidate, TypeHangup,
		TypeClientAcceptedCall, TypeClientDeclinedCall, TypeClientBusy:
		return true
	}
	return false
}

// FromOperator reports whether the operator side is allowed to send t.
// TypeAnswer is deliberately excluded: in this protocol the operator is
// always the offerer.
func FromOperator(t Type) bool {
	switch t {
	case TypeMessageToClient, TypeOffer, TypeCandidate, TypeHangup,
		TypeCallDeclined, TypeOperatorBusy:
		return true
	}
	return false
}

func emptyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// SanitizeText neutralizes HTML angle brackets in free-form chat text before
// it is relayed or handed to the analysis subprocess.
func SanitizeText(s string) string {
	s = strings.ReplaceAll(s, "<", "&lt;")
	return strings.ReplaceAll(s, ">", "&gt;")
}

// ──────────────────────────────────────────────────────────────────────────────
// Server-synthesized envelopes
// ──────────────────────────────────────────────────────────────────────────────

// YourID is sent to a client immediately after its slot is assigned.
func YourID(clientID string) Envelope {
	return Envelope{Type: TypeYourID, ClientID: clientID}
}

// ActiveClients is sent to a newly joined operator; ids holds zero or one
// entries in this deployment.
func ActiveClients(ids []string) Envelope {
	if ids == nil {
		ids = []string{}
	}
	return Envelope{Type: TypeActiveClients, ClientIDs: ids}
}

// SystemError reports a protocol or peer-absence failure in-band.
func SystemError(text string) Envelope {
	return Envelope{Type: TypeSystemError, Text: text}
}

// ClientConnected notifies the operator about a new client.
func ClientConnected(clientID string) Envelope {
	return Envelope{Type: TypeClientConnected, ClientID: clientID}
}

// ClientDisconnected notifies the operator that the client slot was cleared.
func ClientDisconnected(clientID, reason string) Envelope {
	return Envelope{Type: TypeClientDisconnected, ClientID: clientID, Reason: reason}
}

// ClientError notifies the operator about a client transport failure.
func ClientError(clientID, errText string) Envelope {
	return Envelope{Type: TypeClientError, ClientID: clientID, Error: errText}
}

// ProcessingResults carries one analysis object to the operator verbatim.
func ProcessingResults(data json.RawMessage) Envelope {
	return Envelope{Type: TypeProcessingResults, Data: data}
}

// AISuggestion carries a short suggestion text derived from an analysis
// object to the operator.
func AISuggestion(text string) Envelope {
	return Envelope{Type: TypeAISuggestion, Text: text}
}
