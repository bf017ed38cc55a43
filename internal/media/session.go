// Package media abstracts the audio-call transport behind a small capability
// interface. The signaling state machines only ever negotiate session
// descriptions and candidates through it; microphone capture and the media
// path itself live entirely on the other side of this boundary.
package media

import "encoding/json"

// State is the connectivity state reported by a session. Transitions are
// asynchronous and externally driven; a state callback may fire at any time,
// including after the owner has already torn the session down.
type State int

const (
	StateNew State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal reports whether the state ends the call from the transport's
// point of view.
func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateFailed || s == StateClosed
}

// Callbacks are registered at session creation. Both may be invoked from
// transport-owned goroutines.
type Callbacks struct {
	// OnCandidate is invoked for every locally gathered connectivity
	// candidate, already serialized for the wire.
	OnCandidate func(raw json.RawMessage)
	// OnState is invoked on every connectivity state transition.
	OnState func(s State)
}

// Session is one negotiable audio session.
type Session interface {
	// CreateOffer produces and locally applies an offer description.
	CreateOffer() (sdp string, err error)
	// CreateAnswer produces and locally applies an answer description.
	// A remote offer must have been set first.
	CreateAnswer() (sdp string, err error)
	// SetRemoteOffer applies the peer's offer description.
	SetRemoteOffer(sdp string) error
	// SetRemoteAnswer applies the peer's answer description.
	SetRemoteAnswer(sdp string) error
	// AddCandidate applies a remote connectivity candidate. Candidates
	// arriving before any remote description are queued internally and
	// applied once one is set.
	AddCandidate(raw json.RawMessage) error
	// HasLocalOffer reports whether CreateOffer has succeeded on this
	// session.
	HasLocalOffer() bool
	// HasRemoteDescription reports whether a remote offer or answer has
	// been applied.
	HasRemoteDescription() bool
	// Close tears the session down and releases the transport. Safe to
	// call more than once.
	Close() error
}

// Factory creates a fresh Session wired to the given callbacks.
type Factory func(cb Callbacks) (Session, error)
