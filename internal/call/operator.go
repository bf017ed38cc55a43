package call

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Ruslan361/task-168/internal/envelope"
	"github.com/Ruslan361/task-168/internal/media"
	"github.com/Ruslan361/task-168/internal/util"
)

// OperatorCall is the operator-side call state machine.
//
// Compared to the client machine it carries one extra piece of state: the
// pending-request slot, holding the identity of a client that asked to be
// called back and is awaiting the operator's accept or decline.
type OperatorCall struct {
	mu      sync.Mutex
	state   OperatorState
	session *callSession
	gen     uint64

	pending string // client id of an unanswered callback request
	peer    string // client id of the active call, when a session exists

	newSession media.Factory
	send       func(envelope.Envelope) error
	notify     func(text string)
}

// NewOperatorCall builds an idle machine.
func NewOperatorCall(factory media.Factory, send func(envelope.Envelope) error, notify func(string)) *OperatorCall {
	if notify == nil {
		notify = func(string) {}
	}
	return &OperatorCall{
		state:      OperatorIdle,
		newSession: factory,
		send:       send,
		notify:     notify,
	}
}

// State returns the current call state.
func (o *OperatorCall) State() OperatorState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// PendingClient returns the id in the pending-request slot, if any.
func (o *OperatorCall) PendingClient() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending
}

// HandleRequestCall processes client_request_call. Busy operators refuse the
// request immediately; a free operator parks it in the pending slot for a
// user decision.
func (o *OperatorCall) HandleRequestCall(clientID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != OperatorIdle || o.pending != "" {
		o.out(envelope.Envelope{Type: envelope.TypeOperatorBusy, TargetClientID: clientID})
		o.notify(fmt.Sprintf("Call request from %s refused: already busy.", shortID(clientID)))
		return
	}

	o.pending = clientID
	o.setStateLocked(OperatorPendingRequest)
	o.notify(fmt.Sprintf("Incoming call request from client %s.", shortID(clientID)))
}

// AcceptRequest handles the operator accepting a pending callback request:
// the pending id is consumed and the normal outbound-call path runs.
func (o *OperatorCall) AcceptRequest() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != OperatorPendingRequest || o.pending == "" {
		return fmt.Errorf("%w: no pending call request", ErrBadState)
	}

	clientID := o.pending
	o.pending = ""
	o.setStateLocked(OperatorIdle)
	return o.callLocked(clientID)
}

// DeclineRequest handles the operator declining a pending callback request.
func (o *OperatorCall) DeclineRequest() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != OperatorPendingRequest || o.pending == "" {
		return fmt.Errorf("%w: no pending call request", ErrBadState)
	}

	o.out(envelope.Envelope{Type: envelope.TypeCallDeclined, TargetClientID: o.pending})
	o.notify(fmt.Sprintf("Call request from %s declined.", shortID(o.pending)))
	o.pending = ""
	o.setStateLocked(OperatorIdle)
	return nil
}

// Call handles the operator dialing the given client from idle.
func (o *OperatorCall) Call(clientID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != OperatorIdle {
		return fmt.Errorf("%w: %s", ErrBadState, o.state)
	}
	return o.callLocked(clientID)
}

// callLocked creates a session, produces the offer, and dials.
func (o *OperatorCall) callLocked(clientID string) error {
	if clientID == "" {
		return fmt.Errorf("%w: no client to call", ErrBadState)
	}

	gen := o.gen + 1
	o.gen = gen

	sess, err := o.newSession(media.Callbacks{
		OnCandidate: func(raw json.RawMessage) { o.mediaCandidate(gen, raw) },
		OnState:     func(s media.State) { o.mediaState(gen, s) },
	})
	if err != nil {
		return fmt.Errorf("create media session: %w", err)
	}
	o.session = &callSession{initiator: InitiatorOperator, media: sess, gen: gen}
	o.peer = clientID

	sdp, err := sess.CreateOffer()
	if err != nil {
		o.releaseLocked()
		return fmt.Errorf("create offer: %w", err)
	}

	o.out(envelope.Envelope{Type: envelope.TypeOffer, TargetClientID: clientID, SDP: sdp})
	o.setStateLocked(OperatorCalling)
	o.notify(fmt.Sprintf("Calling client %s.", shortID(clientID)))
	return nil
}

// HandleAnswer applies the client's answer to the outstanding offer. Answers
// arriving after the session is gone are logged and ignored.
func (o *OperatorCall) HandleAnswer(sdp string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if sdp == "" {
		util.LogWarning("operator call: answer without sdp, ignored")
		o.notify("Received a malformed call answer from the client.")
		return
	}
	if o.session == nil {
		util.LogDebug("operator call: answer without a session, dropped")
		return
	}
	if err := o.session.media.SetRemoteAnswer(sdp); err != nil {
		util.LogWarning("operator call: %v", err)
		o.releaseLocked()
		o.notify("Could not apply the client's answer, call ended.")
	}
}

// HandleCandidate applies a remote connectivity candidate.
func (o *OperatorCall) HandleCandidate(raw json.RawMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(raw) == 0 {
		util.LogWarning("operator call: empty candidate, ignored")
		return
	}
	if o.session == nil {
		util.LogDebug("operator call: candidate without a session, dropped")
		return
	}
	if err := o.session.media.AddCandidate(raw); err != nil {
		util.LogWarning("operator call: add candidate: %v", err)
	}
}

// HandleClientAccepted processes the informational client_accepted_call: no
// transition, only a note — the machine already sits in calling and waits
// for the answer and the media layer.
func (o *OperatorCall) HandleClientAccepted(clientID string) {
	o.notify(fmt.Sprintf("Client %s accepted the call, connecting.", shortID(clientID)))
}

// HandleClientHangup processes client_hangup.
func (o *OperatorCall) HandleClientHangup() {
	o.endRemotely("The client ended the call.")
}

// HandleClientDeclined processes client_declined_call.
func (o *OperatorCall) HandleClientDeclined() {
	o.endRemotely("The client declined the call.")
}

// HandleClientBusy processes client_busy.
func (o *OperatorCall) HandleClientBusy() {
	o.endRemotely("The client is busy.")
}

// endRemotely releases the session after the client left the call; the
// client is gone, so nothing is sent back.
func (o *OperatorCall) endRemotely(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return
	}
	o.releaseLocked()
	o.notify(text)
}

// HandleClientDisconnected processes the presence change: a vanished client
// clears a pending request from it and ends any call with it.
func (o *OperatorCall) HandleClientDisconnected(clientID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pending == clientID && o.pending != "" {
		o.pending = ""
		if o.state == OperatorPendingRequest {
			o.setStateLocked(OperatorIdle)
		}
		o.notify(fmt.Sprintf("Client %s disconnected, request dropped.", shortID(clientID)))
	}
	if o.session != nil && o.peer == clientID {
		o.releaseLocked()
		o.notify("The client disconnected, call ended.")
	}
}

// Hangup handles the operator ending the call. A no-op without a session,
// so hanging up twice never emits a duplicate webrtc_hangup.
func (o *OperatorCall) Hangup() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return
	}
	o.out(envelope.Envelope{Type: envelope.TypeHangup, TargetClientID: o.peer})
	o.releaseLocked()
	o.notify("Call ended.")
}

// ConnectionLost handles the relay connection closing.
func (o *OperatorCall) ConnectionLost() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pending = ""
	if o.state == OperatorIdle && o.session == nil {
		return
	}
	o.releaseLocked()
	o.notify("Connection lost, call ended.")
}

// mediaCandidate forwards a locally gathered candidate to the client.
func (o *OperatorCall) mediaCandidate(gen uint64, raw json.RawMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil || o.session.gen != gen {
		return
	}
	o.out(envelope.Envelope{Type: envelope.TypeCandidate, TargetClientID: o.peer, Candidate: raw})
}

// mediaState reacts to connectivity transitions; stale generations are
// ignored.
func (o *OperatorCall) mediaState(gen uint64, s media.State) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil || o.session.gen != gen {
		return
	}

	switch {
	case s == media.StateConnected:
		if o.state == OperatorCalling || o.state == OperatorConnected {
			o.setStateLocked(OperatorConnected)
			o.notify("Voice connection established.")
		}
	case s.Terminal():
		o.releaseLocked()
		o.notify("Voice connection closed.")
	}
}

// releaseLocked destroys the session (if any) and returns to idle.
func (o *OperatorCall) releaseLocked() {
	o.session.close()
	o.session = nil
	o.peer = ""
	o.setStateLocked(OperatorIdle)
}

func (o *OperatorCall) setStateLocked(s OperatorState) {
	if s != o.state {
		util.LogDebug("operator call: %s -> %s", o.state, s)
		o.state = s
	}
}

func (o *OperatorCall) out(env envelope.Envelope) {
	if err := o.send(env); err != nil {
		util.LogWarning("operator call: send %s: %v", env.Type, err)
	}
}

// shortID abbreviates a client id for notices.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8] + "…"
	}
	return id
}
