package call

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Ruslan361/task-168/internal/envelope"
	"github.com/Ruslan361/task-168/internal/media"
	"github.com/Ruslan361/task-168/internal/util"
)

// ErrBadState is returned when a user action is not legal in the current
// call state.
var ErrBadState = errors.New("action not allowed in current call state")

// ClientCall is the client-side call state machine.
//
// It owns at most one callSession (exactly when not idle) and decides, for
// each event, what is legal and which media-session call and outgoing
// envelope follow. Surfaces render its state through State() and the notify
// callback; they hold no call state of their own.
type ClientCall struct {
	mu      sync.Mutex
	state   ClientState
	session *callSession
	gen     uint64

	newSession media.Factory
	send       func(envelope.Envelope) error
	notify     func(text string)
}

// NewClientCall builds an idle machine. send delivers envelopes to the
// relay; notify surfaces user-visible call notices.
func NewClientCall(factory media.Factory, send func(envelope.Envelope) error, notify func(string)) *ClientCall {
	if notify == nil {
		notify = func(string) {}
	}
	return &ClientCall{
		state:      ClientIdle,
		newSession: factory,
		send:       send,
		notify:     notify,
	}
}

// State returns the current call state.
func (c *ClientCall) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartCall handles the user clicking call while idle: a fresh session
// produces a local offer which travels to the operator as request_call.
func (c *ClientCall) StartCall() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != ClientIdle {
		return fmt.Errorf("%w: %s", ErrBadState, c.state)
	}

	sdp, err := c.createSessionLocked(InitiatorClient, true)
	if err != nil {
		return err
	}

	c.out(envelope.Envelope{Type: envelope.TypeRequestCall, SDP: sdp})
	c.setStateLocked(ClientRequesting)
	c.notify("Calling the operator, waiting for a response.")
	return nil
}

// createSessionLocked builds a session and, when withOffer is set, produces
// the local offer. Failure releases everything built so far.
func (c *ClientCall) createSessionLocked(init Initiator, withOffer bool) (string, error) {
	gen := c.gen + 1
	c.gen = gen

	sess, err := c.newSession(media.Callbacks{
		OnCandidate: func(raw json.RawMessage) { c.mediaCandidate(gen, raw) },
		OnState:     func(s media.State) { c.mediaState(gen, s) },
	})
	if err != nil {
		return "", fmt.Errorf("create media session: %w", err)
	}
	c.session = &callSession{initiator: init, media: sess, gen: gen}

	if !withOffer {
		return "", nil
	}

	sdp, err := sess.CreateOffer()
	if err != nil {
		c.releaseLocked()
		return "", fmt.Errorf("create offer: %w", err)
	}
	return sdp, nil
}

// HandleOffer processes a webrtc_offer from the operator. Three cases:
//
//   - requesting: the operator answered our callback request with its own
//     offer. The request-phase session (whose local offer was never
//     answered) is discarded and negotiation restarts cleanly from the
//     operator's offer.
//   - idle: an unsolicited incoming call, held for user accept/decline.
//   - anything else: we are busy; the offer is refused with client_busy.
func (c *ClientCall) HandleOffer(sdp string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sdp == "" {
		util.LogWarning("client call: offer without sdp, ignored")
		c.notify("Received a malformed call offer from the operator.")
		return
	}

	switch c.state {
	case ClientRequesting:
		if c.session == nil || !c.session.media.HasLocalOffer() {
			util.LogWarning("client call: offer in requesting state without a pending local offer")
			c.failLocked("Could not process the operator's response.")
			return
		}
		// Drop our own unanswered offer, answer the operator's instead.
		c.session.close()
		c.session = nil
		if _, err := c.createSessionLocked(InitiatorClient, false); err != nil {
			c.failLocked("Could not process the operator's response.")
			return
		}
		if err := c.answerLocked(sdp); err != nil {
			util.LogWarning("client call: %v", err)
			c.failLocked("Could not process the operator's response.")
			return
		}
		c.setStateLocked(ClientConnecting)

	case ClientIdle:
		if _, err := c.createSessionLocked(InitiatorOperator, false); err != nil {
			util.LogWarning("client call: %v", err)
			c.failLocked("Could not process the incoming call.")
			return
		}
		if err := c.session.media.SetRemoteOffer(sdp); err != nil {
			util.LogWarning("client call: %v", err)
			c.failLocked("Could not process the incoming call.")
			return
		}
		c.setStateLocked(ClientIncoming)
		c.notify("Incoming call from the operator. Accept?")

	default:
		c.out(envelope.Envelope{Type: envelope.TypeClientBusy})
		util.LogDebug("client call: offer refused, state %s", c.state)
	}
}

// Accept handles the user accepting an incoming call.
func (c *ClientCall) Accept() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != ClientIncoming || c.session == nil {
		return fmt.Errorf("%w: %s", ErrBadState, c.state)
	}

	c.out(envelope.Envelope{Type: envelope.TypeClientAcceptedCall})
	if err := c.answerLocked(""); err != nil {
		c.failLocked("Could not accept the call.")
		return err
	}
	c.setStateLocked(ClientConnecting)
	return nil
}

// answerLocked applies the remote offer when given and sends our answer.
func (c *ClientCall) answerLocked(remoteOffer string) error {
	if remoteOffer != "" {
		if err := c.session.media.SetRemoteOffer(remoteOffer); err != nil {
			return fmt.Errorf("apply remote offer: %w", err)
		}
	}
	sdp, err := c.session.media.CreateAnswer()
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	c.out(envelope.Envelope{Type: envelope.TypeAnswer, SDP: sdp})
	return nil
}

// Decline handles the user declining an incoming call.
func (c *ClientCall) Decline() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != ClientIncoming {
		return fmt.Errorf("%w: %s", ErrBadState, c.state)
	}

	c.out(envelope.Envelope{Type: envelope.TypeClientDeclinedCall})
	c.releaseLocked()
	c.notify("Incoming call declined.")
	return nil
}

// Hangup handles the user ending the call. A no-op when idle. webrtc_hangup
// is emitted only once negotiation progressed past the request phase; a
// cancelled request just releases locally.
func (c *ClientCall) Hangup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == ClientIdle {
		return
	}
	progressed := c.state == ClientConnecting || c.state == ClientConnected
	c.setStateLocked(ClientHangingUp)
	if progressed {
		c.out(envelope.Envelope{Type: envelope.TypeHangup})
	}
	c.releaseLocked()
	c.notify("Call ended.")
}

// HandleOperatorHangup processes operator_hangup. The operator is already
// gone from the call, so nothing is sent back.
func (c *ClientCall) HandleOperatorHangup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == ClientIdle {
		return
	}
	c.releaseLocked()
	c.notify("The operator ended the call.")
}

// HandleBusy processes webrtc_busy: the operator cannot take the call.
func (c *ClientCall) HandleBusy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == ClientIdle {
		return
	}
	c.releaseLocked()
	c.notify("The operator is busy. Try again later.")
}

// HandleDeclined processes call_declined_by_operator.
func (c *ClientCall) HandleDeclined() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == ClientIdle {
		return
	}
	c.releaseLocked()
	c.notify("The operator declined your call request.")
}

// HandleCandidate applies a remote connectivity candidate. Without a session
// the candidate is dropped; candidate application errors are non-fatal.
func (c *ClientCall) HandleCandidate(raw json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(raw) == 0 {
		util.LogWarning("client call: empty candidate, ignored")
		return
	}
	if c.session == nil {
		util.LogDebug("client call: candidate without a session, dropped")
		return
	}
	if err := c.session.media.AddCandidate(raw); err != nil {
		util.LogWarning("client call: add candidate: %v", err)
	}
}

// ConnectionLost handles the relay connection closing: the call unwinds
// locally and nothing further is sent.
func (c *ClientCall) ConnectionLost() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == ClientIdle {
		return
	}
	c.releaseLocked()
	c.notify("Connection lost, call ended.")
}

// mediaCandidate forwards a locally gathered candidate to the operator.
func (c *ClientCall) mediaCandidate(gen uint64, raw json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.session.gen != gen {
		return
	}
	c.out(envelope.Envelope{Type: envelope.TypeCandidate, Candidate: raw})
}

// mediaState reacts to connectivity transitions reported by the media layer.
// Stale generations are ignored: the machine may already have moved on.
func (c *ClientCall) mediaState(gen uint64, s media.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.session.gen != gen {
		return
	}

	switch {
	case s == media.StateConnected:
		if c.state == ClientConnecting || c.state == ClientConnected {
			c.setStateLocked(ClientConnected)
			c.notify("Voice connection established.")
		}
	case s.Terminal():
		c.releaseLocked()
		c.notify("Voice connection closed.")
	}
}

// failLocked unwinds a half-built call after a resource error.
func (c *ClientCall) failLocked(userText string) {
	c.releaseLocked()
	c.notify(userText)
}

// releaseLocked destroys the session (if any) and returns to idle.
func (c *ClientCall) releaseLocked() {
	c.session.close()
	c.session = nil
	c.setStateLocked(ClientIdle)
}

func (c *ClientCall) setStateLocked(s ClientState) {
	if s != c.state {
		util.LogDebug("client call: %s -> %s", c.state, s)
		c.state = s
	}
}

// out sends an envelope, logging rather than failing on transport errors;
// a dead connection is handled by ConnectionLost.
func (c *ClientCall) out(env envelope.Envelope) {
	if err := c.send(env); err != nil {
		util.LogWarning("client call: send %s: %v", env.Type, err)
	}
}
