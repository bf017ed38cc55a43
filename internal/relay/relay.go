// Package relay implements the rendezvous server between the single support
// client and the single operator. It owns no call state: every signaling
// envelope is validated, translated between the two identity conventions,
// and forwarded. Call semantics live entirely in the two endpoints.
package relay

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"

	"github.com/Ruslan361/task-168/internal/analysis"
	"github.com/Ruslan361/task-168/internal/envelope"
	"github.com/Ruslan361/task-168/internal/util"
)

// Relay holds the two role slots and the analysis runner.
type Relay struct {
	reg      *Registry
	analyzer *analysis.Runner
}

// New builds a relay. analyzerCmd is the external analyzer command line;
// empty disables analysis. ctx bounds the analyzer processes, not any one
// connection: an analysis started by a message keeps running after the
// sender disconnects and stops only when ctx is cancelled at shutdown.
func New(ctx context.Context, analyzerCmd string) *Relay {
	r := &Relay{reg: NewRegistry()}
	r.analyzer = analysis.NewRunner(ctx, analyzerCmd, r.deliverAnalysis)
	return r
}

// Registry exposes the slot registry, mainly for tests.
func (r *Relay) Registry() *Registry {
	return r.reg
}

// deliverAnalysis forwards one analyzer result to the operator, if one is
// connected: the structured object verbatim, then the short suggestion when
// the analyzer produced one.
func (r *Relay) deliverAnalysis(res analysis.Results) {
	op := r.reg.Operator()
	if op == nil {
		util.LogWarning("relay: analysis results ready but no operator connected")
		return
	}
	if err := op.Send(envelope.ProcessingResults(res.Raw)); err != nil {
		util.LogWarning("relay: send processing results: %v", err)
		return
	}
	util.Stats.AddToOperator()
	if res.Suggestion != "" {
		if err := op.Send(envelope.AISuggestion(res.Suggestion)); err != nil {
			util.LogWarning("relay: send suggestion: %v", err)
			return
		}
		util.Stats.AddToOperator()
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Client leg
// ──────────────────────────────────────────────────────────────────────────────

// ServeClient runs the read loop for one client connection. It returns when
// the connection dies; the caller owns nothing afterwards.
func (r *Relay) ServeClient(conn *websocket.Conn) {
	p := newPeer(conn)

	id, err := r.reg.Acquire(RoleClient, p)
	if err != nil {
		util.LogWarning("relay: client refused: %v", err)
		p.Refuse("slot occupied")
		return
	}
	util.LogInfo("relay: client connected: %s", id)

	if err := p.Send(envelope.YourID(id)); err != nil {
		util.LogWarning("relay: send your_id: %v", err)
	}
	if op := r.reg.Operator(); op != nil {
		r.toOperator(envelope.ClientConnected(id))
		r.toOperator(envelope.ActiveClients([]string{id}))
	}

	readErr := r.clientLoop(p, id)
	r.closeClient(p, id, readErr)
}

func (r *Relay) clientLoop(p *Peer, id string) error {
	for {
		env, err := p.read()
		if errors.Is(err, errBadJSON) {
			util.LogWarning("relay: client %s: %v", id, err)
			util.Stats.AddDropped()
			continue
		}
		if err != nil {
			return err
		}
		r.handleClient(p, id, env)
	}
}

func (r *Relay) handleClient(p *Peer, id string, env envelope.Envelope) {
	if err := env.Validate(); err != nil {
		util.LogWarning("relay: client %s: %v", id, err)
		util.Stats.AddDropped()
		return
	}
	if !envelope.FromClient(env.Type) {
		util.LogWarning("relay: client %s sent %q, not a client type", id, env.Type)
		util.Stats.AddDropped()
		return
	}

	// Analysis sees the message whether or not an operator is there to read
	// it; the results wait for whoever staffs the line next.
	var safeText string
	if env.Type == envelope.TypeMessage {
		safeText = envelope.SanitizeText(env.Text)
		r.analyzer.Dispatch(analysis.Event{ClientID: id, Text: safeText})
	}

	// Every client type forwards to the operator; absence is answered
	// in-band, never dropped silently.
	if r.reg.Operator() == nil {
		util.Stats.AddDropped()
		r.reply(p, operatorAbsentError(env.Type))
		return
	}

	switch env.Type {
	case envelope.TypeMessage:
		r.toOperator(envelope.Envelope{Type: envelope.TypeClientMessage, ClientID: id, Text: safeText})

	case envelope.TypeRequestCall:
		// The request-phase offer is advisory: the operator always dials
		// back with its own offer, so only the request itself travels on.
		r.toOperator(envelope.Envelope{Type: envelope.TypeClientRequestCall, ClientID: id})

	case envelope.TypeAnswer:
		r.toOperator(envelope.Envelope{Type: envelope.TypeAnswer, ClientID: id, SDP: env.SDP})

	case envelope.TypeCandidate:
		r.toOperator(envelope.Envelope{Type: envelope.TypeCandidate, ClientID: id, Candidate: env.Candidate})

	case envelope.TypeHangup:
		r.toOperator(envelope.Envelope{Type: envelope.TypeClientHangup, ClientID: id})

	case envelope.TypeClientAcceptedCall, envelope.TypeClientDeclinedCall, envelope.TypeClientBusy:
		r.toOperator(envelope.Envelope{Type: env.Type, ClientID: id})
	}
}

// operatorAbsentError picks the user-facing text for a message that found
// no operator.
func operatorAbsentError(t envelope.Type) envelope.Envelope {
	switch t {
	case envelope.TypeRequestCall:
		return envelope.SystemError("The operator is offline. Try again later.")
	case envelope.TypeMessage:
		return envelope.SystemError("Could not deliver the message: the operator is not connected.")
	}
	return envelope.SystemError("The operator is not connected.")
}

// closeClient releases the slot and synthesizes the disconnect pair for the
// operator: presence change first, then the hangup that ends any call.
func (r *Relay) closeClient(p *Peer, id string, readErr error) {
	p.Close()
	if _, ok := r.reg.Release(RoleClient, p); !ok {
		return
	}

	if isCleanClose(readErr) {
		util.LogInfo("relay: client disconnected: %s", id)
		r.toOperator(envelope.ClientDisconnected(id, closeReason(readErr)))
	} else {
		util.LogWarning("relay: client %s connection error: %v", id, readErr)
		r.toOperator(envelope.ClientError(id, readErr.Error()))
	}
	r.toOperator(envelope.Envelope{Type: envelope.TypeClientHangup, ClientID: id})
}

// ──────────────────────────────────────────────────────────────────────────────
// Operator leg
// ──────────────────────────────────────────────────────────────────────────────

// ServeOperator runs the read loop for one operator connection.
func (r *Relay) ServeOperator(conn *websocket.Conn) {
	p := newPeer(conn)

	if _, err := r.reg.Acquire(RoleOperator, p); err != nil {
		util.LogWarning("relay: operator refused: %v", err)
		p.Refuse("slot occupied")
		return
	}
	util.LogInfo("relay: operator connected")

	_, clientID := r.reg.Client()
	var ids []string
	if clientID != "" {
		ids = []string{clientID}
	}
	if err := p.Send(envelope.ActiveClients(ids)); err != nil {
		util.LogWarning("relay: send active_clients: %v", err)
	}
	if clientID != "" {
		if err := p.Send(envelope.ClientConnected(clientID)); err != nil {
			util.LogWarning("relay: send client_connected: %v", err)
		}
	}

	readErr := r.operatorLoop(p)
	r.closeOperator(p, readErr)
}

func (r *Relay) operatorLoop(p *Peer) error {
	for {
		env, err := p.read()
		if errors.Is(err, errBadJSON) {
			util.LogWarning("relay: operator: %v", err)
			util.Stats.AddDropped()
			r.reply(p, envelope.SystemError("Error processing your message."))
			continue
		}
		if err != nil {
			return err
		}
		r.handleOperator(p, env)
	}
}

func (r *Relay) handleOperator(p *Peer, env envelope.Envelope) {
	// The operator never answers; it is always the offerer in this protocol.
	if env.Type == envelope.TypeAnswer {
		util.Stats.AddDropped()
		r.reply(p, envelope.SystemError("Unexpected webrtc_answer: the operator must not send answers."))
		return
	}
	if err := env.Validate(); err != nil {
		util.Stats.AddDropped()
		r.reply(p, envelope.SystemError("Invalid message: "+err.Error()))
		return
	}
	if !envelope.FromOperator(env.Type) {
		util.Stats.AddDropped()
		r.reply(p, envelope.SystemError("Unknown message type: "+string(env.Type)))
		return
	}

	// Every operator type forwards to the client; absence is answered
	// in-band, never dropped silently.
	cl, clientID := r.reg.Client()
	if cl == nil {
		util.Stats.AddDropped()
		r.reply(p, clientAbsentError(env.Type))
		return
	}

	switch env.Type {
	case envelope.TypeMessageToClient:
		safe := envelope.SanitizeText(env.Text)
		r.analyzer.Dispatch(analysis.Event{ClientID: clientID, Text: safe})
		r.toClient(envelope.Envelope{Type: envelope.TypeOperatorMessage, Text: safe})

	case envelope.TypeOffer:
		r.toClient(envelope.Envelope{Type: envelope.TypeOffer, SDP: env.SDP})

	case envelope.TypeCandidate:
		r.toClient(envelope.Envelope{Type: envelope.TypeCandidate, Candidate: env.Candidate})

	case envelope.TypeHangup:
		r.toClient(envelope.Envelope{Type: envelope.TypeOperatorHangup})

	case envelope.TypeCallDeclined:
		r.toClient(envelope.Envelope{Type: envelope.TypeCallDeclined})

	case envelope.TypeOperatorBusy:
		// The client-side vocabulary for "operator cannot take the call"
		// is webrtc_busy.
		r.toClient(envelope.Envelope{Type: envelope.TypeBusy})
	}
}

// clientAbsentError picks the user-facing text for a message that found no
// client.
func clientAbsentError(t envelope.Type) envelope.Envelope {
	switch t {
	case envelope.TypeMessageToClient:
		return envelope.SystemError("Could not deliver the message: the client is not connected.")
	case envelope.TypeOffer:
		return envelope.SystemError("Could not start the call: the client is not connected.")
	}
	return envelope.SystemError("The client is not connected.")
}

// closeOperator releases the slot and synthesizes the disconnect pair for
// the client.
func (r *Relay) closeOperator(p *Peer, readErr error) {
	p.Close()
	if _, ok := r.reg.Release(RoleOperator, p); !ok {
		return
	}

	if isCleanClose(readErr) {
		util.LogInfo("relay: operator disconnected")
		r.toClient(envelope.Envelope{Type: envelope.TypeOperatorDisconnected})
	} else {
		util.LogWarning("relay: operator connection error: %v", readErr)
		r.toClient(envelope.Envelope{Type: envelope.TypeOperatorError})
	}
	r.toClient(envelope.Envelope{Type: envelope.TypeOperatorHangup})
}

// ──────────────────────────────────────────────────────────────────────────────
// Forwarding helpers
// ──────────────────────────────────────────────────────────────────────────────

// toOperator forwards to the operator slot; silently dropped when empty,
// matching the one-sided nature of presence messages.
func (r *Relay) toOperator(env envelope.Envelope) {
	op := r.reg.Operator()
	if op == nil {
		util.LogDebug("relay: no operator, dropped %s", env.Type)
		util.Stats.AddDropped()
		return
	}
	if err := op.Send(env); err != nil {
		util.LogWarning("relay: send %s to operator: %v", env.Type, err)
		return
	}
	util.Stats.AddToOperator()
}

func (r *Relay) toClient(env envelope.Envelope) {
	cl, _ := r.reg.Client()
	if cl == nil {
		util.LogDebug("relay: no client, dropped %s", env.Type)
		util.Stats.AddDropped()
		return
	}
	if err := cl.Send(env); err != nil {
		util.LogWarning("relay: send %s to client: %v", env.Type, err)
		return
	}
	util.Stats.AddToClient()
}

// reply answers the sender directly, outside the forwarding stats.
func (r *Relay) reply(p *Peer, env envelope.Envelope) {
	if err := p.Send(env); err != nil {
		util.LogWarning("relay: send %s: %v", env.Type, err)
	}
}

// isCleanClose reports whether the read loop ended with an orderly close
// frame rather than a transport failure.
func isCleanClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived)
}

// closeReason extracts the peer-supplied close reason, if any.
func closeReason(err error) string {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Text
	}
	return ""
}
