package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ruslan361/task-168/internal/envelope"
)

// errBadJSON marks a frame that arrived intact but did not decode. The
// connection itself is still healthy and the read loop keeps going.
var errBadJSON = errors.New("malformed json frame")

// writeWait bounds one frame write. A wedged peer socket must not stall the
// opposite leg's read loop behind the write mutex.
const writeWait = 10 * time.Second

// Peer wraps one WebSocket connection. Envelope writes come from several
// goroutines (the opposite leg's read loop and the analysis sink), so every
// write goes through the mutex.
type Peer struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func newPeer(conn *websocket.Conn) *Peer {
	return &Peer{conn: conn, timeout: writeWait}
}

// Send writes one envelope as a JSON text frame. The write carries a
// deadline; a peer that stops draining its socket gets an error here, not a
// hung relay.
func (p *Peer) Send(env envelope.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(p.timeout))
	return p.conn.WriteJSON(env)
}

// Refuse closes the connection with a policy-violation close frame. Used for
// latecomers when the role slot is already taken.
func (p *Peer) Refuse(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	deadline := time.Now().Add(p.timeout)
	p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	p.conn.Close()
}

// Close tears down the connection without a close frame.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.Close()
}

// read blocks for the next envelope on the connection. A decode failure is
// reported as errBadJSON and leaves the connection usable.
func (p *Peer) read() (envelope.Envelope, error) {
	_, data, err := p.conn.ReadMessage()
	if err != nil {
		return envelope.Envelope{}, err
	}
	var env envelope.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope.Envelope{}, fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return env, nil
}
