package relay

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Role names one of the two sides of the relay.
type Role string

const (
	RoleClient   Role = "client"
	RoleOperator Role = "operator"
)

// ErrSlotOccupied is returned when a connection tries to take a role that
// already has a live connection.
var ErrSlotOccupied = errors.New("slot occupied")

// Registry owns the two role slots. Acquire and Release are the only ways
// in and out, and both run under one mutex, so a connect racing a
// disconnect can never leave a stale peer in a slot.
type Registry struct {
	mu       sync.Mutex
	client   *Peer
	clientID string
	operator *Peer
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Acquire claims the slot for role. For the client role a fresh id is
// minted and returned; the operator role has no id. The slot is granted
// only when empty.
func (r *Registry) Acquire(role Role, p *Peer) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch role {
	case RoleClient:
		if r.client != nil {
			return "", ErrSlotOccupied
		}
		r.client = p
		r.clientID = uuid.New().String()
		return r.clientID, nil
	case RoleOperator:
		if r.operator != nil {
			return "", ErrSlotOccupied
		}
		r.operator = p
		return "", nil
	}
	return "", errors.New("unknown role " + string(role))
}

// Release clears the slot for role, but only if p is the peer actually
// holding it. A refused latecomer releasing on its way out must not evict
// the active connection. Returns the released client id (empty for the
// operator role) and whether the slot was cleared.
func (r *Registry) Release(role Role, p *Peer) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch role {
	case RoleClient:
		if r.client != p {
			return "", false
		}
		id := r.clientID
		r.client = nil
		r.clientID = ""
		return id, true
	case RoleOperator:
		if r.operator != p {
			return "", false
		}
		r.operator = nil
		return "", true
	}
	return "", false
}

// Client returns the active client peer and its id, or nil.
func (r *Registry) Client() (*Peer, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client, r.clientID
}

// Operator returns the active operator peer, or nil.
func (r *Registry) Operator() *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.operator
}
