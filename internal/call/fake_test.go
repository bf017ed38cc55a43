package call

import (
	"encoding/json"
	"sync"

	"github.com/Ruslan361/task-168/internal/envelope"
	"github.com/Ruslan361/task-168/internal/media"
)

// fakeSession is a scriptable media.Session for state machine tests.
type fakeSession struct {
	mu         sync.Mutex
	cb         media.Callbacks
	localOffer bool
	remoteOff  string
	remoteAns  string
	candidates []string
	closed     bool

	offerErr  error
	answerErr error
	remoteErr error
}

func (f *fakeSession) CreateOffer() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offerErr != nil {
		return "", f.offerErr
	}
	f.localOffer = true
	return "v=0 local-offer", nil
}

func (f *fakeSession) CreateAnswer() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.answerErr != nil {
		return "", f.answerErr
	}
	return "v=0 local-answer", nil
}

func (f *fakeSession) SetRemoteOffer(sdp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteErr != nil {
		return f.remoteErr
	}
	f.remoteOff = sdp
	return nil
}

func (f *fakeSession) SetRemoteAnswer(sdp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteErr != nil {
		return f.remoteErr
	}
	f.remoteAns = sdp
	return nil
}

func (f *fakeSession) AddCandidate(raw json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, string(raw))
	return nil
}

func (f *fakeSession) HasLocalOffer() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.localOffer
}

func (f *fakeSession) HasRemoteDescription() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remoteOff != "" || f.remoteAns != ""
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeFactory records every session it creates, in creation order.
type fakeFactory struct {
	mu       sync.Mutex
	sessions []*fakeSession
	err      error
}

func (ff *fakeFactory) new(cb media.Callbacks) (media.Session, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.err != nil {
		return nil, ff.err
	}
	s := &fakeSession{cb: cb}
	ff.sessions = append(ff.sessions, s)
	return s, nil
}

func (ff *fakeFactory) last() *fakeSession {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.sessions) == 0 {
		return nil
	}
	return ff.sessions[len(ff.sessions)-1]
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.sessions)
}

// outbox collects envelopes emitted by a machine.
type outbox struct {
	mu   sync.Mutex
	sent []envelope.Envelope
}

func (ob *outbox) send(env envelope.Envelope) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.sent = append(ob.sent, env)
	return nil
}

func (ob *outbox) all() []envelope.Envelope {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return append([]envelope.Envelope(nil), ob.sent...)
}

func (ob *outbox) countType(t envelope.Type) int {
	n := 0
	for _, e := range ob.all() {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (ob *outbox) lastType() envelope.Type {
	all := ob.all()
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1].Type
}
