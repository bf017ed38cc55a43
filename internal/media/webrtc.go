package media

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// STUN servers for candidate gathering. No TURN — the relay only carries
// signaling, so the audio path must be reachable peer-to-peer.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// pionSession implements Session on top of a pion PeerConnection with a
// single audio transceiver. Capturing an actual microphone track is out of
// scope here; negotiation only needs the media section present.
type pionSession struct {
	pc *webrtc.PeerConnection

	mu        sync.Mutex
	local     bool // local offer created
	remote    bool // remote description applied
	closed    bool
	pending   []webrtc.ICECandidateInit
	lastState State
}

// NewPionSession is the Factory for real WebRTC sessions.
func NewPionSession(cb Callbacks) (Session, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio); err != nil {
		pc.Close()
		return nil, fmt.Errorf("add audio transceiver: %w", err)
	}

	s := &pionSession{pc: pc, lastState: StateNew}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks end of gathering.
		if c == nil || cb.OnCandidate == nil {
			return
		}
		raw, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		cb.OnCandidate(raw)
	})

	pc.OnICEConnectionStateChange(func(ice webrtc.ICEConnectionState) {
		state := mapICEState(ice)
		s.mu.Lock()
		if s.closed || state == s.lastState {
			s.mu.Unlock()
			return
		}
		s.lastState = state
		s.mu.Unlock()
		if cb.OnState != nil {
			cb.OnState(state)
		}
	})

	return s, nil
}

func mapICEState(ice webrtc.ICEConnectionState) State {
	switch ice {
	case webrtc.ICEConnectionStateChecking:
		return StateConnecting
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		return StateConnected
	case webrtc.ICEConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.ICEConnectionStateFailed:
		return StateFailed
	case webrtc.ICEConnectionStateClosed:
		return StateClosed
	}
	return StateNew
}

func (s *pionSession) CreateOffer() (string, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local offer: %w", err)
	}
	s.mu.Lock()
	s.local = true
	s.mu.Unlock()
	return offer.SDP, nil
}

func (s *pionSession) CreateAnswer() (string, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local answer: %w", err)
	}
	return answer.SDP, nil
}

func (s *pionSession) SetRemoteOffer(sdp string) error {
	return s.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
}

func (s *pionSession) SetRemoteAnswer(sdp string) error {
	return s.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (s *pionSession) setRemote(desc webrtc.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote %s: %w", desc.Type, err)
	}

	// Flush candidates that arrived before the description.
	s.mu.Lock()
	s.remote = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, c := range pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("apply queued candidate: %w", err)
		}
	}
	return nil
}

func (s *pionSession) AddCandidate(raw json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &init); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}

	s.mu.Lock()
	if !s.remote {
		// pion rejects candidates before a remote description; hold them.
		s.pending = append(s.pending, init)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.pc.AddICECandidate(init)
}

func (s *pionSession) HasLocalOffer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

func (s *pionSession) HasRemoteDescription() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

func (s *pionSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.pending = nil
	s.mu.Unlock()
	return s.pc.Close()
}
