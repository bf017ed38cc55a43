package media

import (
	"encoding/json"
	"testing"
)

func TestStateStrings(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateNew, "new"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateDisconnected, "disconnected"},
		{StateFailed, "failed"},
		{StateClosed, "closed"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestStateTerminal(t *testing.T) {
	terminal := map[State]bool{
		StateNew:          false,
		StateConnecting:   false,
		StateConnected:    false,
		StateDisconnected: true,
		StateFailed:       true,
		StateClosed:       true,
	}
	for state, want := range terminal {
		if got := state.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", state, got, want)
		}
	}
}

func TestPionSessionOffer(t *testing.T) {
	sess, err := NewPionSession(Callbacks{})
	if err != nil {
		t.Fatalf("NewPionSession failed: %v", err)
	}
	defer sess.Close()

	if sess.HasLocalOffer() {
		t.Fatal("fresh session must not report a local offer")
	}

	sdp, err := sess.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer failed: %v", err)
	}
	if sdp == "" {
		t.Fatal("offer sdp is empty")
	}
	if !sess.HasLocalOffer() {
		t.Fatal("HasLocalOffer must report true after CreateOffer")
	}
}

func TestPionSessionAnswerFlow(t *testing.T) {
	offerer, err := NewPionSession(Callbacks{})
	if err != nil {
		t.Fatalf("NewPionSession failed: %v", err)
	}
	defer offerer.Close()

	answerer, err := NewPionSession(Callbacks{})
	if err != nil {
		t.Fatalf("NewPionSession failed: %v", err)
	}
	defer answerer.Close()

	offer, err := offerer.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer failed: %v", err)
	}

	if answerer.HasRemoteDescription() {
		t.Fatal("fresh session must not report a remote description")
	}
	if err := answerer.SetRemoteOffer(offer); err != nil {
		t.Fatalf("SetRemoteOffer failed: %v", err)
	}
	if !answerer.HasRemoteDescription() {
		t.Fatal("HasRemoteDescription must report true after SetRemoteOffer")
	}

	answer, err := answerer.CreateAnswer()
	if err != nil {
		t.Fatalf("CreateAnswer failed: %v", err)
	}
	if err := offerer.SetRemoteAnswer(answer); err != nil {
		t.Fatalf("SetRemoteAnswer failed: %v", err)
	}
}

func TestPionSessionQueuesEarlyCandidates(t *testing.T) {
	offerer, err := NewPionSession(Callbacks{})
	if err != nil {
		t.Fatalf("NewPionSession failed: %v", err)
	}
	defer offerer.Close()
	offer, err := offerer.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer failed: %v", err)
	}

	sess, err := NewPionSession(Callbacks{})
	if err != nil {
		t.Fatalf("NewPionSession failed: %v", err)
	}
	defer sess.Close()

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 198.51.100.7 61066 typ host","sdpMid":"0","sdpMLineIndex":0}`)

	// Browsers often deliver candidates before the offer; the session must
	// hold them rather than fail.
	if err := sess.AddCandidate(candidate); err != nil {
		t.Fatalf("early AddCandidate failed: %v", err)
	}
	if err := sess.SetRemoteOffer(offer); err != nil {
		t.Fatalf("SetRemoteOffer failed: %v", err)
	}
	if err := sess.AddCandidate(candidate); err != nil {
		t.Fatalf("late AddCandidate failed: %v", err)
	}
}

func TestPionSessionBadCandidate(t *testing.T) {
	sess, err := NewPionSession(Callbacks{})
	if err != nil {
		t.Fatalf("NewPionSession failed: %v", err)
	}
	defer sess.Close()

	if err := sess.AddCandidate(json.RawMessage(`{broken`)); err == nil {
		t.Fatal("malformed candidate must be rejected")
	}
}

func TestPionSessionCloseIdempotent(t *testing.T) {
	sess, err := NewPionSession(Callbacks{})
	if err != nil {
		t.Fatalf("NewPionSession failed: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
