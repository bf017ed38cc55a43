package call

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/Ruslan361/task-168/internal/envelope"
	"github.com/Ruslan361/task-168/internal/media"
)

func newOperatorHarness() (*OperatorCall, *fakeFactory, *outbox) {
	ff := &fakeFactory{}
	ob := &outbox{}
	o := NewOperatorCall(ff.new, ob.send, nil)
	return o, ff, ob
}

func TestOperatorRequestParked(t *testing.T) {
	o, ff, ob := newOperatorHarness()

	o.HandleRequestCall("client-1")

	if got := o.State(); got != OperatorPendingRequest {
		t.Fatalf("state = %s, want pending_request", got)
	}
	if got := o.PendingClient(); got != "client-1" {
		t.Fatalf("pending = %q, want client-1", got)
	}
	if ff.count() != 0 {
		t.Error("parking a request must not create a session")
	}
	if n := len(ob.all()); n != 0 {
		t.Fatalf("envelopes sent = %d, want 0 until the operator decides", n)
	}
}

func TestOperatorSecondRequestRefused(t *testing.T) {
	o, _, ob := newOperatorHarness()

	o.HandleRequestCall("client-1")
	o.HandleRequestCall("client-2")

	if got := o.PendingClient(); got != "client-1" {
		t.Fatalf("pending = %q, first request must survive", got)
	}
	sent := ob.all()
	if len(sent) != 1 || sent[0].Type != envelope.TypeOperatorBusy {
		t.Fatalf("sent = %v, want one operator_busy", sent)
	}
	if sent[0].TargetClientID != "client-2" {
		t.Fatalf("operator_busy target = %q, want client-2", sent[0].TargetClientID)
	}
}

func TestOperatorAcceptRequestDials(t *testing.T) {
	o, ff, ob := newOperatorHarness()

	o.HandleRequestCall("client-1")
	if err := o.AcceptRequest(); err != nil {
		t.Fatalf("AcceptRequest failed: %v", err)
	}

	if got := o.State(); got != OperatorCalling {
		t.Fatalf("state = %s, want calling", got)
	}
	if got := o.PendingClient(); got != "" {
		t.Fatalf("pending = %q, must be consumed", got)
	}
	if ff.count() != 1 || !ff.last().HasLocalOffer() {
		t.Fatal("accepting must create a session with a local offer")
	}

	last := ob.all()[len(ob.all())-1]
	if last.Type != envelope.TypeOffer {
		t.Fatalf("last sent = %s, want webrtc_offer", last.Type)
	}
	if last.TargetClientID != "client-1" || last.SDP == "" {
		t.Fatalf("offer = %+v, want target client-1 with sdp", last)
	}
}

func TestOperatorDeclineRequest(t *testing.T) {
	o, _, ob := newOperatorHarness()

	o.HandleRequestCall("client-1")
	if err := o.DeclineRequest(); err != nil {
		t.Fatalf("DeclineRequest failed: %v", err)
	}

	if got := o.State(); got != OperatorIdle {
		t.Fatalf("state = %s, want idle", got)
	}
	if got := o.PendingClient(); got != "" {
		t.Fatalf("pending = %q, must be cleared", got)
	}

	last := ob.all()[len(ob.all())-1]
	if last.Type != envelope.TypeCallDeclined || last.TargetClientID != "client-1" {
		t.Fatalf("last sent = %+v, want call_declined_by_operator to client-1", last)
	}

	if err := o.DeclineRequest(); !errors.Is(err, ErrBadState) {
		t.Fatalf("second DeclineRequest = %v, want ErrBadState", err)
	}
}

func TestOperatorCallFromIdle(t *testing.T) {
	o, _, ob := newOperatorHarness()

	if err := o.Call("client-7"); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got := o.State(); got != OperatorCalling {
		t.Fatalf("state = %s, want calling", got)
	}
	if got := ob.lastType(); got != envelope.TypeOffer {
		t.Fatalf("last sent = %s, want webrtc_offer", got)
	}

	if err := o.Call("client-8"); !errors.Is(err, ErrBadState) {
		t.Fatalf("Call while calling = %v, want ErrBadState", err)
	}
}

func TestOperatorCallRequiresTarget(t *testing.T) {
	o, ff, _ := newOperatorHarness()

	if err := o.Call(""); !errors.Is(err, ErrBadState) {
		t.Fatalf("Call(\"\") = %v, want ErrBadState", err)
	}
	if ff.count() != 0 {
		t.Error("no session may be created without a target")
	}
}

func TestOperatorAnswerApplied(t *testing.T) {
	o, ff, _ := newOperatorHarness()

	// Without a session the answer is dropped silently.
	o.HandleAnswer("v=0 stray-answer")

	if err := o.Call("client-1"); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	o.HandleAnswer("v=0 client-answer")

	if got := ff.last().remoteAns; got != "v=0 client-answer" {
		t.Fatalf("remote answer = %q, not applied", got)
	}
	if got := o.State(); got != OperatorCalling {
		t.Fatalf("state = %s, connectivity not yet up", got)
	}
}

func TestOperatorAnswerFailureEndsCall(t *testing.T) {
	o, ff, _ := newOperatorHarness()

	if err := o.Call("client-1"); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	ff.last().remoteErr = errors.New("bad sdp")

	o.HandleAnswer("v=0 broken")

	if got := o.State(); got != OperatorIdle {
		t.Fatalf("state = %s, want idle after apply failure", got)
	}
	if !ff.last().closed {
		t.Error("session must be released")
	}
}

func TestOperatorMediaTransitions(t *testing.T) {
	o, ff, _ := newOperatorHarness()

	if err := o.Call("client-1"); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	sess := ff.last()

	sess.cb.OnState(media.StateConnected)
	if got := o.State(); got != OperatorConnected {
		t.Fatalf("state = %s, want connected", got)
	}

	sess.cb.OnState(media.StateClosed)
	if got := o.State(); got != OperatorIdle {
		t.Fatalf("state = %s, want idle after media close", got)
	}
}

func TestOperatorLateMediaEventIgnored(t *testing.T) {
	o, ff, _ := newOperatorHarness()

	if err := o.Call("client-1"); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	stale := ff.last()
	o.Hangup()

	stale.cb.OnState(media.StateConnected)
	if got := o.State(); got != OperatorIdle {
		t.Fatalf("state = %s, late media event must be ignored", got)
	}
}

func TestOperatorClientHangupReleasesQuietly(t *testing.T) {
	o, ff, ob := newOperatorHarness()

	if err := o.Call("client-1"); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	before := len(ob.all())

	o.HandleClientHangup()

	if got := o.State(); got != OperatorIdle {
		t.Fatalf("state = %s, want idle", got)
	}
	if !ff.last().closed {
		t.Error("session must be released")
	}
	if len(ob.all()) != before {
		t.Error("remote hangup must not be answered with more envelopes")
	}

	// Repeat without a session: no-op.
	o.HandleClientHangup()
	o.HandleClientDeclined()
	o.HandleClientBusy()
	if got := o.State(); got != OperatorIdle {
		t.Fatalf("state = %s after stray end events, want idle", got)
	}
}

func TestOperatorClientDisconnectedClearsPending(t *testing.T) {
	o, _, _ := newOperatorHarness()

	o.HandleRequestCall("client-1")
	o.HandleClientDisconnected("client-1")

	if got := o.State(); got != OperatorIdle {
		t.Fatalf("state = %s, want idle", got)
	}
	if got := o.PendingClient(); got != "" {
		t.Fatalf("pending = %q, must be cleared", got)
	}
}

func TestOperatorClientDisconnectedEndsCall(t *testing.T) {
	o, ff, _ := newOperatorHarness()

	if err := o.Call("client-1"); err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	// A different client vanishing leaves the call alone.
	o.HandleClientDisconnected("client-2")
	if got := o.State(); got != OperatorCalling {
		t.Fatalf("state = %s, unrelated disconnect must not end the call", got)
	}

	o.HandleClientDisconnected("client-1")
	if got := o.State(); got != OperatorIdle {
		t.Fatalf("state = %s, want idle", got)
	}
	if !ff.last().closed {
		t.Error("session must be released")
	}
}

func TestOperatorHangup(t *testing.T) {
	o, _, ob := newOperatorHarness()

	// No session: no-op, nothing sent.
	o.Hangup()
	if n := len(ob.all()); n != 0 {
		t.Fatalf("envelopes sent = %d, want 0", n)
	}

	if err := o.Call("client-1"); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	o.Hangup()
	o.Hangup()

	if n := ob.countType(envelope.TypeHangup); n != 1 {
		t.Fatalf("webrtc_hangup sent %d times, want exactly 1", n)
	}
	last := ob.all()[len(ob.all())-1]
	if last.TargetClientID != "client-1" {
		t.Fatalf("hangup target = %q, want client-1", last.TargetClientID)
	}
}

func TestOperatorMediaCandidateCarriesTarget(t *testing.T) {
	o, ff, ob := newOperatorHarness()

	if err := o.Call("client-1"); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	ff.last().cb.OnCandidate(json.RawMessage(`{"candidate":"local"}`))

	last := ob.all()[len(ob.all())-1]
	if last.Type != envelope.TypeCandidate {
		t.Fatalf("last sent = %s, want webrtc_candidate", last.Type)
	}
	if last.TargetClientID != "client-1" {
		t.Fatalf("candidate target = %q, want client-1", last.TargetClientID)
	}
}

func TestOperatorRemoteCandidateApplied(t *testing.T) {
	o, ff, _ := newOperatorHarness()

	o.HandleCandidate(json.RawMessage(`{"candidate":"early"}`)) // no session: dropped

	if err := o.Call("client-1"); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	o.HandleCandidate(json.RawMessage(`{"candidate":"c1"}`))

	sess := ff.last()
	if len(sess.candidates) != 1 || sess.candidates[0] != `{"candidate":"c1"}` {
		t.Fatalf("session candidates = %v, want only the in-session one", sess.candidates)
	}
}

func TestOperatorConnectionLost(t *testing.T) {
	o, ff, ob := newOperatorHarness()

	if err := o.Call("client-1"); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	before := len(ob.all())

	o.ConnectionLost()

	if got := o.State(); got != OperatorIdle {
		t.Fatalf("state = %s, want idle", got)
	}
	if !ff.last().closed {
		t.Error("session must be released")
	}
	if len(ob.all()) != before {
		t.Error("nothing may be sent after the connection is gone")
	}
}

func TestOperatorOfferFailureUnwinds(t *testing.T) {
	ff := &fakeFactory{err: errors.New("no audio device")}
	ob := &outbox{}
	o := NewOperatorCall(ff.new, ob.send, nil)

	if err := o.Call("client-1"); err == nil {
		t.Fatal("Call should fail when media cannot be acquired")
	}
	if got := o.State(); got != OperatorIdle {
		t.Fatalf("state = %s, want idle after failure", got)
	}
	if n := len(ob.all()); n != 0 {
		t.Fatalf("envelopes sent = %d, want 0", n)
	}
}
