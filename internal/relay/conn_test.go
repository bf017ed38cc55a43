package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ruslan361/task-168/internal/envelope"
)

// TestPeerSendDeadline wedges the remote end of a connection and checks that
// Send errors out instead of blocking forever behind the write mutex.
func TestPeerSendDeadline(t *testing.T) {
	done := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Never read: the socket buffers fill and writes start blocking.
		<-done
	}))
	t.Cleanup(ts.Close)
	t.Cleanup(func() { close(done) })

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	p := newPeer(conn)
	p.timeout = 200 * time.Millisecond

	env := envelope.Envelope{Type: envelope.TypeMessage, Text: strings.Repeat("x", 256*1024)}
	overall := time.Now().Add(10 * time.Second)
	for {
		if err := p.Send(env); err != nil {
			return
		}
		if time.Now().After(overall) {
			t.Fatal("Send never hit the write deadline on a wedged peer")
		}
	}
}
