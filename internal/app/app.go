// Package app contains the two endpoint run loops that tie the relay
// connection, the call state machine, and the terminal UI together.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pterm/pterm"

	"github.com/Ruslan361/task-168/internal/envelope"
)

// dial connects to one role endpoint of the relay.
func dial(ctx context.Context, serverURL, path string) (*websocket.Conn, error) {
	url := strings.TrimRight(serverURL, "/") + path
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", url, err)
	}
	return conn, nil
}

// wsSender serializes writes to the relay connection; envelopes come from
// the prompt loop, the state machine, and media callbacks.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSender) send(env envelope.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(env)
}

// sendClose starts an orderly shutdown with a normal close frame.
func (s *wsSender) sendClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// printNotice renders call and presence notices.
func printNotice(text string) {
	pterm.Info.Println(text)
}

// refused reports whether the relay turned the connection away because the
// role slot is taken.
func refused(err error) bool {
	return websocket.IsCloseError(err, websocket.ClosePolicyViolation)
}

// prompt reads one line of user input.
func prompt(label string) string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(label).
		Show()
	return strings.TrimSpace(raw)
}
