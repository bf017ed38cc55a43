package app

import (
	"context"
	"errors"
	"sync"

	"github.com/pterm/pterm"

	"github.com/Ruslan361/task-168/internal/call"
	"github.com/Ruslan361/task-168/internal/envelope"
	"github.com/Ruslan361/task-168/internal/media"
	"github.com/Ruslan361/task-168/internal/util"
)

// roster tracks the (at most one) connected client as reported by the relay.
type roster struct {
	mu sync.Mutex
	id string
}

func (r *roster) set(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = id
}

func (r *roster) clear(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.id == id {
		r.id = ""
	}
}

func (r *roster) current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// RunOperator runs the operator endpoint: the chat console, call handling,
// and the analysis feed, connected to the relay's /operator leg.
func RunOperator(ctx context.Context, serverURL string) error {
	conn, err := dial(ctx, serverURL, "/operator")
	if err != nil {
		return err
	}
	defer conn.Close()

	sender := &wsSender{conn: conn}
	clients := &roster{}
	machine := call.NewOperatorCall(media.NewPionSession, sender.send, printNotice)

	readErr := make(chan error, 1)
	go func() { readErr <- operatorReadLoop(conn, machine, clients) }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		operatorPromptLoop(sender, machine, clients)
	}()

	select {
	case err := <-readErr:
		machine.ConnectionLost()
		if refused(err) {
			return errors.New("the relay already has an operator connected")
		}
		pterm.Println()
		util.LogWarning("connection to the relay closed")
		return nil
	case <-done:
		machine.Hangup()
		sender.sendClose()
		<-readErr
		return nil
	case <-ctx.Done():
		machine.Hangup()
		sender.sendClose()
		return nil
	}
}

func operatorReadLoop(conn interface {
	ReadJSON(v any) error
}, machine *call.OperatorCall, clients *roster) error {
	for {
		var env envelope.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}

		switch env.Type {
		case envelope.TypeActiveClients:
			if len(env.ClientIDs) > 0 {
				clients.set(env.ClientIDs[0])
				util.LogInfo("active client: %s", env.ClientIDs[0])
			} else {
				util.LogInfo("no clients connected")
			}
		case envelope.TypeClientConnected:
			clients.set(env.ClientID)
			printNotice("Client connected: " + env.ClientID)
		case envelope.TypeClientDisconnected:
			clients.clear(env.ClientID)
			machine.HandleClientDisconnected(env.ClientID)
			printNotice("Client disconnected: " + env.ClientID)
		case envelope.TypeClientError:
			clients.clear(env.ClientID)
			machine.HandleClientDisconnected(env.ClientID)
			util.LogWarning("client connection failed: %s", env.Error)
		case envelope.TypeClientMessage:
			pterm.FgCyan.Println("Client: " + env.Text)
		case envelope.TypeClientRequestCall:
			machine.HandleRequestCall(env.ClientID)
		case envelope.TypeAnswer:
			machine.HandleAnswer(env.SDP)
		case envelope.TypeCandidate:
			machine.HandleCandidate(env.Candidate)
		case envelope.TypeClientHangup:
			machine.HandleClientHangup()
		case envelope.TypeClientAcceptedCall:
			machine.HandleClientAccepted(env.ClientID)
		case envelope.TypeClientDeclinedCall:
			machine.HandleClientDeclined()
		case envelope.TypeClientBusy:
			machine.HandleClientBusy()
		case envelope.TypeProcessingResults:
			pterm.FgGray.Println("analysis: " + string(env.Data))
		case envelope.TypeAISuggestion:
			pterm.FgLightMagenta.Println("suggested reply: " + env.Text)
		case envelope.TypeSystemError:
			util.LogWarning("relay: %s", env.Text)
		default:
			util.LogDebug("unhandled message type %q", env.Type)
		}
	}
}

func operatorPromptLoop(sender *wsSender, machine *call.OperatorCall, clients *roster) {
	pterm.Println()
	pterm.Println("Type a message, or /call /accept /decline /hangup /quit")

	for {
		line := prompt("operator")
		switch line {
		case "":
			continue
		case "/quit":
			return
		case "/call":
			id := clients.current()
			if id == "" {
				util.LogWarning("no client to call")
				continue
			}
			if err := machine.Call(id); err != nil {
				util.LogWarning("%v", err)
			}
		case "/accept":
			if err := machine.AcceptRequest(); err != nil {
				util.LogWarning("%v", err)
			}
		case "/decline":
			if err := machine.DeclineRequest(); err != nil {
				util.LogWarning("%v", err)
			}
		case "/hangup":
			machine.Hangup()
		default:
			id := clients.current()
			if id == "" {
				util.LogWarning("no client connected, message not sent")
				continue
			}
			err := sender.send(envelope.Envelope{
				Type:           envelope.TypeMessageToClient,
				TargetClientID: id,
				Text:           line,
			})
			if err != nil {
				util.LogWarning("send message: %v", err)
				return
			}
		}
	}
}
