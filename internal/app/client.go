package app

import (
	"context"
	"errors"

	"github.com/pterm/pterm"

	"github.com/Ruslan361/task-168/internal/call"
	"github.com/Ruslan361/task-168/internal/envelope"
	"github.com/Ruslan361/task-168/internal/media"
	"github.com/Ruslan361/task-168/internal/util"
)

// RunClient runs the support-client endpoint: a chat prompt plus voice-call
// commands, connected to the relay's /client leg.
func RunClient(ctx context.Context, serverURL string) error {
	conn, err := dial(ctx, serverURL, "/client")
	if err != nil {
		return err
	}
	defer conn.Close()

	sender := &wsSender{conn: conn}
	machine := call.NewClientCall(media.NewPionSession, sender.send, printNotice)

	readErr := make(chan error, 1)
	go func() { readErr <- clientReadLoop(conn, machine) }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		clientPromptLoop(sender, machine)
	}()

	select {
	case err := <-readErr:
		machine.ConnectionLost()
		if refused(err) {
			return errors.New("the relay already has a client connected")
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

// clientReadLoop dispatches relay traffic into the machine and the terminal.
func clientReadLoop(conn interface {
	ReadJSON(v any) error
}, machine *call.ClientCall) error {
	for {
		var env envelope.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}

		switch env.Type {
		case envelope.TypeYourID:
			util.LogInfo("connected, your id is %s", env.ClientID)
		case envelope.TypeOperatorMessage:
			pterm.FgCyan.Println("Operator: " + env.Text)
		case envelope.TypeOffer:
			machine.HandleOffer(env.SDP)
		case envelope.TypeCandidate:
			machine.HandleCandidate(env.Candidate)
		case envelope.TypeOperatorHangup:
			machine.HandleOperatorHangup()
		case envelope.TypeBusy:
			machine.HandleBusy()
		case envelope.TypeCallDeclined:
			machine.HandleDeclined()
		case envelope.TypeOperatorDisconnected:
			printNotice("The operator disconnected.")
		case envelope.TypeOperatorError:
			printNotice("The operator's connection failed.")
		case envelope.TypeSystemError:
			util.LogWarning("relay: %s", env.Text)
		default:
			util.LogDebug("unhandled message type %q", env.Type)
		}
	}
}

// clientPromptLoop reads user input until /quit. Plain text becomes a chat
// message; slash commands drive the call.
func clientPromptLoop(sender *wsSender, machine *call.ClientCall) {
	pterm.Println()
	pterm.Println("Type a message, or /call /accept /decline /hangup /quit")

	for {
		line := prompt("you")
		switch line {
		case "":
			continue
		case "/quit":
			return
		case "/call":
			if err := machine.StartCall(); err != nil {
				util.LogWarning("%v", err)
			}
		case "/accept":
			if err := machine.Accept(); err != nil {
				util.LogWarning("%v", err)
			}
		case "/decline":
			if err := machine.Decline(); err != nil {
				util.LogWarning("%v", err)
			}
		case "/hangup":
			machine.Hangup()
		default:
			if err := sender.send(envelope.Envelope{Type: envelope.TypeMessage, Text: line}); err != nil {
				util.LogWarning("send message: %v", err)
				return
			}
		}
	}
}
