// Helpline — the terminal endpoint for the support line.
//
// One binary serves both sides: run with -role client to reach support, or
// -role operator to staff it. Without flags it falls back to interactive
// prompts.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"

	"github.com/Ruslan361/task-168/internal/app"
	"github.com/Ruslan361/task-168/internal/config"
	"github.com/Ruslan361/task-168/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	role := flag.String("role", "", "Role: operator or client")
	server := flag.String("server", "", "Relay URL, e.g. ws://localhost:3000")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Helpline — v%s", version))
	pterm.Println()

	var cfg config.Endpoint

	switch *role {
	case "":
		// No -role flag → interactive mode.
		cfg = askConfig()

	case string(config.RoleClient), string(config.RoleOperator):
		if *server == "" {
			util.LogError("missing -server for %s role", *role)
			os.Exit(1)
		}
		serverURL, err := normalizeServerURL(*server)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg = config.Endpoint{Role: config.Role(*role), Server: serverURL}

	default:
		util.LogError("invalid -role: must be 'operator' or 'client'")
		os.Exit(1)
	}

	var err error
	if cfg.Role == config.RoleOperator {
		err = app.RunOperator(ctx, cfg.Server)
	} else {
		err = app.RunClient(ctx, cfg.Server)
	}
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("session closed")
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// askConfig gathers the role and relay URL through interactive prompts.
func askConfig() config.Endpoint {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Client   — Reach the support line", "Operator — Staff the support line"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	role := config.RoleClient
	if strings.HasPrefix(choice, "Operator") {
		role = config.RoleOperator
	}

	return config.Endpoint{Role: role, Server: askServerURL()}
}

// askServerURL prompts for a valid relay URL until one is entered.
func askServerURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Relay URL (e.g. ws://localhost:3000)").
			Show()

		serverURL, err := normalizeServerURL(raw)
		if err == nil {
			pterm.Println()
			return serverURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

// normalizeServerURL validates and normalizes a raw relay URL string.
func normalizeServerURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid relay URL: %s", raw)
	}
	scheme := "wss"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host), nil
}
