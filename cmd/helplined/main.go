// Helplined — the support-line relay daemon.
//
// It bridges one support client and one operator over two WebSocket
// endpoints (/client and /operator), forwarding chat and WebRTC call
// signaling between them, and optionally feeds every chat message through an
// external analyzer whose results stream back to the operator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/pterm/pterm"

	"github.com/Ruslan361/task-168/internal/config"
	"github.com/Ruslan361/task-168/internal/relay"
	"github.com/Ruslan361/task-168/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	addr := flag.String("addr", ":3000", "Listen address")
	static := flag.String("static", "", "Directory of browser assets to serve (optional)")
	analyzer := flag.String("analyzer", "", "External analyzer command, split on whitespace, e.g. 'python ask_agent.py' (optional)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Helplined — v%s", version))
	pterm.Println()

	cfg := config.Server{
		Addr:        *addr,
		StaticDir:   *static,
		AnalyzerCmd: *analyzer,
	}

	r := relay.New(ctx, cfg.AnalyzerCmd)
	srv := relay.NewServer(r, cfg.StaticDir)

	util.StartStatsReporter(ctx)

	if err := srv.Run(ctx, cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		util.LogError("relay server failed: %v", err)
		os.Exit(1)
	}

	util.LogInfo("relay stopped")
}
