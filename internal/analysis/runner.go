// Package analysis runs an external analyzer process over chat traffic.
//
// Every text message that passes through the relay is handed to a fresh
// analyzer process as a single JSON line on stdin. The process replies with
// newline-delimited JSON objects on stdout; each decoded object is handed to
// the sink for delivery to the operator.
package analysis

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Ruslan361/task-168/internal/util"
)

// maxLine caps one stdout line from the analyzer. A line that long with no
// newline means the process is not speaking the protocol.
const maxLine = 10 * 1024 * 1024

// Event is the payload written to the analyzer's stdin.
type Event struct {
	ClientID string `json:"clientId"`
	Text     string `json:"text"`
}

// Results is one decoded line of analyzer output.
type Results struct {
	// Raw is the object exactly as the analyzer printed it.
	Raw json.RawMessage
	// Suggestion is the short text worth surfacing directly: the summary
	// field when present, the reference answer otherwise, else empty.
	Suggestion string
}

// Runner dispatches analyzer processes. The zero value is disabled.
type Runner struct {
	ctx  context.Context
	argv []string
	sink func(Results)
}

// NewRunner builds a runner for the given command line, e.g.
// "python ask_agent.py". The command is split on whitespace only; shell
// quoting is not interpreted, so anything more elaborate belongs in a
// wrapper script. An empty command disables the runner: Dispatch becomes a
// no-op. ctx bounds the lifetime of every spawned process: analyzers keep
// running after the originating connection is gone and die only when ctx
// is cancelled. sink receives results and may be called from a background
// goroutine.
func NewRunner(ctx context.Context, command string, sink func(Results)) *Runner {
	if ctx == nil {
		ctx = context.Background()
	}
	if sink == nil {
		sink = func(Results) {}
	}
	return &Runner{ctx: ctx, argv: strings.Fields(command), sink: sink}
}

// Enabled reports whether a command is configured.
func (r *Runner) Enabled() bool {
	return len(r.argv) > 0
}

// Dispatch starts one analyzer process for the event and returns
// immediately. Process failures are logged, never propagated: analysis is
// best-effort and must not disturb the chat path.
func (r *Runner) Dispatch(ev Event) {
	if !r.Enabled() {
		return
	}
	go func() {
		if err := r.run(ev); err != nil {
			util.LogWarning("analysis: %v", err)
		}
	}()
}

func (r *Runner) run(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	cmd := exec.CommandContext(r.ctx, r.argv[0], r.argv[1:]...)
	cmd.Stdin = strings.NewReader(string(payload) + "\n")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", r.argv[0], err)
	}
	util.LogDebug("analysis: started %s for client %s", r.argv[0], ev.ClientID)

	go func() {
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 64*1024), maxLine)
		for sc.Scan() {
			util.LogWarning("analysis: %s stderr: %s", r.argv[0], sc.Text())
		}
	}()

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		res, err := decodeLine([]byte(line))
		if err != nil {
			util.LogWarning("analysis: %s produced invalid output: %v", r.argv[0], err)
			continue
		}
		r.sink(res)
	}
	if err := sc.Err(); err != nil {
		util.LogWarning("analysis: reading %s output: %v", r.argv[0], err)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s: %w", r.argv[0], err)
	}
	util.LogDebug("analysis: %s finished for client %s", r.argv[0], ev.ClientID)
	return nil
}

// decodeLine validates one output line and extracts the suggestion text.
func decodeLine(line []byte) (Results, error) {
	var probe struct {
		Summary         string `json:"summary"`
		ReferenceAnswer string `json:"reference_answer"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return Results{}, err
	}

	res := Results{Raw: json.RawMessage(append([]byte(nil), line...))}
	switch {
	case probe.Summary != "":
		res.Suggestion = probe.Summary
	case probe.ReferenceAnswer != "":
		res.Suggestion = probe.ReferenceAnswer
	}
	return res, nil
}
