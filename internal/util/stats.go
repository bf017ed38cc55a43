package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide signaling traffic counter.
var Stats = &stats{}

type stats struct {
	ToOperator atomic.Int64 // envelopes forwarded client → operator
	ToClient   atomic.Int64 // envelopes forwarded operator → client
	Dropped    atomic.Int64 // envelopes refused by a validity gate
}

func (s *stats) AddToOperator() { s.ToOperator.Add(1) }
func (s *stats) AddToClient()   { s.ToClient.Add(1) }
func (s *stats) AddDropped()    { s.Dropped.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs relay statistics
// every 30 seconds. Quiet intervals are not logged. It stops when ctx is
// cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		var prevOp, prevCl, prevDrop int64
		for {
			select {
			case <-ticker.C:
				toOp := Stats.ToOperator.Load()
				toCl := Stats.ToClient.Load()
				drop := Stats.Dropped.Load()

				if toOp != prevOp || toCl != prevCl || drop != prevDrop {
					pterm.DefaultLogger.Info(fmt.Sprintf(
						"relay: →operator %d | →client %d | dropped %d",
						toOp-prevOp, toCl-prevCl, drop-prevDrop))
				}

				prevOp = toOp
				prevCl = toCl
				prevDrop = drop

			case <-ctx.Done():
				return
			}
		}
	}()
}
