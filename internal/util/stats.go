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

// Stats is the process-wide registry/signaling activity counter.
var Stats = &stats{}

type stats struct {
	RoomsCreated     atomic.Int64
	RoomsDestroyed   atomic.Int64
	Joins            atomic.Int64
	Rejoins          atomic.Int64
	Leaves           atomic.Int64
	Disconnects      atomic.Int64
	SignalsRouted    atomic.Int64
	SignalsDropped   atomic.Int64
	ChatRelayed      atomic.Int64
	PeersEvicted     atomic.Int64
	PeersReconnected atomic.Int64
	ActiveMembers    atomic.Int64
}

func (s *stats) AddRoomCreated()      { s.RoomsCreated.Add(1) }
func (s *stats) AddRoomDestroyed()    { s.RoomsDestroyed.Add(1) }
func (s *stats) AddJoin()             { s.Joins.Add(1); s.ActiveMembers.Add(1) }
func (s *stats) AddRejoin()           { s.Rejoins.Add(1) }
func (s *stats) AddLeave()            { s.Leaves.Add(1); s.ActiveMembers.Add(-1) }
func (s *stats) AddDisconnect()       { s.Disconnects.Add(1); s.ActiveMembers.Add(-1) }
func (s *stats) AddSignalRouted()     { s.SignalsRouted.Add(1) }
func (s *stats) AddSignalDropped()    { s.SignalsDropped.Add(1) }
func (s *stats) AddChatRelayed()      { s.ChatRelayed.Add(1) }
func (s *stats) AddPeerEvicted()      { s.PeersEvicted.Add(1) }
func (s *stats) AddPeerReconnected()  { s.PeersReconnected.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that checks the counters every 10
// seconds and logs a one-line summary of registry/signaling activity when
// joins, relayed chat messages or routed signals changed since the last
// check. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevJoins, prevChat, prevSignals int64
		for {
			select {
			case <-ticker.C:
				joins := Stats.Joins.Load()
				chat := Stats.ChatRelayed.Load()
				signals := Stats.SignalsRouted.Load()

				if joins != prevJoins || chat != prevChat || signals != prevSignals {
					pterm.DefaultLogger.Info(formatStats())
				}

				prevJoins, prevChat, prevSignals = joins, chat, signals

			case <-ctx.Done():
				return
			}
		}
	}()
}

// formatStats returns a one-line summary of current counters for the logger.
func formatStats() string {
	return fmt.Sprintf(
		"members=%d signals=%d(%d dropped) chat=%d evicted=%d reconnected=%d",
		Stats.ActiveMembers.Load(),
		Stats.SignalsRouted.Load(),
		Stats.SignalsDropped.Load(),
		Stats.ChatRelayed.Load(),
		Stats.PeersEvicted.Load(),
		Stats.PeersReconnected.Load(),
	)
}
