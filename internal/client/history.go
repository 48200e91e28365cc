// Package client implements the interactive client core: local prediction
// of the controlled entity, reconciliation against authoritative updates,
// snapshot-buffer interpolation of remote entities, and the session
// lifecycle from gateway auth to replication transport.
package client

import "github.com/Dastari/sidereal-v3/internal/simcore"

// InputHistoryCapacity bounds the input history; oldest entries drop first
const InputHistoryCapacity = 128

// InputHistoryEntry is one predicted tick: the input sampled and the state
// predicted from it.
type InputHistoryEntry struct {
	Tick      uint64
	Input     simcore.InputSnapshot
	Predicted simcore.EntityKinematics
}

// InputHistory is the bounded, oldest-first record of predicted ticks used
// for reconciliation replay.
type InputHistory struct {
	entries []InputHistoryEntry
}

// Append records a predicted tick, evicting the oldest entry at capacity
func (h *InputHistory) Append(entry InputHistoryEntry) {
	h.entries = append(h.entries, entry)
	if len(h.entries) > InputHistoryCapacity {
		h.entries = h.entries[1:]
	}
}

// PruneThrough drops entries with tick <= serverTick: the server has
// acknowledged them and they will never be replayed.
func (h *InputHistory) PruneThrough(serverTick uint64) {
	keep := h.entries[:0]
	for _, entry := range h.entries {
		if entry.Tick > serverTick {
			keep = append(keep, entry)
		}
	}
	h.entries = keep
}

// After returns entries with tick > serverTick in order, for replay
func (h *InputHistory) After(serverTick uint64) []InputHistoryEntry {
	var out []InputHistoryEntry
	for _, entry := range h.entries {
		if entry.Tick > serverTick {
			out = append(out, entry)
		}
	}
	return out
}

// Len returns the number of retained entries
func (h *InputHistory) Len() int {
	return len(h.entries)
}

// Oldest returns the oldest retained entry
func (h *InputHistory) Oldest() (InputHistoryEntry, bool) {
	if len(h.entries) == 0 {
		return InputHistoryEntry{}, false
	}
	return h.entries[0], true
}

// Clear drops all entries
func (h *InputHistory) Clear() {
	h.entries = nil
}
