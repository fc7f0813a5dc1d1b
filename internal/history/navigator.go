// Package history implements terminal-style recall over a session's
// user-authored messages: up walks into the past, down walks back toward
// the present, and the in-progress draft is saved on the first up and
// restored when the caller returns to the sentinel position.
package history

// sentinel marks the "not navigating" position.
const sentinel = -1

// Navigator walks a read-only, reverse-chronological entry list. Index 0 is
// the newest entry. The index is clamped whenever the underlying list
// shrinks, e.g. after a rollback.
type Navigator struct {
	entries []string
	idx     int
	draft   string
}

// New builds a navigator at the sentinel position.
func New() *Navigator {
	return &Navigator{idx: sentinel}
}

// SetEntries replaces the entry list (newest first) and clamps the index
// so it always stays below the list length.
func (n *Navigator) SetEntries(entries []string) {
	n.entries = entries
	if n.idx >= len(entries) {
		n.idx = len(entries) - 1
	}
}

// Up steps one entry deeper into history, saturating at the oldest. On the
// first step it captures the caller's unsent draft. Returns the recalled
// entry and whether navigation moved.
func (n *Navigator) Up(draft string) (string, bool) {
	if len(n.entries) == 0 {
		return "", false
	}
	if n.idx == sentinel {
		n.draft = draft
	}
	if n.idx < len(n.entries)-1 {
		n.idx++
	}
	return n.entries[n.idx], true
}

// Down steps one entry toward the present. Reaching the sentinel restores
// the captured draft and discards it. Returns the emitted content and
// whether navigation moved.
func (n *Navigator) Down() (string, bool) {
	if n.idx == sentinel {
		return "", false
	}
	n.idx--
	if n.idx == sentinel {
		draft := n.draft
		n.draft = ""
		return draft, true
	}
	return n.entries[n.idx], true
}

// Reset returns to the sentinel and drops any captured draft. Invoked after
// a message is actually sent.
func (n *Navigator) Reset() {
	n.idx = sentinel
	n.draft = ""
}

// Navigating reports whether the caller is somewhere in history.
func (n *Navigator) Navigating() bool {
	return n.idx != sentinel
}
