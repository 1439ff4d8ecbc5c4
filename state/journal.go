package state

import "github.com/holiman/uint256"

// journalEntry records the information needed to undo a single state
// mutation. Entries are replayed in reverse when a snapshot is
// reverted.
type journalEntry interface {
	revert(*Ledger)
}

type balanceChange struct {
	addr [20]byte
	prev *uint256.Int
}

func (c balanceChange) revert(l *Ledger) {
	l.entry(c.addr).balance = c.prev
}

type nonceChange struct {
	addr [20]byte
	prev uint64
}

func (c nonceChange) revert(l *Ledger) {
	l.entry(c.addr).nonce = c.prev
}

type kvChange struct {
	key     string
	prev    []byte
	existed bool
}

func (c kvChange) revert(l *Ledger) {
	if c.existed {
		l.kv[c.key] = c.prev
		return
	}
	delete(l.kv, c.key)
}

type journal struct {
	entries []journalEntry
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

func (j *journal) length() int {
	return len(j.entries)
}

// revert unwinds entries down to (and excluding) the supplied length.
func (j *journal) revert(l *Ledger, length int) {
	for i := len(j.entries) - 1; i >= length; i-- {
		j.entries[i].revert(l)
	}
	j.entries = j.entries[:length]
}
