package protocol

import "sync/atomic"

// Lamport is a logical clock shared by every session of a node. Each
// outbound message is stamped with TickLocal; each inbound stamp is merged
// with TickRemote.
type Lamport struct{ v atomic.Uint64 }

func (l *Lamport) Now() uint64       { return l.v.Load() }
func (l *Lamport) TickLocal() uint64 { return l.v.Add(1) }

func (l *Lamport) TickRemote(remote uint64) uint64 {
	for {
		cur := l.v.Load()
		next := max(cur, remote) + 1
		if l.v.CompareAndSwap(cur, next) {
			return next
		}
	}
}
