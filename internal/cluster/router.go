package cluster

import (
	"sync"

	"cardmesh/internal/protocol"
)

// Router delivers NetMessages to the appropriate session goroutine by GameID.
type Router struct {
	mu     sync.RWMutex
	byGame map[protocol.GameID]route
}

type route struct {
	inbox chan<- protocol.NetMessage
	done  <-chan struct{}
}

func NewRouter() *Router {
	return &Router{byGame: make(map[protocol.GameID]route)}
}

// Register routes id to inbox until done is closed or Unregister is called.
func (r *Router) Register(id protocol.GameID, inbox chan<- protocol.NetMessage, done <-chan struct{}) {
	r.mu.Lock()
	r.byGame[id] = route{inbox: inbox, done: done}
	r.mu.Unlock()
}

func (r *Router) Unregister(id protocol.GameID) {
	r.mu.Lock()
	delete(r.byGame, id)
	r.mu.Unlock()
}

// Route hands msg to its session. It reports false when no session runs
// that game, in which case the caller drops the message.
func (r *Router) Route(msg protocol.NetMessage) bool {
	r.mu.RLock()
	rt, ok := r.byGame[msg.Game]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case rt.inbox <- msg:
		return true
	case <-rt.done:
		return false
	}
}
