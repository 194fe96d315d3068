package server

import (
	"sort"
	"sync"
)

// PresenceRegistry tracks which users have live connections. A user
// may hold several connections at once (multiple devices); they are
// online while their connection set is non-empty. The registry is
// process-local and rebuilt from scratch on restart.
type PresenceRegistry struct {
	mu    sync.RWMutex
	conns map[int]map[string]struct{}
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		conns: make(map[int]map[string]struct{}),
	}
}

// Add records a connection for the user and reports whether it is the
// user's first live connection.
func (p *PresenceRegistry) Add(userId int, connId string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conns[userId] == nil {
		p.conns[userId] = make(map[string]struct{})
	}
	p.conns[userId][connId] = struct{}{}

	return len(p.conns[userId]) == 1
}

// Remove drops a connection and reports whether the user has now gone
// offline entirely.
func (p *PresenceRegistry) Remove(userId int, connId string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	userConns, ok := p.conns[userId]
	if !ok {
		return false
	}

	delete(userConns, connId)
	if len(userConns) == 0 {
		delete(p.conns, userId)
		return true
	}

	return false
}

func (p *PresenceRegistry) Online(userId int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.conns[userId]) > 0
}

// OnlineUserIds returns the ids of all currently online users in
// ascending order.
func (p *PresenceRegistry) OnlineUserIds() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]int, 0, len(p.conns))
	for id := range p.conns {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	return ids
}
