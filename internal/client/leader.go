package client

import (
	"sync"

	"github.com/jason-s-yu/dotr/internal/models"
)

// LeaderHandler receives the opponent's deck leader.
type LeaderHandler func(leader models.Card, opponentName string)

type pendingLeader struct {
	leader models.Card
	name   string
}

// LeaderSlot delivers opponentDeckLeader messages to a handler that may be installed
// after the message arrives. It buffers a single message: a second arrival before a
// handler is installed replaces the first.
type LeaderSlot struct {
	mu      sync.Mutex
	handler LeaderHandler
	pending *pendingLeader
}

// Deliver hands the leader to the installed handler, or buffers it.
func (s *LeaderSlot) Deliver(leader models.Card, opponentName string) {
	s.mu.Lock()
	h := s.handler
	if h == nil {
		s.pending = &pendingLeader{leader: leader, name: opponentName}
	}
	s.mu.Unlock()

	if h != nil {
		h(leader, opponentName)
	}
}

// Install sets the handler. A buffered leader is delivered to it before Install
// returns and is then discarded.
func (s *LeaderSlot) Install(h LeaderHandler) {
	s.mu.Lock()
	s.handler = h
	p := s.pending
	if h != nil {
		s.pending = nil
	}
	s.mu.Unlock()

	if h != nil && p != nil {
		h(p.leader, p.name)
	}
}

// Pending reports whether a leader is buffered.
func (s *LeaderSlot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}
