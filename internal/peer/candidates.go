package peer

import (
	"sync"

	"github.com/pion/webrtc/v3"
)

// candidateQueue holds remote ICE candidates that arrive before the remote
// description is set. Once ready, candidates pass straight through.
type candidateQueue struct {
	mu      sync.Mutex
	ready   bool
	pending []webrtc.ICECandidateInit
}

// add applies c now if the queue is ready, otherwise buffers it.
func (q *candidateQueue) add(c webrtc.ICECandidateInit, apply func(webrtc.ICECandidateInit) error) error {
	q.mu.Lock()
	if !q.ready {
		q.pending = append(q.pending, c)
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()
	return apply(c)
}

// flush marks the queue ready and applies every buffered candidate in arrival
// order. It returns the first error but still attempts the rest.
func (q *candidateQueue) flush(apply func(webrtc.ICECandidateInit) error) error {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.ready = true
	q.mu.Unlock()

	var first error
	for _, c := range pending {
		if err := apply(c); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (q *candidateQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
