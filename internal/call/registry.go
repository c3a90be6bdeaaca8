// Package call owns live phone-call sessions: the per-call state
// machine and the process-wide registry of calls in flight.
package call

import "sync"

// Registry is the table of live sessions, keyed by call id with a
// secondary lookup by telephony stream id. It is injected wherever
// live calls need to be found; entries exist only while a call is
// live, durable storage takes over afterwards.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session under its call id. The stream id must be
// unique among live sessions; duplicates are refused.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return ErrDuplicateCall
	}
	if sid := s.StreamSID(); sid != "" {
		for _, other := range r.sessions {
			if other.StreamSID() == sid {
				return ErrDuplicateStream
			}
		}
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *Registry) Get(callID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[callID]
	return s, ok
}

// Update applies fn to the live session, if any, while the registry
// lock is held so Add and Remove cannot interleave with the mutation.
func (r *Registry) Update(callID string, fn func(*Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// ClaimStream reserves a telephony stream id for a registered session
// before its media stream attaches. An id already bound to another
// live session, or a second stream for the same session, is refused.
func (r *Registry) ClaimStream(callID, streamSID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.sessions[callID]
	if !ok {
		return nil, ErrUnknownCall
	}
	for id, s := range r.sessions {
		if id != callID && s.StreamSID() == streamSID {
			return nil, ErrDuplicateStream
		}
	}
	if err := target.claimStream(streamSID); err != nil {
		return nil, err
	}
	return target, nil
}

// GetByStreamID scans for the session bound to a telephony stream.
// Linear scan is fine: the provider concurrency ceiling keeps the
// table tiny.
func (r *Registry) GetByStreamID(streamSID string) (*Session, bool) {
	if streamSID == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.StreamSID() == streamSID {
			return s, true
		}
	}
	return nil, false
}

// ListActive returns sessions not yet in a terminal status.
func (r *Registry) ListActive() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if !s.Status().Terminal() {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callID)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
