package proxy

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Session is the per-connection intercept state: a stable identity for
// recording plus the id remap table. Inbound client-chosen ids are
// substituted with proxy-internal ids for upstream calls and restored on the
// way back, so identical ids on different connections never collide
// upstream. A session lives exactly as long as its connection and shares no
// mutable buffers with other sessions.
type Session struct {
	ID string

	mu      sync.Mutex
	inbound map[uint64]json.RawMessage
}

// NewSession creates session state for one accepted connection.
func NewSession() *Session {
	return &Session{
		ID:      uuid.NewString(),
		inbound: make(map[uint64]json.RawMessage),
	}
}

// Track stores the inbound id under the proxy-internal id assigned to the
// upstream call.
func (s *Session) Track(internalID uint64, inboundID json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inbound[internalID] = inboundID
}

// Restore returns the inbound id for an internal id and forgets the mapping.
func (s *Session) Restore(internalID uint64) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.inbound[internalID]
	if ok {
		delete(s.inbound, internalID)
	}

	return id, ok
}
