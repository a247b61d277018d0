package mediastream

import (
	"log/slog"
	"sort"
	"sync"
)

// SessionState is what a SessionManager last saw of a client.
type SessionState struct {
	ID              string
	MediaType       MediaType
	Characteristics Characteristics
	CanProduceAudio bool
	Changes         int
}

// SessionManager is a SessionAuthority that records, per client, whether
// it can currently produce audio. It is safe for concurrent use.
type SessionManager struct {
	log *slog.Logger

	mu       sync.Mutex
	sessions map[string]*SessionState
}

// NewSessionManager creates a manager. If log is nil, slog.Default() is
// used.
func NewSessionManager(log *slog.Logger) *SessionManager {
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{
		log:      log.With("component", "session-manager"),
		sessions: make(map[string]*SessionState),
	}
}

// CanProduceAudioChanged implements SessionAuthority. The client's
// projections are sampled at the time of the call.
func (m *SessionManager) CanProduceAudioChanged(c SessionClient) {
	next := SessionState{
		ID:              c.ID(),
		MediaType:       c.MediaType(),
		Characteristics: c.Characteristics(),
		CanProduceAudio: c.CanProduceAudio(),
	}

	m.mu.Lock()
	st, ok := m.sessions[next.ID]
	if !ok {
		st = &SessionState{ID: next.ID}
		m.sessions[next.ID] = st
	}
	flipped := ok && st.CanProduceAudio != next.CanProduceAudio
	next.Changes = st.Changes + 1
	*st = next
	m.mu.Unlock()

	if flipped {
		m.log.Debug("can produce audio changed", "session_id", next.ID, "can_produce_audio", next.CanProduceAudio)
	}
}

// RemoveSession implements SessionAuthority.
func (m *SessionManager) RemoveSession(c SessionClient) {
	m.mu.Lock()
	delete(m.sessions, c.ID())
	m.mu.Unlock()
}

// Session returns the last state recorded for id.
func (m *SessionManager) Session(id string) (SessionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[id]
	if !ok {
		return SessionState{}, false
	}
	return *st, true
}

// Sessions returns every recorded session sorted by id.
func (m *SessionManager) Sessions() []SessionState {
	m.mu.Lock()
	out := make([]SessionState, 0, len(m.sessions))
	for _, st := range m.sessions {
		out = append(out, *st)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AudibleCount returns the number of sessions that can produce audio.
func (m *SessionManager) AudibleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, st := range m.sessions {
		if st.CanProduceAudio {
			n++
		}
	}
	return n
}
