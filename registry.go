package mediastream

import (
	"log/slog"
	"sort"
	"sync"
)

// StreamRegistry looks streams up by id. It is safe for concurrent use,
// but the streams it returns must still only be used on their own queue.
type StreamRegistry struct {
	log      *slog.Logger
	recorder Recorder

	mu      sync.RWMutex
	streams map[string]*Stream
}

// NewStreamRegistry creates an empty registry. If log is nil,
// slog.Default() is used; rec may be nil.
func NewStreamRegistry(log *slog.Logger, rec Recorder) *StreamRegistry {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &StreamRegistry{
		log:      log.With("component", "stream-registry"),
		recorder: rec,
		streams:  make(map[string]*Stream),
	}
}

// Register adds s under its id, replacing nothing: a second stream with the
// same id is ignored.
func (r *StreamRegistry) Register(s *Stream) {
	r.mu.Lock()
	if _, ok := r.streams[s.ID()]; ok {
		r.mu.Unlock()
		r.log.Warn("stream already registered", "stream_id", s.ID())
		return
	}
	r.streams[s.ID()] = s
	total := len(r.streams)
	r.mu.Unlock()

	r.recorder.StreamRegistered(total)
	r.log.Debug("stream registered", "stream_id", s.ID(), "total", total)
}

// Unregister removes s. Unregistering a stream that is not registered is a
// no-op.
func (r *StreamRegistry) Unregister(s *Stream) {
	r.mu.Lock()
	existing, ok := r.streams[s.ID()]
	if !ok || existing != s {
		r.mu.Unlock()
		return
	}
	delete(r.streams, s.ID())
	total := len(r.streams)
	r.mu.Unlock()

	r.recorder.StreamUnregistered(total)
	r.log.Debug("stream unregistered", "stream_id", s.ID(), "total", total)
}

// Lookup returns the stream registered under id.
func (r *StreamRegistry) Lookup(id string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[id]
	return s, ok
}

// List returns every registered stream sorted by id.
func (r *StreamRegistry) List() []*Stream {
	r.mu.RLock()
	streams := make([]*Stream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	r.mu.RUnlock()

	sort.Slice(streams, func(i, j int) bool { return streams[i].ID() < streams[j].ID() })
	return streams
}

// Len returns the number of registered streams.
func (r *StreamRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}
