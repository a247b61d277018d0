package platform

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// NotifyOption controls whether a mutation is reported back to observers.
type NotifyOption int

const (
	Notify     NotifyOption = iota // report the change to observers
	DontNotify                     // the caller already knows
)

// Observer receives platform stream notifications. Callbacks run
// synchronously on the goroutine that made the change; observers bound to
// an event loop must re-post them.
type Observer interface {
	DidAddTrack(t *Track)
	DidRemoveTrack(t *Track)
	ActiveStatusChanged()
	CharacteristicsChanged()
}

// Stream is the authoritative set of platform tracks behind one or more
// public streams. It is safe for concurrent use.
type Stream struct {
	id      string
	watcher *trackWatcher

	mu        sync.Mutex
	tracks    map[string]*Track
	order     []*Track
	observers []Observer
	active    bool
	producing bool
}

// NewStream creates a platform stream with a random id.
func NewStream(tracks ...*Track) *Stream {
	return NewStreamWithID(uuid.NewString(), tracks...)
}

// NewStreamWithID creates a platform stream holding tracks. Duplicate
// track ids are ignored.
func NewStreamWithID(id string, tracks ...*Track) *Stream {
	s := &Stream{
		id:     id,
		tracks: make(map[string]*Track, len(tracks)),
	}
	s.watcher = &trackWatcher{stream: s}
	for _, t := range tracks {
		if _, ok := s.tracks[t.id]; ok {
			continue
		}
		s.tracks[t.id] = t
		s.order = append(s.order, t)
		t.joinStream(id)
		t.AddObserver(s.watcher)
	}
	s.active = s.computeActiveLocked()
	return s
}

// ID returns the stream id, which is fixed at construction.
func (s *Stream) ID() string { return s.id }

// Tracks returns the tracks in insertion order.
func (s *Stream) Tracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Track, len(s.order))
	copy(out, s.order)
	return out
}

// Track returns the track with id, if present.
func (s *Stream) Track(id string) (*Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	return t, ok
}

// AddTrack inserts t. It returns false if a track with the same id is
// already present.
func (s *Stream) AddTrack(t *Track, opt NotifyOption) bool {
	s.mu.Lock()
	if _, ok := s.tracks[t.id]; ok {
		s.mu.Unlock()
		return false
	}
	s.tracks[t.id] = t
	s.order = append(s.order, t)
	if s.producing {
		t.startProducing()
	}
	s.mu.Unlock()

	t.joinStream(s.id)
	t.AddObserver(s.watcher)

	if opt == Notify {
		for _, o := range s.observerSnapshot() {
			o.DidAddTrack(t)
		}
	}
	s.updateActiveState(opt)
	return true
}

// RemoveTrack removes t. It returns false if t is not present.
func (s *Stream) RemoveTrack(t *Track, opt NotifyOption) bool {
	s.mu.Lock()
	if _, ok := s.tracks[t.id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.tracks, t.id)
	for i, existing := range s.order {
		if existing == t {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	t.RemoveObserver(s.watcher)

	if opt == Notify {
		for _, o := range s.observerSnapshot() {
			o.DidRemoveTrack(t)
		}
	}
	s.updateActiveState(opt)
	return true
}

// Active reports whether any track has not ended.
func (s *Stream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// UpdateActiveState recomputes liveness and, with Notify, tells observers
// when it changed.
func (s *Stream) UpdateActiveState(opt NotifyOption) { s.updateActiveState(opt) }

func (s *Stream) updateActiveState(opt NotifyOption) {
	s.mu.Lock()
	active := s.computeActiveLocked()
	changed := active != s.active
	s.active = active
	s.mu.Unlock()

	if changed && opt == Notify {
		for _, o := range s.observerSnapshot() {
			o.ActiveStatusChanged()
		}
	}
}

func (s *Stream) computeActiveLocked() bool {
	for _, t := range s.order {
		if !t.Ended() {
			return true
		}
	}
	return false
}

// HasAudio reports whether any live track carries audio.
func (s *Stream) HasAudio() bool { return s.hasKind(webrtc.RTPCodecTypeAudio, false) }
// HasVideo reports whether any live track carries video.
func (s *Stream) HasVideo() bool { return s.hasKind(webrtc.RTPCodecTypeVideo, false) }

// HasCaptureAudioSource reports whether a live audio track comes from a
// capture device.
func (s *Stream) HasCaptureAudioSource() bool { return s.hasKind(webrtc.RTPCodecTypeAudio, true) }
// HasCaptureVideoSource reports whether a live video track comes from a
// capture device.
func (s *Stream) HasCaptureVideoSource() bool { return s.hasKind(webrtc.RTPCodecTypeVideo, true) }

func (s *Stream) hasKind(kind webrtc.RTPCodecType, captureOnly bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.order {
		if t.Ended() || t.Kind() != kind {
			continue
		}
		if !captureOnly || t.IsCapture() {
			return true
		}
	}
	return false
}

// Muted reports whether every live track is muted. A stream without live
// tracks is not muted.
func (s *Stream) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := 0
	for _, t := range s.order {
		if t.Ended() {
			continue
		}
		live++
		if !t.Muted() {
			return false
		}
	}
	return live > 0
}

// SetCaptureTracksMuted mutes or unmutes every capture track.
func (s *Stream) SetCaptureTracksMuted(muted bool) {
	for _, t := range s.Tracks() {
		if t.IsCapture() {
			t.SetMuted(muted)
		}
	}
}

// StartProducingData lets every track forward media.
func (s *Stream) StartProducingData() {
	s.mu.Lock()
	if s.producing {
		s.mu.Unlock()
		return
	}
	s.producing = true
	tracks := make([]*Track, len(s.order))
	copy(tracks, s.order)
	s.mu.Unlock()

	for _, t := range tracks {
		t.startProducing()
	}
}

// StopProducingData stops media on every track.
func (s *Stream) StopProducingData() {
	s.mu.Lock()
	if !s.producing {
		s.mu.Unlock()
		return
	}
	s.producing = false
	tracks := make([]*Track, len(s.order))
	copy(tracks, s.order)
	s.mu.Unlock()

	for _, t := range tracks {
		t.stopProducing()
	}
}

// IsProducingData reports whether StartProducingData was called without a
// matching StopProducingData.
func (s *Stream) IsProducingData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.producing
}

// AddObserver registers o. Registering the same observer twice is a no-op.
func (s *Stream) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.observers {
		if existing == o {
			return
		}
	}
	s.observers = append(s.observers, o)
}

// RemoveObserver unregisters o if present.
func (s *Stream) RemoveObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// ObserverCount returns the number of registered observers.
func (s *Stream) ObserverCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

func (s *Stream) observerSnapshot() []Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Observer, len(s.observers))
	copy(out, s.observers)
	return out
}

// trackWatcher relays member track changes into stream notifications.
type trackWatcher struct {
	stream *Stream
}

func (w *trackWatcher) TrackEnded(*Track) {
	w.stream.updateActiveState(Notify)
}

func (w *trackWatcher) TrackMutedChanged(*Track) {
	for _, o := range w.stream.observerSnapshot() {
		o.CharacteristicsChanged()
	}
}
