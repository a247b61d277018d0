package mediastream

import (
	"log/slog"

	"github.com/thesyncim/mediastream/platform"
)

// Config binds a Stream to its queue and host services. Only Queue is
// required; the others default to no-ops and Logger to slog.Default().
type Config struct {
	Queue    TaskQueue
	Registry Registry
	Host     Host
	Session  SessionAuthority
	Recorder Recorder
	Logger   *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Queue == nil {
		panic("mediastream: Config.Queue is required")
	}
	if c.Registry == nil {
		c.Registry = nopRegistry{}
	}
	if c.Host == nil {
		c.Host = nopHost{}
	}
	if c.Session == nil {
		c.Session = nopSession{}
	}
	if c.Recorder == nil {
		c.Recorder = nopRecorder{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Stream is a set of tracks kept in step with a platform stream. All
// methods must be called from the goroutine draining cfg.Queue.
type Stream struct {
	cfg       Config
	log       *slog.Logger
	private   PlatformStream
	relay     *platformRelay
	scheduler *dispatchScheduler

	tracks map[string]*Track
	order  []*Track

	observers      []Observer
	listeners      map[EventType][]listener
	nextListenerID uint64

	active               bool
	muted                bool
	producing            bool
	waitingForMediaStart bool
	closed               bool
}

// NewStream creates a stream holding tracks, backed by a new platform
// stream. With no tracks the stream starts empty and inactive.
func NewStream(cfg Config, tracks ...*Track) *Stream {
	privates := make([]*platform.Track, 0, len(tracks))
	for _, t := range tracks {
		privates = append(privates, t.private)
	}

	s := newStream(cfg, platform.NewStream(privates...))
	for _, t := range tracks {
		if _, ok := s.tracks[t.ID()]; ok {
			continue
		}
		s.insert(t)
	}
	s.finishInit()
	return s
}

// NewStreamFrom creates a stream sharing other's current tracks. Later
// changes to either stream are not mirrored.
func NewStreamFrom(cfg Config, other *Stream) *Stream {
	return NewStream(cfg, other.GetTracks()...)
}

// NewStreamFromPlatform wraps an existing platform stream, creating a
// Track for each of its platform tracks.
func NewStreamFromPlatform(cfg Config, private PlatformStream) *Stream {
	s := newStream(cfg, private)
	if s.cfg.Host.IsMediaCaptureMuted() {
		private.SetCaptureTracksMuted(true)
	}
	for _, p := range private.Tracks() {
		s.insert(NewTrack(s.cfg.Queue, p))
	}
	s.finishInit()
	return s
}

func newStream(cfg Config, private PlatformStream) *Stream {
	cfg = cfg.withDefaults()
	s := &Stream{
		cfg:       cfg,
		private:   private,
		tracks:    make(map[string]*Track),
		listeners: make(map[EventType][]listener),
	}
	s.log = cfg.Logger.With("component", "mediastream", "stream_id", private.ID())
	s.relay = &platformRelay{stream: s}
	s.scheduler = newDispatchScheduler(cfg.Queue, s.dispatch)
	// Observe before the caller reads private's tracks: a track added
	// concurrently is then either in that snapshot or reported later, and
	// the report of a known track is dropped.
	private.AddObserver(s.relay)
	return s
}

func (s *Stream) finishInit() {
	s.muted = s.private.Muted()
	if s.computeActive() {
		s.setActive(true)
	}
	s.cfg.Registry.Register(s)
	s.cfg.Host.AddAudioProducer(s)

	s.log.Debug("stream created", "tracks", len(s.order), "active", s.active)
}

// ID returns the platform stream id.
func (s *Stream) ID() string { return s.private.ID() }

// Active reports whether any track has not ended.
func (s *Stream) Active() bool { return s.active }

// Muted reports the last muted state seen from the platform stream.
func (s *Stream) Muted() bool { return s.muted }

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool { return s.closed }

// Private returns the platform stream.
func (s *Stream) Private() PlatformStream { return s.private }

// Clone creates an independent stream holding clones of every track.
func (s *Stream) Clone() *Stream {
	return NewStream(s.cfg, s.cloneAll()...)
}

func (s *Stream) cloneAll() []*Track {
	cloned := make([]*Track, 0, len(s.order))
	for _, t := range s.order {
		cloned = append(cloned, t.Clone())
	}
	return cloned
}

// AddTrack adds t on behalf of the application. The platform stream is
// updated silently and no addtrack event fires. It returns false if a
// track with the same id is already present.
func (s *Stream) AddTrack(t *Track) bool {
	if s.closed || !s.addTrack(t, OriginApplication) {
		return false
	}
	s.notifyObservers()
	return true
}

// RemoveTrack removes t on behalf of the application. It returns false if
// no track with t's id is present.
func (s *Stream) RemoveTrack(t *Track) bool {
	if s.closed || !s.removeTrack(t.ID(), OriginApplication) {
		return false
	}
	s.notifyObservers()
	return true
}

// AddTrackFromPlatform publishes t as if the platform had produced it:
// the platform stream is told with notification and an addtrack event
// fires once.
func (s *Stream) AddTrackFromPlatform(t *Track) bool {
	if s.closed {
		return false
	}
	s.private.AddTrack(t.private, platform.Notify)
	return s.addTrack(t, OriginPlatform)
}

// GetTrackByID returns the track with id.
func (s *Stream) GetTrackByID(id string) (*Track, bool) {
	t, ok := s.tracks[id]
	return t, ok
}

// GetTracks returns every track in insertion order.
func (s *Stream) GetTracks() []*Track {
	out := make([]*Track, len(s.order))
	copy(out, s.order)
	return out
}

// GetAudioTracks returns the audio tracks in insertion order.
func (s *Stream) GetAudioTracks() []*Track { return tracksOfKind(s.order, KindAudio) }
// GetVideoTracks returns the video tracks in insertion order.
func (s *Stream) GetVideoTracks() []*Track { return tracksOfKind(s.order, KindVideo) }

func (s *Stream) insert(t *Track) {
	s.tracks[t.ID()] = t
	s.order = append(s.order, t)
	t.addObserver(s)
}

func (s *Stream) addTrack(t *Track, origin Origin) bool {
	if _, ok := s.tracks[t.ID()]; ok {
		return false
	}
	s.insert(t)
	s.cfg.Recorder.TrackAdded(origin)

	switch origin {
	case OriginApplication:
		if !s.private.AddTrack(t.private, platform.DontNotify) {
			s.log.Debug("platform stream already holds track", "track_id", t.ID())
		}
	case OriginPlatform:
		s.scheduler.enqueue(Event{Type: EventAddTrack, Track: t})
	}

	s.log.Debug("track added", "track_id", t.ID(), "kind", t.Kind().String(), "origin", origin.String())
	s.updateActiveState()
	return true
}

func (s *Stream) removeTrack(id string, origin Origin) bool {
	t, ok := s.tracks[id]
	if !ok {
		return false
	}
	delete(s.tracks, id)
	for i, existing := range s.order {
		if existing == t {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	t.removeObserver(s)
	s.cfg.Recorder.TrackRemoved(origin)

	switch origin {
	case OriginApplication:
		if !s.private.RemoveTrack(t.private, platform.DontNotify) {
			s.log.Debug("platform stream did not hold track", "track_id", id)
		}
	case OriginPlatform:
		s.scheduler.enqueue(Event{Type: EventRemoveTrack, Track: t})
	}

	s.log.Debug("track removed", "track_id", id, "origin", origin.String())
	s.updateActiveState()
	return true
}

func (s *Stream) notifyObservers() {
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	for _, o := range observers {
		o.DidAddOrRemoveTrack(s)
	}
}

// AddObserver registers o. Adding the same observer twice is a no-op.
func (s *Stream) AddObserver(o Observer) {
	for _, existing := range s.observers {
		if existing == o {
			return
		}
	}
	s.observers = append(s.observers, o)
}

// RemoveObserver unregisters o if present.
func (s *Stream) RemoveObserver(o Observer) {
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// On registers fn for events of type t and returns a function that
// removes it.
func (s *Stream) On(t EventType, fn EventListener) func() {
	s.nextListenerID++
	id := s.nextListenerID
	s.listeners[t] = append(s.listeners[t], listener{id: id, fn: fn})
	return func() {
		ls := s.listeners[t]
		for i, l := range ls {
			if l.id == id {
				s.listeners[t] = append(ls[:i:i], ls[i+1:]...)
				return
			}
		}
	}
}

func (s *Stream) dispatch(ev Event) {
	ls := s.listeners[ev.Type]
	snapshot := make([]listener, len(ls))
	copy(snapshot, ls)

	s.cfg.Recorder.EventDispatched(ev.Type)
	for _, l := range snapshot {
		l.fn(ev)
	}
}

func (s *Stream) computeActive() bool {
	for _, t := range s.order {
		if !t.Ended() {
			return true
		}
	}
	return false
}

// updateActiveState recomputes liveness from the track set and queues one
// activity event when it changed.
func (s *Stream) updateActiveState() {
	if s.closed {
		return
	}
	active := s.computeActive()
	if active == s.active {
		return
	}
	s.setActive(active)

	if active {
		s.scheduler.enqueue(Event{Type: EventActive})
	} else {
		s.scheduler.enqueue(Event{Type: EventInactive})
	}
	s.cfg.Recorder.ActiveChanged(active)
	s.log.Debug("activity changed", "active", active)
}

func (s *Stream) setActive(active bool) {
	if s.active == active {
		return
	}
	s.active = active
	s.statusDidChange()
}

func (s *Stream) statusDidChange() {
	s.cfg.Session.CanProduceAudioChanged(s)
	if s.active {
		s.cfg.Host.SetHasActiveMediaStreamTrack()
	}
	s.cfg.Host.UpdateIsPlayingMedia()
}

func (s *Stream) trackDidEnd(*Track) {
	if s.closed {
		return
	}
	s.updateActiveState()
}

func (s *Stream) didAddTrack(p *platform.Track) {
	if _, ok := s.tracks[p.ID()]; ok {
		return
	}
	s.addTrack(NewTrack(s.cfg.Queue, p), OriginPlatform)
}

func (s *Stream) didRemoveTrack(p *platform.Track) {
	s.removeTrack(p.ID(), OriginPlatform)
}

func (s *Stream) characteristicsChanged() {
	muted := s.private.Muted()
	if muted == s.muted {
		return
	}
	s.muted = muted
	s.statusDidChange()
}

// Close tears the stream down. The stream reads as inactive before any
// collaborator is told, pending events are dropped, and every observer
// registration made by the stream is undone. Close is idempotent.
func (s *Stream) Close() {
	if s.closed {
		return
	}
	s.active = false
	s.closed = true
	s.scheduler.cancel()

	s.cfg.Registry.Unregister(s)
	s.private.RemoveObserver(s.relay)
	for _, t := range s.order {
		t.removeObserver(s)
	}
	s.cfg.Host.RemoveAudioProducer(s)
	if s.waitingForMediaStart {
		s.waitingForMediaStart = false
		s.cfg.Host.RemoveMediaCanStartListener(s)
	}
	s.cfg.Session.RemoveSession(s)

	s.log.Debug("stream closed")
}

// platformRelay moves platform stream callbacks onto the stream's queue.
type platformRelay struct {
	stream *Stream
}

func (r *platformRelay) post(fn func(s *Stream)) {
	s := r.stream
	s.cfg.Queue.Post(func() {
		if s.closed {
			return
		}
		fn(s)
	})
}

func (r *platformRelay) DidAddTrack(t *platform.Track) {
	r.post(func(s *Stream) { s.didAddTrack(t) })
}

func (r *platformRelay) DidRemoveTrack(t *platform.Track) {
	r.post(func(s *Stream) { s.didRemoveTrack(t) })
}

func (r *platformRelay) ActiveStatusChanged() {
	r.post(func(s *Stream) { s.updateActiveState() })
}

func (r *platformRelay) CharacteristicsChanged() {
	r.post(func(s *Stream) { s.characteristicsChanged() })
}
