package mediastream

import (
	"github.com/thesyncim/mediastream/platform"
)

// PlatformStream is the low-level stream a Stream wraps. platform.Stream
// implements it.
type PlatformStream interface {
	ID() string
	Tracks() []*platform.Track
	AddTrack(t *platform.Track, opt platform.NotifyOption) bool
	RemoveTrack(t *platform.Track, opt platform.NotifyOption) bool
	Active() bool
	HasAudio() bool
	HasVideo() bool
	HasCaptureAudioSource() bool
	HasCaptureVideoSource() bool
	Muted() bool
	SetCaptureTracksMuted(muted bool)
	StartProducingData()
	StopProducingData()
	IsProducingData() bool
	AddObserver(o platform.Observer)
	RemoveObserver(o platform.Observer)
}

var _ PlatformStream = (*platform.Stream)(nil)

// Registry looks streams up by id. Streams register on construction and
// unregister on Close.
type Registry interface {
	Register(s *Stream)
	Unregister(s *Stream)
}

// MediaProducer is what a Host tracks for its playing-media state.
type MediaProducer interface {
	ID() string
	MediaState() MediaState
	PageMutedStateDidChange()
}

// MediaCanStartListener is called once when the host allows media to start.
type MediaCanStartListener interface {
	MediaCanStart()
}

// Host is the document-like context streams live in. Its methods are
// called from the stream's own queue.
type Host interface {
	AddAudioProducer(p MediaProducer)
	RemoveAudioProducer(p MediaProducer)
	CanStartMedia() bool
	AddMediaCanStartListener(l MediaCanStartListener)
	RemoveMediaCanStartListener(l MediaCanStartListener)
	IsMediaCaptureMuted() bool
	SetHasActiveMediaStreamTrack()
	UpdateIsPlayingMedia()
}

// SessionClient is the view a SessionAuthority has of a stream.
type SessionClient interface {
	ID() string
	MediaType() MediaType
	Characteristics() Characteristics
	CanProduceAudio() bool
}

// SessionAuthority is the playback/session layer that decides what may
// play. Streams tell it whenever their ability to produce audio may have
// changed.
type SessionAuthority interface {
	CanProduceAudioChanged(c SessionClient)
	RemoveSession(c SessionClient)
}

// Recorder receives counters from streams and registries.
// internal/metrics provides a Prometheus implementation.
type Recorder interface {
	TrackAdded(origin Origin)
	TrackRemoved(origin Origin)
	ActiveChanged(active bool)
	EventDispatched(t EventType)
	StreamRegistered(total int)
	StreamUnregistered(total int)
}

type nopRegistry struct{}

func (nopRegistry) Register(*Stream)   {}
func (nopRegistry) Unregister(*Stream) {}

type nopHost struct{}

func (nopHost) AddAudioProducer(MediaProducer)                    {}
func (nopHost) RemoveAudioProducer(MediaProducer)                 {}
func (nopHost) CanStartMedia() bool                               { return true }
func (nopHost) AddMediaCanStartListener(MediaCanStartListener)    {}
func (nopHost) RemoveMediaCanStartListener(MediaCanStartListener) {}
func (nopHost) IsMediaCaptureMuted() bool                         { return false }
func (nopHost) SetHasActiveMediaStreamTrack()                     {}
func (nopHost) UpdateIsPlayingMedia()                             {}

type nopSession struct{}

func (nopSession) CanProduceAudioChanged(SessionClient) {}
func (nopSession) RemoveSession(SessionClient)          {}

type nopRecorder struct{}

func (nopRecorder) TrackAdded(Origin)         {}
func (nopRecorder) TrackRemoved(Origin)       {}
func (nopRecorder) ActiveChanged(bool)        {}
func (nopRecorder) EventDispatched(EventType) {}
func (nopRecorder) StreamRegistered(int)      {}
func (nopRecorder) StreamUnregistered(int)    {}
