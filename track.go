package mediastream

import (
	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/mediastream/platform"
)

// Kind is the media kind of a track. It re-exports pion's RTPCodecType.
type Kind = webrtc.RTPCodecType

const (
	KindUnknown = webrtc.RTPCodecTypeUnknown
	KindAudio   = webrtc.RTPCodecTypeAudio
	KindVideo   = webrtc.RTPCodecTypeVideo
)

// trackObserver is implemented by streams holding a track.
type trackObserver interface {
	trackDidEnd(t *Track)
}

// Track is the application-facing wrapper of one platform track. It is
// bound to the queue it was created with.
//
// The platform track may outlive the wrapper and may be wrapped by other
// Tracks at the same time.
type Track struct {
	private   *platform.Track
	queue     TaskQueue
	relay     *trackRelay
	observers []trackObserver
}

// NewTrack wraps private. End notifications from the platform are posted
// onto queue.
func NewTrack(queue TaskQueue, private *platform.Track) *Track {
	t := &Track{private: private, queue: queue}
	t.relay = &trackRelay{track: t}
	return t
}

// Track accessors read through to the platform track.
func (t *Track) ID() string               { return t.private.ID() }
func (t *Track) Kind() Kind               { return t.private.Kind() }
func (t *Track) Label() string            { return t.private.Label() }
func (t *Track) Ended() bool              { return t.private.Ended() }
func (t *Track) Muted() bool              { return t.private.Muted() }
func (t *Track) Enabled() bool            { return t.private.Enabled() }
func (t *Track) SetEnabled(e bool)        { t.private.SetEnabled(e) }
func (t *Track) IsCaptureTrack() bool     { return t.private.IsCapture() }
func (t *Track) Private() *platform.Track { return t.private }

// Stop ends the platform track. Streams holding the track learn about it
// on a later tick of their queue.
func (t *Track) Stop() { t.private.End() }

// Clone returns a new Track with a fresh id over the same source.
func (t *Track) Clone() *Track {
	return NewTrack(t.queue, t.private.Clone())
}

// addObserver registers o. The track only watches its platform track
// while it has observers.
func (t *Track) addObserver(o trackObserver) {
	for _, existing := range t.observers {
		if existing == o {
			return
		}
	}
	t.observers = append(t.observers, o)
	if len(t.observers) == 1 {
		t.private.AddObserver(t.relay)
	}
}

func (t *Track) removeObserver(o trackObserver) {
	for i, existing := range t.observers {
		if existing == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			if len(t.observers) == 0 {
				t.private.RemoveObserver(t.relay)
			}
			return
		}
	}
}

func (t *Track) didEnd() {
	observers := make([]trackObserver, len(t.observers))
	copy(observers, t.observers)
	for _, o := range observers {
		o.trackDidEnd(t)
	}
}

// trackRelay moves platform track callbacks onto the track's queue.
type trackRelay struct {
	track *Track
}

func (r *trackRelay) TrackEnded(*platform.Track) {
	r.track.queue.Post(r.track.didEnd)
}

func (r *trackRelay) TrackMutedChanged(*platform.Track) {}

func tracksOfKind(tracks []*Track, kind Kind) []*Track {
	var out []*Track
	for _, t := range tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}
