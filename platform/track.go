package platform

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// ErrTrackEnded is returned when writing to a track that has ended.
var ErrTrackEnded = errors.New("platform: track ended")

// Source describes the device or remote feed behind a track. Clones of a
// track share the same Source.
type Source struct {
	id       string
	kind     webrtc.RTPCodecType
	label    string
	deviceID string
	capture  bool
}

// NewCaptureSource describes a local capture device (camera, microphone).
func NewCaptureSource(kind webrtc.RTPCodecType, label, deviceID string) *Source {
	return &Source{id: uuid.NewString(), kind: kind, label: label, deviceID: deviceID, capture: true}
}

// NewRemoteSource describes media arriving from elsewhere (ingest, peer).
func NewRemoteSource(kind webrtc.RTPCodecType, label string) *Source {
	return &Source{id: uuid.NewString(), kind: kind, label: label}
}

// Source accessors. A Source never changes after construction.
func (s *Source) ID() string                { return s.id }
func (s *Source) Kind() webrtc.RTPCodecType { return s.kind }
func (s *Source) Label() string             { return s.label }
func (s *Source) DeviceID() string          { return s.deviceID }
func (s *Source) IsCapture() bool           { return s.capture }

// TrackObserver is told about changes to a single track. Callbacks run
// synchronously on the goroutine that caused the change.
type TrackObserver interface {
	TrackEnded(t *Track)
	TrackMutedChanged(t *Track)
}

// Track is the platform half of a media track. It implements
// webrtc.TrackLocal so it can be attached to a PeerConnection, and only
// forwards RTP while its stream is producing data.
type Track struct {
	id     string
	source *Source
	codec  webrtc.RTPCodecCapability

	ended     atomic.Bool
	muted     atomic.Bool
	enabled   atomic.Bool
	producing atomic.Bool
	written   atomic.Uint64
	dropped   atomic.Uint64

	mu        sync.RWMutex
	streamID  string
	rid       string
	observers []TrackObserver
	bindings  []binding
}

// NewTrack creates a live, enabled track for source. A zero codec picks
// H.264 for video and Opus for audio.
func NewTrack(source *Source, codec webrtc.RTPCodecCapability) *Track {
	if codec.MimeType == "" {
		codec = DefaultCodec(source.kind)
	}
	t := &Track{
		id:     uuid.NewString(),
		source: source,
		codec:  codec,
	}
	t.enabled.Store(true)
	return t
}

// DefaultCodec returns the codec used when a track is created without one.
func DefaultCodec(kind webrtc.RTPCodecType) webrtc.RTPCodecCapability {
	if kind == webrtc.RTPCodecTypeAudio {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000}
}

// Track accessors. State reads are atomic and safe from any goroutine.
func (t *Track) ID() string                       { return t.id }
func (t *Track) Kind() webrtc.RTPCodecType        { return t.source.kind }
func (t *Track) Label() string                    { return t.source.label }
func (t *Track) Source() *Source                  { return t.source }
func (t *Track) IsCapture() bool                  { return t.source.capture }
func (t *Track) Codec() webrtc.RTPCodecCapability { return t.codec }
func (t *Track) Ended() bool                      { return t.ended.Load() }
func (t *Track) Muted() bool                      { return t.muted.Load() }
func (t *Track) Enabled() bool                    { return t.enabled.Load() }
func (t *Track) SetEnabled(e bool)                { t.enabled.Store(e) }
func (t *Track) IsProducingData() bool            { return t.producing.Load() }

// PacketsWritten is the number of RTP packets forwarded to bindings.
func (t *Track) PacketsWritten() uint64 { return t.written.Load() }

// PacketsDropped is the number of RTP packets discarded because the track
// was not producing, disabled or muted.
func (t *Track) PacketsDropped() uint64 { return t.dropped.Load() }

// StreamID implements webrtc.TrackLocal. It is the id of the first
// platform stream the track joined.
func (t *Track) StreamID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.streamID
}

// RID implements webrtc.TrackLocal.
func (t *Track) RID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rid
}

// SetRID sets the simulcast rid reported to senders.
func (t *Track) SetRID(rid string) {
	t.mu.Lock()
	t.rid = rid
	t.mu.Unlock()
}

func (t *Track) joinStream(id string) {
	t.mu.Lock()
	if t.streamID == "" {
		t.streamID = id
	}
	t.mu.Unlock()
}

// SetMuted changes the muted state and notifies observers when it flips.
func (t *Track) SetMuted(muted bool) {
	if t.muted.Swap(muted) == muted {
		return
	}
	for _, o := range t.observerSnapshot() {
		o.TrackMutedChanged(t)
	}
}

// End stops the track permanently. Only the first call notifies observers.
func (t *Track) End() {
	if t.ended.Swap(true) {
		return
	}
	t.producing.Store(false)
	for _, o := range t.observerSnapshot() {
		o.TrackEnded(t)
	}
}

// Clone returns a new live track with a fresh id over the same source.
func (t *Track) Clone() *Track {
	c := NewTrack(t.source, t.codec)
	c.enabled.Store(t.enabled.Load())
	c.muted.Store(t.muted.Load())
	return c
}

// AddObserver registers o. Registering the same observer twice is a no-op.
func (t *Track) AddObserver(o TrackObserver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.observers {
		if existing == o {
			return
		}
	}
	t.observers = append(t.observers, o)
}

// RemoveObserver unregisters o if present.
func (t *Track) RemoveObserver(o TrackObserver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.observers {
		if existing == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// ObserverCount returns the number of registered observers.
func (t *Track) ObserverCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.observers)
}

func (t *Track) observerSnapshot() []TrackObserver {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TrackObserver, len(t.observers))
	copy(out, t.observers)
	return out
}

func (t *Track) startProducing() {
	if !t.ended.Load() {
		t.producing.Store(true)
	}
}

func (t *Track) stopProducing() { t.producing.Store(false) }

// binding is one sender the track is attached to. Packets are rewritten
// with the sender's SSRC and negotiated payload type.
type binding struct {
	id          string
	ssrc        uint32
	payloadType uint8
	writer      webrtc.TrackLocalWriter
}

// Bind implements webrtc.TrackLocal. It picks the first negotiated codec
// with the track's MIME type.
func (t *Track) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	for _, p := range ctx.CodecParameters() {
		if !strings.EqualFold(p.MimeType, t.codec.MimeType) {
			continue
		}
		t.mu.Lock()
		t.bindings = append(t.bindings, binding{
			id:          ctx.ID(),
			ssrc:        uint32(ctx.SSRC()),
			payloadType: uint8(p.PayloadType),
			writer:      ctx.WriteStream(),
		})
		t.mu.Unlock()
		return p, nil
	}
	return webrtc.RTPCodecParameters{}, webrtc.ErrUnsupportedCodec
}

// Unbind implements webrtc.TrackLocal.
func (t *Track) Unbind(ctx webrtc.TrackLocalContext) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, b := range t.bindings {
		if b.id == ctx.ID() {
			t.bindings = append(t.bindings[:i], t.bindings[i+1:]...)
			return nil
		}
	}
	return nil
}

// BindingCount returns the number of senders the track is attached to.
func (t *Track) BindingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bindings)
}

// WriteRTP forwards p to every binding while the track is producing,
// enabled and unmuted. Otherwise the packet is counted as dropped. p is
// not modified.
func (t *Track) WriteRTP(p *rtp.Packet) error {
	if t.ended.Load() {
		return ErrTrackEnded
	}
	if !t.producing.Load() || !t.enabled.Load() || t.muted.Load() {
		t.dropped.Add(1)
		return nil
	}

	t.mu.RLock()
	bindings := make([]binding, len(t.bindings))
	copy(bindings, t.bindings)
	t.mu.RUnlock()

	var errs []error
	for _, b := range bindings {
		header := p.Header
		header.SSRC = b.ssrc
		header.PayloadType = b.payloadType
		if _, err := b.writer.WriteRTP(&header, p.Payload); err != nil {
			errs = append(errs, err)
		}
	}
	t.written.Add(1)
	return errors.Join(errs...)
}

var _ webrtc.TrackLocal = (*Track)(nil)
