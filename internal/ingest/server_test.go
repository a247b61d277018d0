package ingest

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	rtmpmsg "github.com/yutopp/go-rtmp/message"

	"github.com/thesyncim/mediastream/platform"
)

type countingRecorder struct {
	started, ended int
	forwarded      map[string]int
}

func (r *countingRecorder) PublishStarted() { r.started++ }
func (r *countingRecorder) PublishEnded()   { r.ended++ }
func (r *countingRecorder) PacketForwarded(kind string) {
	if r.forwarded == nil {
		r.forwarded = make(map[string]int)
	}
	r.forwarded[kind]++
}

type streamEvents struct {
	added, removed int
}

func (e *streamEvents) DidAddTrack(*platform.Track)    { e.added++ }
func (e *streamEvents) DidRemoveTrack(*platform.Track) { e.removed++ }
func (e *streamEvents) ActiveStatusChanged()           {}
func (e *streamEvents) CharacteristicsChanged()        {}

func publish(t *testing.T, h *handler, name string) {
	t.Helper()
	if err := h.OnPublish(nil, 0, &rtmpmsg.NetStreamPublish{PublishingName: name}); err != nil {
		t.Fatalf("OnPublish(%q) error = %v", name, err)
	}
}

func TestHandler_PublishLifecycle(t *testing.T) {
	rec := &countingRecorder{}
	events := &streamEvents{}
	var published, unpublished *platform.Stream

	srv := NewServer(Config{
		Recorder: rec,
		OnPublish: func(name string, s *platform.Stream) {
			published = s
			s.AddObserver(events)
		},
		OnUnpublish: func(name string, s *platform.Stream) { unpublished = s },
	})
	h := srv.newHandler()
	publish(t, h, "live")

	if published == nil {
		t.Fatal("OnPublish callback not called")
	}
	if got := srv.Publishers(); len(got) != 1 || got[0] != "live" {
		t.Errorf("Publishers() = %v, want [live]", got)
	}

	keyframe := avcNALUTag(true, []byte{0x65, 0x88, 0x84})

	// Frames before the sequence header have nowhere to go.
	if err := h.OnVideo(0, bytes.NewReader(keyframe)); err != nil {
		t.Fatalf("OnVideo() error = %v", err)
	}
	if n := len(published.Tracks()); n != 0 {
		t.Fatalf("tracks before sequence header = %d, want 0", n)
	}

	if err := h.OnVideo(0, bytes.NewReader(avcSequenceTag())); err != nil {
		t.Fatalf("OnVideo(sequence header) error = %v", err)
	}
	if events.added != 1 || !published.HasVideo() {
		t.Fatalf("after sequence header added = %d, HasVideo = %v", events.added, published.HasVideo())
	}
	video := published.Tracks()[0]
	if video.Codec().MimeType != webrtc.MimeTypeH264 || video.IsCapture() {
		t.Errorf("video track codec = %v, capture = %v", video.Codec(), video.IsCapture())
	}

	// Not producing yet: packets are dropped.
	h.OnVideo(33, bytes.NewReader(keyframe))
	if video.PacketsDropped() == 0 || rec.forwarded["video"] != 0 {
		t.Errorf("dropped = %d, forwarded = %d before producing", video.PacketsDropped(), rec.forwarded["video"])
	}

	published.StartProducingData()
	h.OnVideo(66, bytes.NewReader(keyframe))
	if video.PacketsWritten() == 0 || rec.forwarded["video"] != int(video.PacketsWritten()) {
		t.Errorf("written = %d, forwarded = %d", video.PacketsWritten(), rec.forwarded["video"])
	}

	h.OnAudio(0, bytes.NewReader(aacTag(aacSequenceHeader, 0x12, 0x10)))
	h.OnAudio(23, bytes.NewReader(aacTag(aacRaw, 0x21, 0x00)))
	if !published.HasAudio() {
		t.Fatal("no audio track after AAC tags")
	}
	if rec.forwarded["audio"] != 1 {
		t.Errorf("audio forwarded = %d, want 1", rec.forwarded["audio"])
	}
	var audio *platform.Track
	for _, tr := range published.Tracks() {
		if tr.Kind() == webrtc.RTPCodecTypeAudio {
			audio = tr
		}
	}
	if c := audio.Codec(); c.MimeType != MimeTypeAAC || c.ClockRate != 44100 || c.Channels != 2 {
		t.Errorf("audio codec = %+v", c)
	}

	h.OnClose()

	if unpublished != published {
		t.Error("OnUnpublish not called with the published stream")
	}
	if !video.Ended() || !audio.Ended() {
		t.Error("tracks not ended on close")
	}
	if events.removed != 2 || len(published.Tracks()) != 0 {
		t.Errorf("removed = %d, remaining = %d, want 2, 0", events.removed, len(published.Tracks()))
	}
	if published.Active() {
		t.Error("stream active after close")
	}
	if len(srv.Publishers()) != 0 {
		t.Errorf("Publishers() = %v after close", srv.Publishers())
	}
	if rec.started != 1 || rec.ended != 1 {
		t.Errorf("started = %d, ended = %d, want 1, 1", rec.started, rec.ended)
	}

	// A second close is a no-op.
	h.OnClose()
	if rec.ended != 1 {
		t.Errorf("ended = %d after second close, want 1", rec.ended)
	}
}

func TestHandler_DuplicateName(t *testing.T) {
	srv := NewServer(Config{})
	first := srv.newHandler()
	publish(t, first, "live")

	second := srv.newHandler()
	err := second.OnPublish(nil, 0, &rtmpmsg.NetStreamPublish{PublishingName: "live"})
	if !errors.Is(err, ErrAlreadyPublishing) {
		t.Fatalf("OnPublish(duplicate) error = %v, want %v", err, ErrAlreadyPublishing)
	}

	// The rejected connection closing must not release the name.
	second.OnClose()
	if got := srv.Publishers(); len(got) != 1 {
		t.Fatalf("Publishers() = %v, want [live]", got)
	}

	first.OnClose()
	publish(t, second, "live")
}

func TestHandler_EmptyName(t *testing.T) {
	h := NewServer(Config{}).newHandler()
	if err := h.OnPublish(nil, 0, &rtmpmsg.NetStreamPublish{}); err != errNoPublishName {
		t.Errorf("OnPublish(\"\") error = %v, want %v", err, errNoPublishName)
	}
}

func TestHandler_IgnoresNonAVC(t *testing.T) {
	srv := NewServer(Config{})
	var stream *platform.Stream
	srv.cfg.OnPublish = func(_ string, s *platform.Stream) { stream = s }
	h := srv.newHandler()
	publish(t, h, "vp6")

	// Codec id 4 is On2 VP6.
	if err := h.OnVideo(0, bytes.NewReader([]byte{0x14, 0, 0, 0, 0, 1})); err != nil {
		t.Fatalf("OnVideo() error = %v", err)
	}
	if err := h.OnAudio(0, bytes.NewReader([]byte{0x2a, 1})); err != nil {
		t.Fatalf("OnAudio() error = %v", err)
	}
	if n := len(stream.Tracks()); n != 0 {
		t.Errorf("tracks = %d, want 0", n)
	}
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(Config{}).Serve(ctx, ln) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}
