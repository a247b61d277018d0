package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/thesyncim/mediastream"
	"github.com/thesyncim/mediastream/internal/metrics"
	"github.com/thesyncim/mediastream/platform"
)

type manualQueue struct {
	tasks []func()
}

func (q *manualQueue) Post(task func()) { q.tasks = append(q.tasks, task) }

func (q *manualQueue) drain() {
	for len(q.tasks) > 0 {
		tasks := q.tasks
		q.tasks = nil
		for _, task := range tasks {
			task()
		}
	}
}

// directCaller runs calls inline and then drains the queue, standing in
// for a running loop.
type directCaller struct {
	q *manualQueue
}

func (c directCaller) Call(_ context.Context, fn func()) error {
	fn()
	c.q.drain()
	return nil
}

type failingCaller struct{}

func (failingCaller) Call(context.Context, func()) error { return mediastream.ErrLoopStopped }

type fixture struct {
	q        *manualQueue
	cfg      mediastream.Config
	registry *mediastream.StreamRegistry
	page     *mediastream.Page
	metrics  *metrics.Metrics
	server   *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		q:        &manualQueue{},
		registry: mediastream.NewStreamRegistry(nil, nil),
		page:     mediastream.NewPage(nil),
		metrics:  metrics.NewWithRegistry(prometheus.NewRegistry()),
	}
	sessions := mediastream.NewSessionManager(nil)
	f.cfg = mediastream.Config{
		Queue:    f.q,
		Registry: f.registry,
		Host:     f.page,
		Session:  sessions,
	}
	f.server = NewServer(Config{
		Loop:     directCaller{q: f.q},
		Registry: f.registry,
		Page:     f.page,
		Sessions: sessions,
		Metrics:  f.metrics,
	})
	return f
}

func (f *fixture) newStream() *mediastream.Stream {
	src := platform.NewCaptureSource(mediastream.KindAudio, "mic", "mic-1")
	track := mediastream.NewTrack(f.q, platform.NewTrack(src, webrtc.RTPCodecCapability{}))
	return mediastream.NewStream(f.cfg, track)
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestListStreams(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/streams", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("empty list = %d %s, want 200 []", w.Code, w.Body.String())
	}

	s := f.newStream()
	views := decode[[]StreamView](t, f.do(t, http.MethodGet, "/api/v1/streams", ""))
	if len(views) != 1 {
		t.Fatalf("len(streams) = %d, want 1", len(views))
	}
	v := views[0]
	if v.ID != s.ID() || !v.Active || len(v.Tracks) != 1 {
		t.Errorf("stream view = %+v", v)
	}
	if tr := v.Tracks[0]; tr.Kind != "audio" || !tr.Capture || tr.Ended {
		t.Errorf("track view = %+v", tr)
	}
}

func TestGetStream(t *testing.T) {
	f := newFixture(t)
	s := f.newStream()

	tests := []struct {
		name     string
		id       string
		wantCode int
	}{
		{"known", s.ID(), http.StatusOK},
		{"unknown", "missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/api/v1/streams/"+tt.id, "")
			if w.Code != tt.wantCode {
				t.Errorf("GET stream = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestSetProducing(t *testing.T) {
	f := newFixture(t)
	s := f.newStream()
	path := "/api/v1/streams/" + s.ID() + "/producing"

	resp := decode[producingResponse](t, f.do(t, http.MethodPost, path, `{"enabled":true}`))
	if !resp.Changed || !resp.Stream.Producing {
		t.Errorf("start = %+v, want changed and producing", resp)
	}
	if resp.Stream.MediaState != "audio-or-video|active-audio-capture" {
		t.Errorf("media_state = %q", resp.Stream.MediaState)
	}

	resp = decode[producingResponse](t, f.do(t, http.MethodPost, path, `{"enabled":true}`))
	if resp.Changed {
		t.Error("second start reported a change")
	}

	resp = decode[producingResponse](t, f.do(t, http.MethodPost, path, `{"enabled":false}`))
	if !resp.Changed || resp.Stream.Producing {
		t.Errorf("stop = %+v, want changed and not producing", resp)
	}

	if w := f.do(t, http.MethodPost, path, `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing enabled = %d, want 400", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/v1/streams/missing/producing", `{"enabled":true}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown stream = %d, want 404", w.Code)
	}
}

func TestCanStartGatesProducing(t *testing.T) {
	f := newFixture(t)
	s := f.newStream()

	page := decode[PageView](t, f.do(t, http.MethodPost, "/api/v1/page/can-start", `{"allowed":false}`))
	if page.CanStartMedia {
		t.Fatal("page still allows media start")
	}

	resp := decode[producingResponse](t, f.do(t, http.MethodPost, "/api/v1/streams/"+s.ID()+"/producing", `{"enabled":true}`))
	if resp.Changed || !resp.Stream.WaitingForMediaStart {
		t.Errorf("deferred start = %+v, want waiting", resp)
	}

	page = decode[PageView](t, f.do(t, http.MethodPost, "/api/v1/page/can-start", `{"allowed":true}`))
	if page.PendingStartListeners != 0 {
		t.Errorf("pending_start_listeners = %d, want 0", page.PendingStartListeners)
	}
	if !s.IsProducingData() {
		t.Error("stream not producing after media start allowed")
	}
}

func TestPageMuted(t *testing.T) {
	f := newFixture(t)
	s := f.newStream()

	page := decode[PageView](t, f.do(t, http.MethodPost, "/api/v1/page/muted", `{"muted":true}`))
	if !page.CaptureMuted {
		t.Error("capture_muted = false, want true")
	}
	if !s.GetTracks()[0].Muted() {
		t.Error("capture track not muted")
	}

	w := f.do(t, http.MethodGet, "/api/v1/page", "")
	if got := decode[PageView](t, w); !got.CaptureMuted || got.Producers != 1 {
		t.Errorf("GET page = %+v", got)
	}
}

func TestCloneStream(t *testing.T) {
	f := newFixture(t)
	s := f.newStream()

	w := f.do(t, http.MethodPost, "/api/v1/streams/"+s.ID()+"/clone", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("clone = %d, want 201", w.Code)
	}
	clone := decode[StreamView](t, w)
	if clone.ID == s.ID() || len(clone.Tracks) != 1 {
		t.Errorf("clone = %+v", clone)
	}
	if clone.Tracks[0].ID == s.GetTracks()[0].ID() {
		t.Error("clone shares the original track id")
	}
	if f.registry.Len() != 2 {
		t.Errorf("registry.Len() = %d, want 2", f.registry.Len())
	}
}

func TestRemoveTrackAndClose(t *testing.T) {
	f := newFixture(t)
	s := f.newStream()
	trackPath := "/api/v1/streams/" + s.ID() + "/tracks/" + s.GetTracks()[0].ID()

	if w := f.do(t, http.MethodDelete, trackPath, ""); w.Code != http.StatusNoContent {
		t.Fatalf("remove track = %d, want 204", w.Code)
	}
	if s.Active() || len(s.GetTracks()) != 0 {
		t.Errorf("after remove active = %v, tracks = %d", s.Active(), len(s.GetTracks()))
	}
	if w := f.do(t, http.MethodDelete, trackPath, ""); w.Code != http.StatusNotFound {
		t.Errorf("second remove = %d, want 404", w.Code)
	}

	if w := f.do(t, http.MethodDelete, "/api/v1/streams/"+s.ID(), ""); w.Code != http.StatusNoContent {
		t.Fatalf("close = %d, want 204", w.Code)
	}
	if !s.Closed() {
		t.Error("stream not closed")
	}
	if w := f.do(t, http.MethodGet, "/api/v1/streams/"+s.ID(), ""); w.Code != http.StatusNotFound {
		t.Errorf("GET closed stream = %d, want 404", w.Code)
	}
}

func TestSessions(t *testing.T) {
	f := newFixture(t)
	s := f.newStream()
	f.do(t, http.MethodPost, "/api/v1/streams/"+s.ID()+"/producing", `{"enabled":true}`)

	sessions := decode[[]SessionView](t, f.do(t, http.MethodGet, "/api/v1/sessions", ""))
	if len(sessions) != 1 {
		t.Fatalf("len(sessions) = %d, want 1", len(sessions))
	}
	if got := sessions[0]; got.ID != s.ID() || !got.CanProduceAudio || !got.HasAudio || got.MediaType != "capturing-audio" {
		t.Errorf("session = %+v", got)
	}
}

func TestLoopUnavailable(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(Config{Loop: failingCaller{}, Registry: f.registry, Page: f.page})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/streams", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if body := decode[errorResponse](t, w); !strings.Contains(body.Error, mediastream.ErrLoopStopped.Error()) {
		t.Errorf("error = %q", body.Error)
	}
	if !errors.Is(failingCaller{}.Call(context.Background(), nil), mediastream.ErrLoopStopped) {
		t.Error("failingCaller does not report ErrLoopStopped")
	}
}

func TestLoopTimeoutLeavesStreamsUntouched(t *testing.T) {
	loop := mediastream.NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		loop.Run(ctx)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	registry := mediastream.NewStreamRegistry(nil, nil)
	page := mediastream.NewPage(nil)
	cfg := mediastream.Config{Queue: loop, Registry: registry, Host: page}

	var a, b *mediastream.Stream
	if err := loop.Call(ctx, func() {
		for _, st := range []**mediastream.Stream{&a, &b} {
			src := platform.NewRemoteSource(mediastream.KindVideo, "cam")
			*st = mediastream.NewStream(cfg, mediastream.NewTrack(loop, platform.NewTrack(src, webrtc.RTPCodecCapability{})))
		}
	}); err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	srv := NewServer(Config{
		Loop:        loop,
		Registry:    registry,
		Page:        page,
		CallTimeout: 20 * time.Millisecond,
	})
	serve := func(method, path string) int {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w.Code
	}

	release := make(chan struct{})
	loop.Post(func() { <-release })

	if code := serve(http.MethodDelete, "/api/v1/streams/"+a.ID()); code != http.StatusServiceUnavailable {
		t.Errorf("DELETE with blocked loop = %d, want 503", code)
	}
	if code := serve(http.MethodGet, "/api/v1/streams/"+b.ID()); code != http.StatusServiceUnavailable {
		t.Errorf("GET with blocked loop = %d, want 503", code)
	}
	close(release)

	var aClosed, bClosed bool
	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	if err := loop.Call(callCtx, func() { aClosed, bClosed = a.Closed(), b.Closed() }); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if aClosed || bClosed {
		t.Errorf("after timed-out requests closed = %v, %v, want false, false", aClosed, bClosed)
	}
	if code := serve(http.MethodGet, "/api/v1/streams/"+a.ID()); code != http.StatusOK {
		t.Errorf("GET after loop resumed = %d, want 200", code)
	}
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/v1/streams", "")
	f.do(t, http.MethodGet, "/api/v1/streams/missing", "")

	if got := testutil.ToFloat64(f.metrics.HTTPRequests.WithLabelValues("GET", "/api/v1/streams/:id", "404")); got != 1 {
		t.Errorf("404 requests = %v, want 1", got)
	}

	w := f.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "mediastream_api_requests_total") {
		t.Error("metrics output missing mediastream_api_requests_total")
	}
}
