package mediastream

import (
	"log/slog"
	"sync"
)

// Page is the Host shared by every stream on one loop. Its setters call
// back into streams and must be called from that loop; the getters may be
// called from any goroutine.
type Page struct {
	log *slog.Logger

	mu                        sync.Mutex
	producers                 []MediaProducer
	startListeners            []MediaCanStartListener
	canStartMedia             bool
	captureMuted              bool
	hasActiveMediaStreamTrack bool
	playing                   MediaState
}

// NewPage creates a page that allows media to start and is not muted. If
// log is nil, slog.Default() is used.
func NewPage(log *slog.Logger) *Page {
	if log == nil {
		log = slog.Default()
	}
	return &Page{
		log:           log.With("component", "page"),
		canStartMedia: true,
	}
}

// AddAudioProducer records m as producing media. Adding twice is a no-op.
func (p *Page) AddAudioProducer(m MediaProducer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.producers {
		if existing == m {
			return
		}
	}
	p.producers = append(p.producers, m)
}

// RemoveAudioProducer forgets m.
func (p *Page) RemoveAudioProducer(m MediaProducer) {
	p.mu.Lock()
	for i, existing := range p.producers {
		if existing == m {
			p.producers = append(p.producers[:i], p.producers[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	p.UpdateIsPlayingMedia()
}

// ProducerCount returns the number of registered audio producers.
func (p *Page) ProducerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.producers)
}

// CanStartMedia reports whether streams may start producing now.
func (p *Page) CanStartMedia() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canStartMedia
}

// SetCanStartMedia changes whether media may start. Allowing it fires and
// clears every pending listener, in registration order.
func (p *Page) SetCanStartMedia(allowed bool) {
	p.mu.Lock()
	p.canStartMedia = allowed
	var fire []MediaCanStartListener
	if allowed {
		fire = p.startListeners
		p.startListeners = nil
	}
	p.mu.Unlock()

	if len(fire) > 0 {
		p.log.Debug("media can start", "listeners", len(fire))
	}
	for _, l := range fire {
		l.MediaCanStart()
	}
}

// AddMediaCanStartListener queues l to be told once media may start.
func (p *Page) AddMediaCanStartListener(l MediaCanStartListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.startListeners {
		if existing == l {
			return
		}
	}
	p.startListeners = append(p.startListeners, l)
}

// RemoveMediaCanStartListener drops a pending listener.
func (p *Page) RemoveMediaCanStartListener(l MediaCanStartListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.startListeners {
		if existing == l {
			p.startListeners = append(p.startListeners[:i], p.startListeners[i+1:]...)
			return
		}
	}
}

// PendingStartListeners returns the number of latched listeners.
func (p *Page) PendingStartListeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.startListeners)
}

// IsMediaCaptureMuted reports the page-wide capture mute.
func (p *Page) IsMediaCaptureMuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.captureMuted
}

// SetMediaCaptureMuted mutes or unmutes capture on every producer.
func (p *Page) SetMediaCaptureMuted(muted bool) {
	p.mu.Lock()
	if p.captureMuted == muted {
		p.mu.Unlock()
		return
	}
	p.captureMuted = muted
	producers := make([]MediaProducer, len(p.producers))
	copy(producers, p.producers)
	p.mu.Unlock()

	p.log.Info("media capture muted changed", "muted", muted, "producers", len(producers))
	for _, m := range producers {
		m.PageMutedStateDidChange()
	}
}

// SetHasActiveMediaStreamTrack marks that a live track has existed on the
// page. The flag is never cleared.
func (p *Page) SetHasActiveMediaStreamTrack() {
	p.mu.Lock()
	p.hasActiveMediaStreamTrack = true
	p.mu.Unlock()
}

// HasActiveMediaStreamTrack reports whether any stream has ever been
// active on this page.
func (p *Page) HasActiveMediaStreamTrack() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasActiveMediaStreamTrack
}

// UpdateIsPlayingMedia recomputes the union of every producer's state.
func (p *Page) UpdateIsPlayingMedia() {
	p.mu.Lock()
	producers := make([]MediaProducer, len(p.producers))
	copy(producers, p.producers)
	p.mu.Unlock()

	state := IsNotPlaying
	for _, m := range producers {
		state |= m.MediaState()
	}

	p.mu.Lock()
	changed := state != p.playing
	p.playing = state
	p.mu.Unlock()

	if changed {
		p.log.Debug("playing media changed", "state", state.String())
	}
}

// MediaState returns the state computed by the last UpdateIsPlayingMedia.
func (p *Page) MediaState() MediaState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

var _ Host = (*Page)(nil)
