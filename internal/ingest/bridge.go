package ingest

import (
	"log/slog"

	"github.com/thesyncim/mediastream"
	"github.com/thesyncim/mediastream/platform"
)

// StreamBridge turns publishes into streams bound to a task queue. Its
// OnPublish and OnUnpublish methods plug into Config and may be called
// from any goroutine; everything else runs on the queue.
type StreamBridge struct {
	cfg         mediastream.Config
	autoProduce bool
	log         *slog.Logger

	streams map[*platform.Stream]*mediastream.Stream // queue only
	names   map[string]*mediastream.Stream           // queue only
}

// NewStreamBridge creates a bridge posting to cfg.Queue. With autoProduce
// set, published streams start producing data immediately.
func NewStreamBridge(cfg mediastream.Config, autoProduce bool) *StreamBridge {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &StreamBridge{
		cfg:         cfg,
		autoProduce: autoProduce,
		log:         log.With("component", "ingest-bridge"),
		streams:     make(map[*platform.Stream]*mediastream.Stream),
		names:       make(map[string]*mediastream.Stream),
	}
}

// OnPublish wraps ps in a new stream.
func (b *StreamBridge) OnPublish(name string, ps *platform.Stream) {
	b.cfg.Queue.Post(func() {
		s := mediastream.NewStreamFromPlatform(b.cfg, ps)
		b.streams[ps] = s
		b.names[name] = s
		if b.autoProduce {
			s.StartProducingData()
		}
		b.log.Info("stream published", "publish_name", name, "stream_id", s.ID())
	})
}

// OnUnpublish closes the stream wrapping ps. The close runs one task later
// so the track removals already queued by the publisher reach listeners
// first.
func (b *StreamBridge) OnUnpublish(name string, ps *platform.Stream) {
	b.cfg.Queue.Post(func() {
		s, ok := b.streams[ps]
		if !ok {
			return
		}
		delete(b.streams, ps)
		if b.names[name] == s {
			delete(b.names, name)
		}
		b.cfg.Queue.Post(s.Close)
		b.log.Info("stream unpublished", "publish_name", name, "stream_id", s.ID())
	})
}

// Lookup returns the stream published under name. Queue only.
func (b *StreamBridge) Lookup(name string) (*mediastream.Stream, bool) {
	s, ok := b.names[name]
	return s, ok
}

// Len returns the number of live publishes. Queue only.
func (b *StreamBridge) Len() int { return len(b.streams) }
