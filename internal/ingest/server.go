package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"sync"

	"github.com/yutopp/go-rtmp"

	"github.com/thesyncim/mediastream/platform"
)

// ErrAlreadyPublishing is returned when a publish name is in use.
var ErrAlreadyPublishing = errors.New("ingest: name already publishing")

// Recorder receives ingest measurements.
type Recorder interface {
	PublishStarted()
	PublishEnded()
	PacketForwarded(kind string)
}

type nopRecorder struct{}

func (nopRecorder) PublishStarted()        {}
func (nopRecorder) PublishEnded()          {}
func (nopRecorder) PacketForwarded(string) {}

// Config configures a Server.
type Config struct {
	BandwidthWindowSize uint32
	MTU                 int

	// OnPublish is called from the connection goroutine once a publisher
	// is accepted, before any of its tracks exist.
	OnPublish func(name string, s *platform.Stream)
	// OnUnpublish is called after the publisher's tracks have ended and
	// been removed from s.
	OnUnpublish func(name string, s *platform.Stream)

	Recorder Recorder
	Logger   *slog.Logger
}

// Server accepts RTMP publishers.
type Server struct {
	cfg Config
	log *slog.Logger

	mu         sync.Mutex
	publishers map[string]*publisher
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BandwidthWindowSize == 0 {
		cfg.BandwidthWindowSize = 6 * 1024 * 1024
	}
	return &Server{
		cfg:        cfg,
		log:        cfg.Logger.With("component", "ingest"),
		publishers: make(map[string]*publisher),
	}
}

// Serve accepts connections on ln until ctx is cancelled. ln is closed on
// return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := rtmp.NewServer(&rtmp.ServerConfig{
		OnConnect: func(conn net.Conn) (io.ReadWriteCloser, *rtmp.ConnConfig) {
			s.log.Debug("connection accepted", "remote_addr", conn.RemoteAddr().String())
			return conn, &rtmp.ConnConfig{
				Handler: s.newHandler(),
				ControlState: rtmp.StreamControlStateConfig{
					DefaultBandwidthWindowSize: int32(s.cfg.BandwidthWindowSize),
				},
			}
		},
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-stop:
		}
	}()

	s.log.Info("rtmp ingest listening", "address", ln.Addr().String())
	err := srv.Serve(ln)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("rtmp serve: %w", err)
	}
	return nil
}

// Publishers returns the active publish names, sorted.
func (s *Server) Publishers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.publishers))
	for name := range s.publishers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) claim(p *publisher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.publishers[p.name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyPublishing, p.name)
	}
	s.publishers[p.name] = p
	return nil
}

func (s *Server) release(p *publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.publishers[p.name] == p {
		delete(s.publishers, p.name)
	}
}

func (s *Server) newHandler() *handler {
	return &handler{server: s}
}
