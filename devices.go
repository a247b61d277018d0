package mediastream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/thesyncim/mediastream/platform"
)

var (
	// ErrNoDeviceProvider is returned when MediaDevices has no provider.
	ErrNoDeviceProvider = errors.New("mediastream: no device provider")

	// ErrNoDevices is returned when a default device is requested and none
	// of that kind exists.
	ErrNoDevices = errors.New("mediastream: no devices available")
)

// DeviceKind represents the type of media device.
type DeviceKind int

const (
	DeviceKindVideoInput  DeviceKind = iota // Camera
	DeviceKindAudioInput                    // Microphone
	DeviceKindAudioOutput                   // Speaker/headphones
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceKindVideoInput:
		return "videoinput"
	case DeviceKindAudioInput:
		return "audioinput"
	case DeviceKindAudioOutput:
		return "audiooutput"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a media device.
type DeviceInfo struct {
	DeviceID string
	GroupID  string
	Kind     DeviceKind
	Label    string
}

// UserMediaOptions selects the devices GetUserMedia opens. A nil
// constraint skips that kind.
type UserMediaOptions struct {
	Video *VideoConstraints
	Audio *AudioConstraints
}

type VideoConstraints struct {
	DeviceID  string // empty picks the first camera
	Width     int
	Height    int
	FrameRate int
}

type AudioConstraints struct {
	DeviceID     string // empty picks the first microphone
	SampleRate   int
	ChannelCount int
}

// DeviceProvider lists and opens capture devices. Opened tracks must be
// capture tracks; the provider owns whatever feeds them.
type DeviceProvider interface {
	ListVideoDevices(ctx context.Context) ([]DeviceInfo, error)
	ListAudioInputDevices(ctx context.Context) ([]DeviceInfo, error)
	ListAudioOutputDevices(ctx context.Context) ([]DeviceInfo, error)
	OpenVideoDevice(ctx context.Context, deviceID string, c *VideoConstraints) (*platform.Track, error)
	OpenAudioDevice(ctx context.Context, deviceID string, c *AudioConstraints) (*platform.Track, error)
}

// MediaDevices opens capture tracks from a DeviceProvider and wraps them in
// streams bound to cfg.Queue.
type MediaDevices struct {
	provider DeviceProvider
	cfg      Config

	mu             sync.RWMutex
	deviceChangeCb func()
}

// NewMediaDevices creates a MediaDevices. provider may be nil, in which
// case every call fails with ErrNoDeviceProvider.
func NewMediaDevices(provider DeviceProvider, cfg Config) *MediaDevices {
	return &MediaDevices{provider: provider, cfg: cfg.withDefaults()}
}

// EnumerateDevices lists every device. A kind whose listing fails is
// skipped.
func (d *MediaDevices) EnumerateDevices(ctx context.Context) ([]DeviceInfo, error) {
	if d.provider == nil {
		return nil, ErrNoDeviceProvider
	}

	var devices []DeviceInfo
	for _, list := range []func(context.Context) ([]DeviceInfo, error){
		d.provider.ListVideoDevices,
		d.provider.ListAudioInputDevices,
		d.provider.ListAudioOutputDevices,
	} {
		found, err := list(ctx)
		if err != nil {
			d.cfg.Logger.Debug("device listing failed", "error", err)
			continue
		}
		devices = append(devices, found...)
	}
	return devices, nil
}

// OpenUserMedia opens the requested capture tracks. It may be called from
// any goroutine. On error every track already opened is ended.
func (d *MediaDevices) OpenUserMedia(ctx context.Context, opts UserMediaOptions) ([]*platform.Track, error) {
	if d.provider == nil {
		return nil, ErrNoDeviceProvider
	}

	var tracks []*platform.Track
	fail := func(err error) ([]*platform.Track, error) {
		for _, t := range tracks {
			t.End()
		}
		return nil, err
	}

	if opts.Video != nil {
		deviceID, err := d.pickDevice(ctx, opts.Video.DeviceID, d.provider.ListVideoDevices)
		if err != nil {
			return fail(fmt.Errorf("video device: %w", err))
		}
		t, err := d.provider.OpenVideoDevice(ctx, deviceID, opts.Video)
		if err != nil {
			return fail(fmt.Errorf("open video device %s: %w", deviceID, err))
		}
		tracks = append(tracks, t)
	}

	if opts.Audio != nil {
		deviceID, err := d.pickDevice(ctx, opts.Audio.DeviceID, d.provider.ListAudioInputDevices)
		if err != nil {
			return fail(fmt.Errorf("audio device: %w", err))
		}
		t, err := d.provider.OpenAudioDevice(ctx, deviceID, opts.Audio)
		if err != nil {
			return fail(fmt.Errorf("open audio device %s: %w", deviceID, err))
		}
		tracks = append(tracks, t)
	}

	return tracks, nil
}

func (d *MediaDevices) pickDevice(ctx context.Context, id string, list func(context.Context) ([]DeviceInfo, error)) (string, error) {
	if id != "" {
		return id, nil
	}
	devices, err := list(ctx)
	if err != nil {
		return "", fmt.Errorf("list devices: %w", err)
	}
	if len(devices) == 0 {
		return "", ErrNoDevices
	}
	return devices[0].DeviceID, nil
}

// GetUserMedia opens the requested devices and returns a stream holding
// them, created on the configured queue. It must not be called from the
// goroutine draining that queue.
func (d *MediaDevices) GetUserMedia(ctx context.Context, opts UserMediaOptions) (*Stream, error) {
	tracks, err := d.OpenUserMedia(ctx, opts)
	if err != nil {
		return nil, err
	}

	// Exactly one of the posted task and an expiring ctx claims the
	// tracks. A task that claimed them always delivers its stream.
	var claimed atomic.Bool
	created := make(chan *Stream, 1)
	d.cfg.Queue.Post(func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		if ctx.Err() != nil {
			created <- nil
			return
		}
		wrapped := make([]*Track, 0, len(tracks))
		for _, p := range tracks {
			wrapped = append(wrapped, NewTrack(d.cfg.Queue, p))
		}
		created <- NewStream(d.cfg, wrapped...)
	})

	var s *Stream
	select {
	case s = <-created:
	case <-ctx.Done():
		if claimed.CompareAndSwap(false, true) {
			return nil, d.abandon(tracks, ctx.Err())
		}
		s = <-created
	}
	if s == nil {
		return nil, d.abandon(tracks, ctx.Err())
	}
	return s, nil
}

func (d *MediaDevices) abandon(tracks []*platform.Track, err error) error {
	for _, t := range tracks {
		t.End()
	}
	return fmt.Errorf("get user media: %w", err)
}

// OnDeviceChange sets the callback run when the provider reports a device
// change.
func (d *MediaDevices) OnDeviceChange(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deviceChangeCb = callback
}

// NotifyDeviceChange is called by a DeviceProvider when devices change. The
// callback runs on the configured queue.
func (d *MediaDevices) NotifyDeviceChange() {
	d.mu.RLock()
	cb := d.deviceChangeCb
	d.mu.RUnlock()

	if cb != nil {
		d.cfg.Queue.Post(cb)
	}
}
