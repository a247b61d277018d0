// Package devices provides DeviceProvider implementations for streamd.
package devices

import (
	"context"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/mediastream"
	"github.com/thesyncim/mediastream/platform"
)

// Device describes a virtual capture device. An empty MimeType picks VP8
// for video and Opus for audio.
type Device struct {
	ID       string
	Label    string
	MimeType string
}

var codecs = map[string]webrtc.RTPCodecCapability{
	strings.ToLower(webrtc.MimeTypeH264): {MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
	strings.ToLower(webrtc.MimeTypeVP8):  {MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
	strings.ToLower(webrtc.MimeTypeVP9):  {MimeType: webrtc.MimeTypeVP9, ClockRate: 90000},
	strings.ToLower(webrtc.MimeTypeAV1):  {MimeType: webrtc.MimeTypeAV1, ClockRate: 90000},
	strings.ToLower(webrtc.MimeTypeOpus): {MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
	strings.ToLower(webrtc.MimeTypePCMU): {MimeType: webrtc.MimeTypePCMU, ClockRate: 8000, Channels: 1},
	strings.ToLower(webrtc.MimeTypePCMA): {MimeType: webrtc.MimeTypePCMA, ClockRate: 8000, Channels: 1},
}

// VirtualProvider implements mediastream.DeviceProvider over a fixed device
// list. Opened tracks are capture tracks with no media behind them; they
// end when the caller stops them.
type VirtualProvider struct {
	video []Device
	audio []Device
}

// NewVirtualProvider creates a provider for the given devices.
func NewVirtualProvider(video, audio []Device) *VirtualProvider {
	return &VirtualProvider{video: video, audio: audio}
}

func infos(devices []Device, kind mediastream.DeviceKind) []mediastream.DeviceInfo {
	out := make([]mediastream.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		out = append(out, mediastream.DeviceInfo{
			DeviceID: d.ID,
			GroupID:  d.ID,
			Kind:     kind,
			Label:    d.Label,
		})
	}
	return out
}

// ListVideoDevices returns the configured cameras.
func (p *VirtualProvider) ListVideoDevices(ctx context.Context) ([]mediastream.DeviceInfo, error) {
	return infos(p.video, mediastream.DeviceKindVideoInput), nil
}

// ListAudioInputDevices returns the configured microphones.
func (p *VirtualProvider) ListAudioInputDevices(ctx context.Context) ([]mediastream.DeviceInfo, error) {
	return infos(p.audio, mediastream.DeviceKindAudioInput), nil
}

// ListAudioOutputDevices returns nothing; virtual devices are inputs only.
func (p *VirtualProvider) ListAudioOutputDevices(ctx context.Context) ([]mediastream.DeviceInfo, error) {
	return nil, nil
}

// OpenVideoDevice opens a camera by id. Constraints are ignored.
func (p *VirtualProvider) OpenVideoDevice(ctx context.Context, deviceID string, c *mediastream.VideoConstraints) (*platform.Track, error) {
	return open(p.video, deviceID, webrtc.RTPCodecTypeVideo, webrtc.MimeTypeVP8)
}

// OpenAudioDevice opens a microphone by id. Constraints are ignored.
func (p *VirtualProvider) OpenAudioDevice(ctx context.Context, deviceID string, c *mediastream.AudioConstraints) (*platform.Track, error) {
	return open(p.audio, deviceID, webrtc.RTPCodecTypeAudio, webrtc.MimeTypeOpus)
}

func open(devices []Device, id string, kind webrtc.RTPCodecType, defaultMime string) (*platform.Track, error) {
	for _, d := range devices {
		if d.ID != id {
			continue
		}
		mime := d.MimeType
		if mime == "" {
			mime = defaultMime
		}
		codec, ok := codecs[strings.ToLower(mime)]
		if !ok {
			return nil, fmt.Errorf("device %s: unsupported codec %s", id, mime)
		}
		if !strings.HasPrefix(strings.ToLower(mime), kind.String()+"/") {
			return nil, fmt.Errorf("device %s: codec %s is not %s", id, mime, kind)
		}
		label := d.Label
		if label == "" {
			label = d.ID
		}
		return platform.NewTrack(platform.NewCaptureSource(kind, label, d.ID), codec), nil
	}
	return nil, fmt.Errorf("device %s: %w", id, mediastream.ErrNoDevices)
}
