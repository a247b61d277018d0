package devices

import (
	"context"
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/mediastream"
)

func newProvider() *VirtualProvider {
	return NewVirtualProvider(
		[]Device{{ID: "cam-0", Label: "Test Camera"}, {ID: "cam-1", MimeType: "video/h264"}},
		[]Device{{ID: "mic-0", Label: "Test Microphone"}, {ID: "bad-0", MimeType: webrtc.MimeTypeH264}},
	)
}

func TestVirtualProvider_List(t *testing.T) {
	p := newProvider()
	ctx := context.Background()

	video, _ := p.ListVideoDevices(ctx)
	if len(video) != 2 || video[0].Kind != mediastream.DeviceKindVideoInput || video[0].Label != "Test Camera" {
		t.Errorf("ListVideoDevices() = %+v", video)
	}
	audio, _ := p.ListAudioInputDevices(ctx)
	if len(audio) != 2 || audio[0].Kind != mediastream.DeviceKindAudioInput {
		t.Errorf("ListAudioInputDevices() = %+v", audio)
	}
	out, _ := p.ListAudioOutputDevices(ctx)
	if len(out) != 0 {
		t.Errorf("ListAudioOutputDevices() = %+v, want none", out)
	}
}

func TestVirtualProvider_Open(t *testing.T) {
	p := newProvider()
	ctx := context.Background()

	tests := []struct {
		name     string
		open     func() (string, string, error)
		wantMime string
		wantErr  bool
	}{
		{"default video codec", openVideo(ctx, p, "cam-0"), webrtc.MimeTypeVP8, false},
		{"configured video codec", openVideo(ctx, p, "cam-1"), webrtc.MimeTypeH264, false},
		{"default audio codec", openAudio(ctx, p, "mic-0"), webrtc.MimeTypeOpus, false},
		{"video codec on audio device", openAudio(ctx, p, "bad-0"), "", true},
		{"unknown device", openVideo(ctx, p, "cam-9"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, label, err := tt.open()
			if (err != nil) != tt.wantErr {
				t.Fatalf("open error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if mime != tt.wantMime {
				t.Errorf("codec = %s, want %s", mime, tt.wantMime)
			}
			if label == "" {
				t.Error("track label empty")
			}
		})
	}

	if _, err := p.OpenVideoDevice(ctx, "cam-9", nil); !errors.Is(err, mediastream.ErrNoDevices) {
		t.Errorf("OpenVideoDevice(unknown) error = %v, want %v", err, mediastream.ErrNoDevices)
	}
}

func openVideo(ctx context.Context, p *VirtualProvider, id string) func() (string, string, error) {
	return func() (string, string, error) {
		tr, err := p.OpenVideoDevice(ctx, id, nil)
		if err != nil {
			return "", "", err
		}
		if !tr.IsCapture() || tr.Kind() != webrtc.RTPCodecTypeVideo {
			return "", "", errors.New("not a video capture track")
		}
		return tr.Codec().MimeType, tr.Label(), nil
	}
}

func openAudio(ctx context.Context, p *VirtualProvider, id string) func() (string, string, error) {
	return func() (string, string, error) {
		tr, err := p.OpenAudioDevice(ctx, id, nil)
		if err != nil {
			return "", "", err
		}
		if !tr.IsCapture() || tr.Kind() != webrtc.RTPCodecTypeAudio {
			return "", "", errors.New("not an audio capture track")
		}
		return tr.Codec().MimeType, tr.Label(), nil
	}
}
