package ingest

import (
	"errors"
	"io"
	"log/slog"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"

	"github.com/thesyncim/mediastream/platform"
)

// MimeTypeAAC is the codec of tracks carrying raw AAC frames.
const MimeTypeAAC = "audio/aac"

var errNoPublishName = errors.New("ingest: empty publishing name")

// publisher is one accepted RTMP publish and the platform stream it feeds.
type publisher struct {
	name   string
	stream *platform.Stream
	log    *slog.Logger

	video       *platform.Track
	videoPacker *packetizer
	sps, pps    []byte

	audio       *platform.Track
	audioPacker *packetizer
	audioRate   uint32
}

// handler serves one RTMP connection.
type handler struct {
	rtmp.DefaultHandler
	server *Server
	pub    *publisher
}

func (h *handler) OnPublish(_ *rtmp.StreamContext, _ uint32, cmd *rtmpmsg.NetStreamPublish) error {
	if cmd.PublishingName == "" {
		return errNoPublishName
	}
	if h.pub != nil {
		return ErrAlreadyPublishing
	}

	stream := platform.NewStream()
	p := &publisher{
		name:   cmd.PublishingName,
		stream: stream,
		log:    h.server.log.With("publish_name", cmd.PublishingName, "stream_id", stream.ID()),
	}
	if err := h.server.claim(p); err != nil {
		h.server.log.Warn("publish rejected", "publish_name", p.name, "error", err)
		return err
	}
	h.pub = p

	h.server.cfg.Recorder.PublishStarted()
	p.log.Info("publish started")
	if h.server.cfg.OnPublish != nil {
		h.server.cfg.OnPublish(p.name, stream)
	}
	return nil
}

func (h *handler) OnVideo(timestamp uint32, payload io.Reader) error {
	p := h.pub
	if p == nil {
		return nil
	}
	data, err := io.ReadAll(payload)
	if err != nil {
		return err
	}
	tag, err := parseVideoTag(data)
	if err != nil || tag.codecID != flvCodecAVC {
		return nil
	}

	switch tag.packetType {
	case avcSequenceHeader:
		sps, pps := parseAVCDecoderConfig(tag.data)
		if sps == nil || pps == nil {
			p.log.Debug("ignoring malformed avc sequence header")
			return nil
		}
		p.sps, p.pps = sps, pps
		if p.video == nil {
			p.video = platform.NewTrack(
				platform.NewRemoteSource(webrtc.RTPCodecTypeVideo, p.name+" video"),
				webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
			)
			p.videoPacker = newH264Packetizer(h.server.cfg.MTU)
			p.stream.AddTrack(p.video, platform.Notify)
			p.log.Debug("video track added", "track_id", p.video.ID())
		}

	case avcNALU:
		if p.video == nil {
			return nil
		}
		nalus := splitAVCC(tag.data)
		if len(nalus) == 0 {
			return nil
		}
		frame := toAnnexB(nalus, p.sps, p.pps, tag.keyframe)
		h.forward(p.video, p.videoPacker.packetize(frame, timestamp*90), "video")
	}
	return nil
}

func (h *handler) OnAudio(timestamp uint32, payload io.Reader) error {
	p := h.pub
	if p == nil {
		return nil
	}
	data, err := io.ReadAll(payload)
	if err != nil {
		return err
	}
	tag, err := parseAudioTag(data)
	if err != nil || tag.format != flvSoundAAC {
		return nil
	}

	if p.audio == nil {
		channels := uint16(1)
		if tag.stereo {
			channels = 2
		}
		p.audioRate = tag.rate
		p.audio = platform.NewTrack(
			platform.NewRemoteSource(webrtc.RTPCodecTypeAudio, p.name+" audio"),
			webrtc.RTPCodecCapability{MimeType: MimeTypeAAC, ClockRate: tag.rate, Channels: channels},
		)
		p.audioPacker = newAudioPacketizer(h.server.cfg.MTU)
		p.stream.AddTrack(p.audio, platform.Notify)
		p.log.Debug("audio track added", "track_id", p.audio.ID())
	}

	if tag.packetType != aacRaw {
		return nil
	}
	ts := uint32(uint64(timestamp) * uint64(p.audioRate) / 1000)
	h.forward(p.audio, p.audioPacker.packetize(tag.data, ts), "audio")
	return nil
}

func (h *handler) forward(t *platform.Track, packets []*rtp.Packet, kind string) {
	for _, pkt := range packets {
		written := t.PacketsWritten()
		if err := t.WriteRTP(pkt); err != nil {
			h.pub.log.Debug("write rtp failed", "track_id", t.ID(), "error", err)
			return
		}
		if t.PacketsWritten() > written {
			h.server.cfg.Recorder.PacketForwarded(kind)
		}
	}
}

func (h *handler) OnClose() {
	p := h.pub
	if p == nil {
		return
	}
	h.pub = nil
	h.server.release(p)

	for _, t := range []*platform.Track{p.video, p.audio} {
		if t == nil {
			continue
		}
		t.End()
		p.stream.RemoveTrack(t, platform.Notify)
	}

	h.server.cfg.Recorder.PublishEnded()
	p.log.Info("publish ended")
	if h.server.cfg.OnUnpublish != nil {
		h.server.cfg.OnUnpublish(p.name, p.stream)
	}
}
