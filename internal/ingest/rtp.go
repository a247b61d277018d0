package ingest

import (
	"math/rand"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

const (
	rtpHeaderSize = 12

	videoPayloadType = 96
	audioPayloadType = 97
)

// packetizer splits frames into RTP packets for one track. It is only used
// from the connection goroutine.
type packetizer struct {
	ssrc        uint32
	payloadType uint8
	mtu         uint16
	sequencer   rtp.Sequencer
	payloader   rtp.Payloader
}

func newPacketizer(pt uint8, mtu int, payloader rtp.Payloader) *packetizer {
	if mtu <= rtpHeaderSize {
		mtu = 1200
	}
	return &packetizer{
		ssrc:        rand.Uint32(),
		payloadType: pt,
		mtu:         uint16(mtu - rtpHeaderSize),
		sequencer:   rtp.NewRandomSequencer(),
		payloader:   payloader,
	}
}

func newH264Packetizer(mtu int) *packetizer {
	return newPacketizer(videoPayloadType, mtu, &codecs.H264Payloader{})
}

// newAudioPacketizer carries each raw audio frame in a single packet.
func newAudioPacketizer(mtu int) *packetizer {
	return newPacketizer(audioPayloadType, mtu, nil)
}

// packetize returns the packets for one frame. The marker bit is set on
// the last packet.
func (p *packetizer) packetize(frame []byte, timestamp uint32) []*rtp.Packet {
	if len(frame) == 0 {
		return nil
	}

	var payloads [][]byte
	if p.payloader != nil {
		payloads = p.payloader.Payload(p.mtu, frame)
	} else {
		payloads = [][]byte{frame}
	}

	packets := make([]*rtp.Packet, len(payloads))
	for i, payload := range payloads {
		packets[i] = &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == len(payloads)-1,
				PayloadType:    p.payloadType,
				SequenceNumber: p.sequencer.NextSequenceNumber(),
				Timestamp:      timestamp,
				SSRC:           p.ssrc,
			},
			Payload: payload,
		}
	}
	return packets
}
