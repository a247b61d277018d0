package ingest

import "errors"

// FLV tag constants
const (
	flvCodecAVC = 7
	flvSoundAAC = 10

	avcSequenceHeader = 0
	avcNALU           = 1

	aacSequenceHeader = 0
	aacRaw            = 1
)

var errShortTag = errors.New("ingest: flv tag too short")

type videoTag struct {
	keyframe   bool
	codecID    byte
	packetType byte
	data       []byte
}

func parseVideoTag(b []byte) (videoTag, error) {
	if len(b) < 5 {
		return videoTag{}, errShortTag
	}
	return videoTag{
		keyframe:   (b[0]>>4)&0x0F == 1,
		codecID:    b[0] & 0x0F,
		packetType: b[1],
		data:       b[5:],
	}, nil
}

type audioTag struct {
	format     byte
	rate       uint32
	stereo     bool
	packetType byte
	data       []byte
}

var flvSoundRates = [4]uint32{5512, 11025, 22050, 44100}

func parseAudioTag(b []byte) (audioTag, error) {
	if len(b) < 2 {
		return audioTag{}, errShortTag
	}
	tag := audioTag{
		format: b[0] >> 4,
		rate:   flvSoundRates[(b[0]>>2)&0x03],
		stereo: b[0]&0x01 == 1,
		data:   b[1:],
	}
	if tag.format == flvSoundAAC {
		tag.packetType = b[1]
		tag.data = b[2:]
	}
	return tag, nil
}

// parseAVCDecoderConfig extracts SPS and PPS from an
// AVCDecoderConfigurationRecord.
func parseAVCDecoderConfig(data []byte) (sps, pps []byte) {
	if len(data) < 8 {
		return
	}
	offset := 5
	numSPS := int(data[offset] & 0x1F)
	offset++

	for i := 0; i < numSPS && offset+2 <= len(data); i++ {
		length := int(data[offset])<<8 | int(data[offset+1])
		offset += 2
		if offset+length > len(data) {
			return
		}
		sps = append([]byte(nil), data[offset:offset+length]...)
		offset += length
	}

	if offset >= len(data) {
		return
	}
	numPPS := int(data[offset])
	offset++

	for i := 0; i < numPPS && offset+2 <= len(data); i++ {
		length := int(data[offset])<<8 | int(data[offset+1])
		offset += 2
		if offset+length > len(data) {
			return
		}
		pps = append([]byte(nil), data[offset:offset+length]...)
		offset += length
	}
	return
}

// splitAVCC splits length-prefixed NAL units.
func splitAVCC(data []byte) [][]byte {
	var nalus [][]byte
	for offset := 0; offset+4 <= len(data); {
		length := int(data[offset])<<24 | int(data[offset+1])<<16 | int(data[offset+2])<<8 | int(data[offset+3])
		offset += 4
		if length <= 0 || offset+length > len(data) {
			break
		}
		nalus = append(nalus, data[offset:offset+length])
		offset += length
	}
	return nalus
}

var startCode = []byte{0, 0, 0, 1}

// toAnnexB joins nalus with start codes, prefixing SPS and PPS on
// keyframes.
func toAnnexB(nalus [][]byte, sps, pps []byte, keyframe bool) []byte {
	var out []byte
	if keyframe && sps != nil && pps != nil {
		out = append(out, startCode...)
		out = append(out, sps...)
		out = append(out, startCode...)
		out = append(out, pps...)
	}
	for _, nalu := range nalus {
		out = append(out, startCode...)
		out = append(out, nalu...)
	}
	return out
}
