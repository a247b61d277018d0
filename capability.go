package mediastream

import "strings"

// MediaState is a set of coarse flags describing what a stream is playing
// or capturing. It is only non-zero while the stream is active.
type MediaState uint32

const (
	HasAudioOrVideo MediaState = 1 << iota
	HasMutedAudioCaptureDevice
	HasActiveAudioCaptureDevice
	HasMutedVideoCaptureDevice
	HasActiveVideoCaptureDevice
)

// IsNotPlaying is the empty MediaState.
const IsNotPlaying MediaState = 0

var mediaStateNames = []struct {
	flag MediaState
	name string
}{
	{HasAudioOrVideo, "audio-or-video"},
	{HasMutedAudioCaptureDevice, "muted-audio-capture"},
	{HasActiveAudioCaptureDevice, "active-audio-capture"},
	{HasMutedVideoCaptureDevice, "muted-video-capture"},
	{HasActiveVideoCaptureDevice, "active-video-capture"},
}

// Has reports whether every flag in f is set.
func (m MediaState) Has(f MediaState) bool { return m&f == f }

func (m MediaState) String() string {
	if m == IsNotPlaying {
		return "not-playing"
	}
	var parts []string
	for _, n := range mediaStateNames {
		if m.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Characteristics is what a session authority sees of a stream while it
// produces data.
type Characteristics uint8

const (
	CharacteristicHasAudio Characteristics = 1 << iota
	CharacteristicHasVideo
)

// CharacteristicsNone is reported while a stream is not producing data.
const CharacteristicsNone Characteristics = 0

// Has reports whether every bit of f is set in c.
func (c Characteristics) Has(f Characteristics) bool { return c&f == f }

// MediaType classifies a stream for session policy.
type MediaType int

const (
	MediaTypeNone MediaType = iota
	MediaTypeCapturingAudio
)

func (t MediaType) String() string {
	if t == MediaTypeCapturingAudio {
		return "capturing-audio"
	}
	return "none"
}

// MediaState computes the stream's flags from the current track set.
func (s *Stream) MediaState() MediaState {
	state := IsNotPlaying
	if !s.active {
		return state
	}

	producing := s.producing && s.private.IsProducingData()
	muted := s.private.Muted()

	if s.private.HasAudio() {
		state |= HasAudioOrVideo
		if s.private.HasCaptureAudioSource() {
			if muted {
				state |= HasMutedAudioCaptureDevice
			} else if producing {
				state |= HasActiveAudioCaptureDevice
			}
		}
	}

	if s.private.HasVideo() {
		state |= HasAudioOrVideo
		if s.private.HasCaptureVideoSource() {
			if muted {
				state |= HasMutedVideoCaptureDevice
			} else if producing {
				state |= HasActiveVideoCaptureDevice
			}
		}
	}
	return state
}

// Characteristics reports audio/video presence while producing data.
func (s *Stream) Characteristics() Characteristics {
	c := CharacteristicsNone
	if !s.producing {
		return c
	}
	if s.private.HasAudio() {
		c |= CharacteristicHasAudio
	}
	if s.private.HasVideo() {
		c |= CharacteristicHasVideo
	}
	return c
}

// MediaType classifies the stream for its media session.
func (s *Stream) MediaType() MediaType {
	if s.producing && s.private.HasAudio() && s.private.HasCaptureAudioSource() {
		return MediaTypeCapturingAudio
	}
	return MediaTypeNone
}

// CanProduceAudio reports whether the stream could currently play audio.
func (s *Stream) CanProduceAudio() bool {
	return !s.muted && s.active && s.private.HasAudio() && s.producing
}

// IsProducingData reports whether StartProducingData took effect and has
// not been undone.
func (s *Stream) IsProducingData() bool { return s.producing }

// WaitingForMediaStart reports whether a StartProducingData call is latched
// until the host allows media to start.
func (s *Stream) WaitingForMediaStart() bool { return s.waitingForMediaStart }

// StartProducingData starts media on the platform stream. It returns false
// if the stream was already producing, or if the host does not allow media
// to start yet; in that case the request is replayed once when it does.
func (s *Stream) StartProducingData() bool {
	if s.closed || s.producing {
		return false
	}

	if !s.cfg.Host.CanStartMedia() {
		if !s.waitingForMediaStart {
			s.waitingForMediaStart = true
			s.cfg.Host.AddMediaCanStartListener(s)
			s.log.Debug("media start deferred")
		}
		return false
	}

	s.producing = true
	s.cfg.Session.CanProduceAudioChanged(s)
	s.private.StartProducingData()
	return true
}

// StopProducingData stops media on the platform stream. It returns false if
// the stream was not producing.
func (s *Stream) StopProducingData() bool {
	if !s.producing {
		return false
	}
	s.producing = false
	s.cfg.Session.CanProduceAudioChanged(s)
	s.private.StopProducingData()
	return true
}

// MediaCanStart implements MediaCanStartListener.
func (s *Stream) MediaCanStart() {
	if !s.waitingForMediaStart {
		return
	}
	s.waitingForMediaStart = false
	s.StartProducingData()
}

// PageMutedStateDidChange implements MediaProducer. Capture tracks follow
// the host's capture mute while the stream is active.
func (s *Stream) PageMutedStateDidChange() {
	if !s.active {
		return
	}
	s.private.SetCaptureTracksMuted(s.cfg.Host.IsMediaCaptureMuted())
}

// EndCaptureTracks stops every capture track. Streams observe the ends on a
// later tick.
func (s *Stream) EndCaptureTracks() {
	for _, t := range s.order {
		if t.IsCaptureTrack() {
			t.Stop()
		}
	}
}
