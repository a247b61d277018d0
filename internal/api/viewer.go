package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/mediastream"
	"github.com/thesyncim/mediastream/platform"
)

// viewable lists the codecs pion's default media engine negotiates.
var viewable = []string{
	webrtc.MimeTypeH264,
	webrtc.MimeTypeVP8,
	webrtc.MimeTypeVP9,
	webrtc.MimeTypeAV1,
	webrtc.MimeTypeOpus,
	webrtc.MimeTypePCMU,
	webrtc.MimeTypePCMA,
	webrtc.MimeTypeG722,
}

func isViewable(codec webrtc.RTPCodecCapability) bool {
	for _, mime := range viewable {
		if strings.EqualFold(codec.MimeType, mime) {
			return true
		}
	}
	return false
}

// viewers tracks the peer connections serving stream tracks.
type viewers struct {
	mu    sync.Mutex
	conns map[*webrtc.PeerConnection]string // stream id
}

func (v *viewers) add(pc *webrtc.PeerConnection, streamID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.conns == nil {
		v.conns = make(map[*webrtc.PeerConnection]string)
	}
	v.conns[pc] = streamID
}

func (v *viewers) remove(pc *webrtc.PeerConnection) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.conns[pc]; !ok {
		return false
	}
	delete(v.conns, pc)
	return true
}

func (v *viewers) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.conns)
}

func (v *viewers) closeAll() error {
	v.mu.Lock()
	conns := v.conns
	v.conns = nil
	v.mu.Unlock()

	var errs []error
	for pc := range conns {
		errs = append(errs, pc.Close())
	}
	return errors.Join(errs...)
}

// createViewer handles POST /api/v1/streams/:id/viewers. The body is an
// SDP offer; the response is the answer with every live track of the
// stream attached.
func (s *Server) createViewer(c *gin.Context) {
	var offer webrtc.SessionDescription
	if err := c.ShouldBindJSON(&offer); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if offer.Type != webrtc.SDPTypeOffer {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "expected an sdp offer"})
		return
	}

	var (
		streamID string
		tracks   []*platform.Track
	)
	s.withStream(c, func(st *mediastream.Stream) {
		streamID = st.ID()
		for _, t := range st.GetTracks() {
			if p := t.Private(); !p.Ended() && isViewable(p.Codec()) {
				tracks = append(tracks, p)
			}
		}
	})
	if c.Writer.Written() {
		return
	}
	if len(tracks) == 0 {
		c.JSON(http.StatusConflict, errorResponse{Error: "stream has no viewable tracks"})
		return
	}

	answer, err := s.answerViewer(c, streamID, offer, tracks)
	if err != nil {
		s.log.Warn("viewer negotiation failed", "stream_id", streamID, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, answer)
}

func (s *Server) answerViewer(c *gin.Context, streamID string, offer webrtc.SessionDescription, tracks []*platform.Track) (*webrtc.SessionDescription, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	fail := func(err error) (*webrtc.SessionDescription, error) {
		pc.Close()
		return nil, err
	}

	for _, t := range tracks {
		sender, err := pc.AddTrack(t)
		if err != nil {
			return fail(fmt.Errorf("add track %s: %w", t.ID(), err))
		}
		// Drain RTCP so interceptors keep running.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}

	log := s.log.With("stream_id", streamID)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug("viewer connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			if s.viewers.remove(pc) {
				pc.Close()
			}
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		return fail(fmt.Errorf("set remote description: %w", err))
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(fmt.Errorf("create answer: %w", err))
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail(fmt.Errorf("set local description: %w", err))
	}

	select {
	case <-gathered:
	case <-c.Request.Context().Done():
		return fail(c.Request.Context().Err())
	}

	s.viewers.add(pc, streamID)
	log.Info("viewer attached", "tracks", len(tracks), "viewers", s.viewers.count())
	return pc.LocalDescription(), nil
}

// Close disconnects every viewer.
func (s *Server) Close() error {
	return s.viewers.closeAll()
}
