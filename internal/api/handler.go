package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thesyncim/mediastream"
)

type errorResponse struct {
	Error string `json:"error"`
}

// TrackView is the JSON form of a track.
type TrackView struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Label   string `json:"label"`
	Ended   bool   `json:"ended"`
	Muted   bool   `json:"muted"`
	Enabled bool   `json:"enabled"`
	Capture bool   `json:"capture"`
}

// StreamView is the JSON form of a stream.
type StreamView struct {
	ID                   string      `json:"id"`
	Active               bool        `json:"active"`
	Muted                bool        `json:"muted"`
	Producing            bool        `json:"producing"`
	WaitingForMediaStart bool        `json:"waiting_for_media_start"`
	MediaState           string      `json:"media_state"`
	Tracks               []TrackView `json:"tracks"`
}

// PageView is the JSON form of the page.
type PageView struct {
	CanStartMedia         bool   `json:"can_start_media"`
	CaptureMuted          bool   `json:"capture_muted"`
	HasActiveTrack        bool   `json:"has_active_track"`
	MediaState            string `json:"media_state"`
	Producers             int    `json:"producers"`
	PendingStartListeners int    `json:"pending_start_listeners"`
}

// SessionView is the JSON form of a session.
type SessionView struct {
	ID              string `json:"id"`
	MediaType       string `json:"media_type"`
	HasAudio        bool   `json:"has_audio"`
	HasVideo        bool   `json:"has_video"`
	CanProduceAudio bool   `json:"can_produce_audio"`
	Changes         int    `json:"changes"`
}

type producingRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type producingResponse struct {
	Changed bool       `json:"changed"`
	Stream  StreamView `json:"stream"`
}

type mutedRequest struct {
	Muted *bool `json:"muted" binding:"required"`
}

type canStartRequest struct {
	Allowed *bool `json:"allowed" binding:"required"`
}

func newStreamView(s *mediastream.Stream) StreamView {
	v := StreamView{
		ID:                   s.ID(),
		Active:               s.Active(),
		Muted:                s.Muted(),
		Producing:            s.IsProducingData(),
		WaitingForMediaStart: s.WaitingForMediaStart(),
		MediaState:           s.MediaState().String(),
		Tracks:               []TrackView{},
	}
	for _, t := range s.GetTracks() {
		v.Tracks = append(v.Tracks, TrackView{
			ID:      t.ID(),
			Kind:    t.Kind().String(),
			Label:   t.Label(),
			Ended:   t.Ended(),
			Muted:   t.Muted(),
			Enabled: t.Enabled(),
			Capture: t.IsCaptureTrack(),
		})
	}
	return v
}

func (s *Server) newPageView() PageView {
	p := s.cfg.Page
	return PageView{
		CanStartMedia:         p.CanStartMedia(),
		CaptureMuted:          p.IsMediaCaptureMuted(),
		HasActiveTrack:        p.HasActiveMediaStreamTrack(),
		MediaState:            p.MediaState().String(),
		Producers:             p.ProducerCount(),
		PendingStartListeners: p.PendingStartListeners(),
	}
}

func notFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, errorResponse{Error: what + " not found"})
}

// withStream runs fn on the loop against the stream named by the :id
// parameter. It writes 404 if the stream is not registered. fn must not
// touch c.
func (s *Server) withStream(c *gin.Context, fn func(st *mediastream.Stream)) {
	id := c.Param("id")
	found := false
	ok := s.onLoop(c, func() {
		st, exists := s.cfg.Registry.Lookup(id)
		if !exists {
			return
		}
		found = true
		fn(st)
	})
	if ok && !found {
		notFound(c, "stream")
	}
}

// listStreams handles GET /api/v1/streams
func (s *Server) listStreams(c *gin.Context) {
	views := []StreamView{}
	if !s.onLoop(c, func() {
		for _, st := range s.cfg.Registry.List() {
			views = append(views, newStreamView(st))
		}
	}) {
		return
	}
	c.JSON(http.StatusOK, views)
}

// getStream handles GET /api/v1/streams/:id
func (s *Server) getStream(c *gin.Context) {
	var view StreamView
	s.withStream(c, func(st *mediastream.Stream) { view = newStreamView(st) })
	if !c.Writer.Written() {
		c.JSON(http.StatusOK, view)
	}
}

// closeStream handles DELETE /api/v1/streams/:id
func (s *Server) closeStream(c *gin.Context) {
	s.withStream(c, func(st *mediastream.Stream) { st.Close() })
	if !c.Writer.Written() {
		c.Status(http.StatusNoContent)
	}
}

// setProducing handles POST /api/v1/streams/:id/producing
func (s *Server) setProducing(c *gin.Context) {
	var req producingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var resp producingResponse
	s.withStream(c, func(st *mediastream.Stream) {
		if *req.Enabled {
			resp.Changed = st.StartProducingData()
		} else {
			resp.Changed = st.StopProducingData()
		}
		resp.Stream = newStreamView(st)
	})
	if !c.Writer.Written() {
		c.JSON(http.StatusOK, resp)
	}
}

// cloneStream handles POST /api/v1/streams/:id/clone
func (s *Server) cloneStream(c *gin.Context) {
	var view StreamView
	s.withStream(c, func(st *mediastream.Stream) { view = newStreamView(st.Clone()) })
	if !c.Writer.Written() {
		c.JSON(http.StatusCreated, view)
	}
}

// removeTrack handles DELETE /api/v1/streams/:id/tracks/:trackId
func (s *Server) removeTrack(c *gin.Context) {
	trackID := c.Param("trackId")
	removed := false
	s.withStream(c, func(st *mediastream.Stream) {
		if t, ok := st.GetTrackByID(trackID); ok {
			removed = st.RemoveTrack(t)
		}
	})
	if c.Writer.Written() {
		return
	}
	if !removed {
		notFound(c, "track")
		return
	}
	c.Status(http.StatusNoContent)
}

// getPage handles GET /api/v1/page
func (s *Server) getPage(c *gin.Context) {
	c.JSON(http.StatusOK, s.newPageView())
}

// setPageMuted handles POST /api/v1/page/muted
func (s *Server) setPageMuted(c *gin.Context) {
	var req mutedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var view PageView
	if !s.onLoop(c, func() {
		s.cfg.Page.SetMediaCaptureMuted(*req.Muted)
		view = s.newPageView()
	}) {
		return
	}
	c.JSON(http.StatusOK, view)
}

// setCanStart handles POST /api/v1/page/can-start
func (s *Server) setCanStart(c *gin.Context) {
	var req canStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var view PageView
	if !s.onLoop(c, func() {
		s.cfg.Page.SetCanStartMedia(*req.Allowed)
		view = s.newPageView()
	}) {
		return
	}
	c.JSON(http.StatusOK, view)
}

// listSessions handles GET /api/v1/sessions
func (s *Server) listSessions(c *gin.Context) {
	views := []SessionView{}
	if s.cfg.Sessions != nil {
		for _, st := range s.cfg.Sessions.Sessions() {
			views = append(views, SessionView{
				ID:              st.ID,
				MediaType:       st.MediaType.String(),
				HasAudio:        st.Characteristics.Has(mediastream.CharacteristicHasAudio),
				HasVideo:        st.Characteristics.Has(mediastream.CharacteristicHasVideo),
				CanProduceAudio: st.CanProduceAudio,
				Changes:         st.Changes,
			})
		}
	}
	c.JSON(http.StatusOK, views)
}
