package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thesyncim/mediastream"
)

// DeviceView is the JSON form of a capture device.
type DeviceView struct {
	DeviceID string `json:"device_id"`
	GroupID  string `json:"group_id"`
	Kind     string `json:"kind"`
	Label    string `json:"label"`
}

type videoRequest struct {
	DeviceID  string `json:"device_id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	FrameRate int    `json:"frame_rate"`
}

type audioRequest struct {
	DeviceID     string `json:"device_id"`
	SampleRate   int    `json:"sample_rate"`
	ChannelCount int    `json:"channel_count"`
}

type userMediaRequest struct {
	Video *videoRequest `json:"video"`
	Audio *audioRequest `json:"audio"`
}

func (r userMediaRequest) options() mediastream.UserMediaOptions {
	var opts mediastream.UserMediaOptions
	if v := r.Video; v != nil {
		opts.Video = &mediastream.VideoConstraints{
			DeviceID:  v.DeviceID,
			Width:     v.Width,
			Height:    v.Height,
			FrameRate: v.FrameRate,
		}
	}
	if a := r.Audio; a != nil {
		opts.Audio = &mediastream.AudioConstraints{
			DeviceID:     a.DeviceID,
			SampleRate:   a.SampleRate,
			ChannelCount: a.ChannelCount,
		}
	}
	return opts
}

// listDevices handles GET /api/v1/devices
func (s *Server) listDevices(c *gin.Context) {
	devices, err := s.cfg.Devices.EnumerateDevices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	views := make([]DeviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, DeviceView{
			DeviceID: d.DeviceID,
			GroupID:  d.GroupID,
			Kind:     d.Kind.String(),
			Label:    d.Label,
		})
	}
	c.JSON(http.StatusOK, views)
}

// getUserMedia handles POST /api/v1/devices/user-media. The new stream is
// registered and returned.
func (s *Server) getUserMedia(c *gin.Context) {
	var req userMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Video == nil && req.Audio == nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "request at least one of video and audio"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.CallTimeout)
	defer cancel()
	st, err := s.cfg.Devices.GetUserMedia(ctx, req.options())
	switch {
	case errors.Is(err, mediastream.ErrNoDevices):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	var view StreamView
	if s.onLoop(c, func() { view = newStreamView(st) }) {
		c.JSON(http.StatusCreated, view)
	}
}
