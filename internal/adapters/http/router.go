// Package http is the local control surface of the sharer: the three
// sharing intents, a status view, the roster and chat.
package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ScreenShare/internal/adapters/signal"
	"github.com/dkeye/ScreenShare/internal/app/conference"
	"github.com/dkeye/ScreenShare/internal/app/membership"
	"github.com/dkeye/ScreenShare/internal/app/orch"
	"github.com/dkeye/ScreenShare/internal/config"
	"github.com/dkeye/ScreenShare/internal/domain"
)

// Sharing is the intent side of the orchestrator.
type Sharing interface {
	StartSharing()
	StopSharing()
	Reshare()
	Status() orch.Status
}

// Session is the conference service as used by the API.
type Session interface {
	Name() domain.ConferenceName
	MyUserID() domain.ParticipantID
	DisplayName() string
	SetDisplayName(ctx context.Context, name string) error
	SendTextMessage(text string) error
	SendPosition(p domain.Point) error
	LocalPosition() domain.Point
}

type Deps struct {
	Sharing Sharing
	Session Session
	Store   *membership.Store
}

type sessionView struct {
	Status      orch.Status           `json:"status"`
	Conference  domain.ConferenceName `json:"conference"`
	Me          domain.ParticipantID  `json:"me,omitempty"`
	DisplayName string                `json:"displayName"`
	Position    domain.Point          `json:"pos"`
	Unread      int                   `json:"unread"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type zoomRequest struct {
	ID   domain.ParticipantID `json:"id"`
	Zoom *bool                `json:"zoom"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	api := r.Group("/api")

	intent := func(fn func()) gin.HandlerFunc {
		return func(c *gin.Context) {
			fn()
			c.JSON(http.StatusAccepted, deps.Sharing.Status())
		}
	}
	api.POST("/share/start", intent(deps.Sharing.StartSharing))
	api.POST("/share/stop", intent(deps.Sharing.StopSharing))
	api.POST("/share/reshare", intent(deps.Sharing.Reshare))

	api.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, sessionView{
			Status:      deps.Sharing.Status(),
			Conference:  deps.Session.Name(),
			Me:          deps.Session.MyUserID(),
			DisplayName: deps.Session.DisplayName(),
			Position:    deps.Session.LocalPosition(),
			Unread:      deps.Store.Unread(),
		})
	})

	api.GET("/roster", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"participants": deps.Store.ParticipantsSnapshot()})
	})

	api.GET("/roster/stream", func(c *gin.Context) {
		ch := deps.Store.Subscribe()
		defer deps.Store.Unsubscribe(ch)

		c.SSEvent("roster", deps.Store.ParticipantsSnapshot())
		c.Writer.Flush()
		c.Stream(func(io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case <-c.Request.Context().Done():
				return false
			case _, ok := <-ch:
				if !ok {
					return false
				}
				c.SSEvent("roster", deps.Store.ParticipantsSnapshot())
				return true
			}
		})
	})

	api.POST("/name", func(c *gin.Context) {
		var req nameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
		if err := deps.Session.SetDisplayName(c.Request.Context(), req.Name); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"displayName": deps.Session.DisplayName()})
	})

	api.GET("/chat", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"messages": deps.Store.Messages(), "unread": deps.Store.Unread()})
	})

	api.POST("/chat", func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing message"})
			return
		}
		if err := deps.Session.SendTextMessage(req.Message); err != nil {
			c.JSON(statusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/chat/read", func(c *gin.Context) {
		deps.Store.ClearUnread()
		c.Status(http.StatusNoContent)
	})

	api.POST("/position", func(c *gin.Context) {
		var req domain.Point
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid position"})
			return
		}
		if err := deps.Session.SendPosition(req); err != nil {
			c.JSON(statusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	// zoom is local view state and is never sent to the conference
	api.POST("/zoom", func(c *gin.Context) {
		var req zoomRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" || req.Zoom == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid zoom"})
			return
		}
		if err := deps.Store.SetZoom(req.ID, *req.Zoom); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, conference.ErrNoConference):
		return http.StatusConflict
	case errors.Is(err, signal.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}
