package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Conference/internal/adapters/signal"
	"github.com/dkeye/Conference/internal/app/orch"
	"github.com/dkeye/Conference/internal/app/sfu"
	"github.com/dkeye/Conference/internal/config"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

const clientTokenCookie = "ct"

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(clientTokenCookie)
		if token == "" {
			token = genClientToken()
			c.SetCookie(clientTokenCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// StatsSource reports media relay counters.
type StatsSource interface {
	Stats() []sfu.RelayStats
}

type Deps struct {
	Orch        *orch.Orchestrator
	Chats       core.ChatStore
	ChatLimiter *signal.RoomRateLimiter
	Stats       StatsSource
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

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ConferenceSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	ctrl := signal.NewSignalWSController(deps.Orch, deps.ChatLimiter)
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		sess := sessions.Default(c)
		sess.Set("last_seen", time.Now().Unix())
		if err := sess.Save(); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
		}
		ctrl.HandleSignal(ctx, c)
	})

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": deps.Orch.Rooms.List()})
	})

	chats := &chatHandlers{orch: deps.Orch, store: deps.Chats}
	api.GET("/rooms/:roomId/chats", chats.history)
	api.POST("/rooms/:roomId/chats", chats.append)

	if deps.Stats != nil {
		api.GET("/media/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"relays": deps.Stats.Stats()})
		})
	}

	return r
}

type chatHandlers struct {
	orch  *orch.Orchestrator
	store core.ChatStore
}

func (h *chatHandlers) history(c *gin.Context) {
	room, err := domain.ParseRoomID(c.Param("roomId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chats, err := h.store.History(c.Request.Context(), room)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(room)).Msg("chat history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	if chats == nil {
		chats = []domain.ChatMessage{}
	}
	c.JSON(http.StatusOK, protocol.ChatHistory{Chats: chats})
}

// append stores a message for a member of the room. The sender is taken from
// the caller's session, not the body.
func (h *chatHandlers) append(c *gin.Context) {
	room, err := domain.ParseRoomID(c.Param("roomId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var body domain.ChatMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}

	sid := core.SessionID(c.GetString("client_token"))
	peer, ok := h.orch.Registry.Peer(sid)
	joined, inRoom := h.orch.Registry.RoomOf(sid)
	if !ok || !inRoom || joined != room {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this room"})
		return
	}

	at := body.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	msg, err := domain.NewChatMessage(peer, body.Text, at)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.Append(c.Request.Context(), room, msg); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(room)).Msg("chat append")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "append failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{})
}
