package http

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/veselov/meetsync/internal/config"
	"github.com/veselov/meetsync/internal/domain"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SetupRouter builds the devserver surface: the session endpoints the core's
// transport channels consume, plus a command injection endpoint for driving
// a session by hand.
func SetupRouter(cfg *config.Config, hub *SessionHub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("MeetsyncSessions", store))
	r.Use(ClientTokenMiddleware())

	api := r.Group("/api")
	s := api.Group("/sessions/:id")

	s.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.State(c.Param("id")))
	})

	s.GET("/commands", func(c *gin.Context) {
		commands := hub.DrainPending(c.Param("id"))
		if commands == nil {
			commands = []domain.Message{}
		}
		c.JSON(http.StatusOK, commands)
	})

	s.POST("/commands/acknowledge", func(c *gin.Context) {
		var ack domain.Acknowledgment
		if err := c.ShouldBindJSON(&ack); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid acknowledgment"})
			return
		}
		hub.RecordAck(c.Param("id"), ack)
		log.Debug().Str("module", "devserver").
			Str("message_id", string(ack.MessageID)).
			Str("participant", string(ack.ParticipantID)).
			Msg("acknowledgment recorded")
		c.Status(http.StatusNoContent)
	})

	s.POST("/commands", func(c *gin.Context) {
		var msg domain.Message
		if err := c.ShouldBindJSON(&msg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message"})
			return
		}
		if msg.ID == "" {
			msg.ID = domain.MessageID(uuid.NewString())
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		hub.Publish(c.Param("id"), msg)
		c.JSON(http.StatusOK, gin.H{"message_id": msg.ID})
	})

	s.GET("/events", func(c *gin.Context) {
		handleEventStream(c, hub)
	})

	api.GET("/ws/meeting/:id", func(c *gin.Context) {
		handleMeetingWS(c, hub)
	})

	return r
}

// handleEventStream is the server-push channel: one JSON message per
// `data:` line, kept open until the client goes away.
func handleEventStream(c *gin.Context, hub *SessionHub) {
	sessionID := c.Param("id")
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	msgs, cancel := hub.Subscribe(sessionID)
	defer cancel()

	log.Info().Str("module", "devserver").Str("session", sessionID).Msg("event stream opened")

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case msg := <-msgs:
			c.SSEvent("message", msg)
			return true
		case <-keepalive.C:
			c.SSEvent("ping", nil)
			return true
		}
	})
}

// handleMeetingWS upgrades a pub/sub connection: everything published to
// the session is written out, everything received is published onward.
func handleMeetingWS(c *gin.Context, hub *SessionHub) {
	sessionID := c.Param("id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "devserver").Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	msgs, cancel := hub.Subscribe(sessionID)
	defer cancel()

	token := c.GetString("client_token")
	log.Info().Str("module", "devserver").Str("session", sessionID).Str("client", token).Msg("ws client joined")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg domain.Message
			if err := conn.ReadJSON(&msg); err != nil {
				log.Debug().Err(err).Str("module", "devserver").Msg("ws read closed")
				return
			}
			if msg.ID == "" {
				msg.ID = domain.MessageID(uuid.NewString())
			}
			hub.Publish(sessionID, msg)
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case msg := <-msgs:
			if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn().Err(err).Str("module", "devserver").Msg("ws write failed")
				return
			}
		}
	}
}
