package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/careline/telecall/internal/adapters/signalws"
	"github.com/careline/telecall/internal/config"
	"github.com/careline/telecall/internal/consult"
	"github.com/careline/telecall/internal/domain"
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

// SetupRouter wires the REST bootstrap surface and the signaling WebSocket.
func SetupRouter(ctx context.Context, cfg *config.Config, store *consult.Store, ws *signalws.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("TelecallSessions", cookieStore))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// POST /api/consultations: bootstrap, the returned id becomes the room id.
	api.POST("/consultations", func(c *gin.Context) {
		var req struct {
			DoctorID  string `json:"doctorId"`
			PatientID string `json:"patientId"`
		}
		if err := c.BindJSON(&req); err != nil || req.DoctorID == "" || req.PatientID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "doctorId and patientId are required"})
			return
		}
		cons, err := store.Create(c.Request.Context(), req.DoctorID, req.PatientID)
		if err != nil {
			log.Error().Err(err).Str("module", "httpapi").Msg("create consultation")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create consultation"})
			return
		}
		c.JSON(http.StatusOK, cons)
	})

	api.GET("/consultations/:id", func(c *gin.Context) {
		cons, err := store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, consult.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			log.Error().Err(err).Str("module", "httpapi").Msg("get consultation")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch consultation"})
			return
		}
		c.JSON(http.StatusOK, cons)
	})

	// PATCH /api/consultations/:id: status updates come from the surrounding
	// application (e.g. after the controller reports call end).
	api.PATCH("/consultations/:id", func(c *gin.Context) {
		var req struct {
			Status domain.ConsultationStatus `json:"status"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		switch req.Status {
		case domain.StatusPending, domain.StatusActive, domain.StatusEnded:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		if err := store.SetStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
			if errors.Is(err, consult.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			log.Error().Err(err).Str("module", "httpapi").Msg("update consultation")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update consultation"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	r.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "httpapi").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ws.HandleSignal(ctx, c)
	})

	return r
}
