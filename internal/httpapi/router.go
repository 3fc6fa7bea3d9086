package httpapi

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"geoattend/internal/auth"
	"geoattend/internal/httpmiddleware"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	SigningKey  string
	Issuer      string
	Limiter     httpmiddleware.Limiter
	CORSOrigins string
	Log         *zap.Logger
}

// NewRouter assembles the gin engine with middleware and routes.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	if opts.Limiter != nil {
		r.Use(httpmiddleware.RateLimit(opts.Limiter, httpmiddleware.ClientIP, opts.Log))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1", auth.Session(opts.SigningKey, opts.Issuer))
	{
		// Identity is checked by the decision gate so every outcome is counted.
		v1.POST("/attendance", h.MarkAttendance)

		staff := v1.Group("", auth.RequireActor())
		staff.GET("/attendance", h.ListAttendance)
		staff.GET("/attendance/stats", h.AttendanceStats)
		staff.GET("/fences", h.ListFences)
	}

	return r
}

func corsConfig(origins string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       24 * time.Hour,
	}
	origins = strings.TrimSpace(origins)
	if origins == "" || origins == "*" {
		cfg.AllowAllOrigins = true
		return cfg
	}
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, o)
		}
	}
	cfg.AllowCredentials = true
	return cfg
}
