package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/booking-api/internal/handler/health"
	"github.com/jwalitptl/booking-api/internal/handler/prometheus"
	"github.com/jwalitptl/booking-api/internal/middleware"
	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/service/ratelimit"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine      *gin.Engine
	auth        *middleware.AuthMiddleware
	limiter     ratelimit.Limiter
	bookingH    Handler
	availH      Handler
	scheduleH   Handler
	healthH     *health.Handler
	prometheusH *prometheus.Handler
}

type RouterConfig struct {
	Mode       string
	CORSConfig middleware.CORSConfig
	// Throttle sheds load above this per-process rate. Nil disables it.
	Throttle *ratelimit.TokenBucket
}

func NewRouter(
	log *logger.Logger,
	m *metrics.Metrics,
	auth *middleware.AuthMiddleware,
	limiter ratelimit.Limiter,
	bookingH Handler,
	availH Handler,
	scheduleH Handler,
	healthH *health.Handler,
	prometheusH *prometheus.Handler,
	config RouterConfig,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.Metrics(m),
		middleware.ErrorHandler(log),
		middleware.CORS(config.CORSConfig),
	)
	if config.Throttle != nil {
		engine.Use(middleware.Throttle(config.Throttle))
	}

	return &Router{
		engine:      engine,
		auth:        auth,
		limiter:     limiter,
		bookingH:    bookingH,
		availH:      availH,
		scheduleH:   scheduleH,
		healthH:     healthH,
		prometheusH: prometheusH,
	}
}

func (r *Router) Setup() {
	r.healthH.RegisterRoutes(r.engine)
	if r.prometheusH != nil {
		r.engine.GET("/metrics", r.prometheusH.Handler())
	}

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	// Availability is public; callers are limited by address.
	public := api.Group("")
	public.Use(middleware.RateLimit(r.limiter))
	r.availH.RegisterRoutes(public)

	// Authenticate counts rejected requests by address; the limiter after it
	// counts authenticated callers by subject.
	protected := api.Group("")
	protected.Use(
		r.auth.Authenticate(),
		middleware.RateLimit(r.limiter),
	)
	r.bookingH.RegisterRoutes(protected)

	admin := protected.Group("")
	admin.Use(r.auth.RequireRole(model.RoleProvider, model.RoleStaff, model.RoleAdmin))
	r.scheduleH.RegisterRoutes(admin)

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, middleware.ErrorResponse{
			Code:    http.StatusNotFound,
			Message: "route not found",
			TraceID: c.GetString(middleware.ContextRequestID),
		})
	})
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
