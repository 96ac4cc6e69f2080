package router // package router wires handlers and middleware onto Echo

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/config"
	"github.com/iliyamo/homewatch/internal/handler"
	"github.com/iliyamo/homewatch/internal/middleware"
	"github.com/iliyamo/homewatch/internal/session"
)

// Deps is everything the HTTP surface needs.  Redis may be nil, in which
// case rate limiting is disabled.
type Deps struct {
	Auth          *handler.AuthHandler
	Account       *handler.AccountHandler
	Topology      *handler.TopologyHandler
	Notifications *handler.NotificationHandler
	Live          *handler.LiveHandler

	Sessions  *session.Manager
	JWTSecret string
	DeviceKey string
	RateLimit config.RateLimitConfig
	Redis     *redis.Client
	Log       *zap.Logger
}

// New builds the Echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Log))

	RegisterRoutes(e)
	Register(e, d)
	return e
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/", handler.Root)
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Register mounts the /api surface.  Public auth routes are limited per
// client address; protected routes run the identity middleware first so
// the limiter can key on the acting user.
func Register(e *echo.Echo, d Deps) {
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log)
	identity := middleware.Identity(d.Sessions, d.JWTSecret)

	pub := e.Group("/api", limit)
	pub.POST("/registro", d.Auth.Register)
	pub.POST("/login", d.Auth.Login)
	pub.POST("/login/google", d.Auth.LoginGoogle)

	// devices post events with a shared key; bursts are expected when an
	// alarm fires so they get their own bucket
	e.POST("/api/notificaciones/enviar", d.Notifications.Ingest,
		middleware.DeviceKey(d.DeviceKey),
		middleware.NewIngestTokenBucket(d.RateLimit, d.Redis, d.Log))

	api := e.Group("/api", identity, limit)
	api.POST("/logout", d.Auth.Logout)

	u := api.Group("/usuario")
	u.GET("", d.Account.Profile)
	u.PUT("/premium", d.Account.SetPremium)
	u.PUT("/normal", d.Account.SetNormal)
	u.GET("/adherentes", d.Account.Adherents)
	u.POST("/adherentes", d.Account.AddAdherent)
	u.DELETE("/adherentes/:id", d.Account.RemoveAdherent)
	u.GET("/pagos", d.Account.Payments)
	u.GET("/puede-agregar", d.Account.Allowance)
	u.POST("/push-tokens", d.Account.AddPushToken)
	u.DELETE("/push-tokens", d.Account.RemovePushToken)

	r := api.Group("/regiones")
	r.GET("", d.Topology.Regions)
	r.POST("/add", d.Topology.CreateRegion)
	r.PUT("/:id_reg", d.Topology.UpdateRegion)
	r.DELETE("/:id_reg", d.Topology.DeleteRegion)
	r.GET("/:id_reg/dispositivos", d.Topology.Devices)
	r.POST("/:id_reg/dispositivos/add", d.Topology.AddDevice)
	r.PUT("/:id_reg/dispositivos/:id_disp", d.Topology.UpdateDevice)
	r.DELETE("/:id_reg/dispositivos/:id_disp", d.Topology.DeleteDevice)
	r.GET("/:id_reg/dispositivos/:id_disp/camara", d.Topology.Camera)
	r.POST("/:id_reg/dispositivos/:id_disp/addcam", d.Topology.AddCamera)

	api.PUT("/camaras/:id_cam", d.Topology.UpdateCamera)
	api.DELETE("/camaras/:id_cam", d.Topology.DeleteCamera)

	api.GET("/notificaciones", d.Notifications.List)
	api.GET("/notificacionesmenu", d.Notifications.Menu)
	api.GET("/notificaciones/:id", d.Notifications.Detail)
	api.DELETE("/notificaciones/:id", d.Notifications.Delete)

	api.GET("/live", d.Live.Connect)
}
