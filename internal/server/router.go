package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"kutter-server/internal/auth"
	"kutter-server/internal/bus"
	"kutter-server/internal/handler"
	"kutter-server/internal/mailer"
	"kutter-server/internal/metrics"
	"kutter-server/internal/middleware"
	"kutter-server/internal/registry"
	"kutter-server/internal/relay"
	"kutter-server/internal/store"
)

type Deps struct {
	Store       *store.Store
	TokenConfig auth.TokenConfig
	Mailer      mailer.Mailer
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))

	authHandler := &handler.AuthHandler{
		Store:       deps.Store,
		Mailer:      deps.Mailer,
		TokenConfig: deps.TokenConfig,
	}

	// Credential endpoints get a per-client budget of roughly one request
	// per second with a small burst.
	authLimiter := middleware.NewRateLimiter(rate.Limit(1), 5)
	limited := r.Group("/")
	limited.Use(middleware.RateLimitMiddleware(authLimiter))
	limited.POST("/register", authHandler.Register)
	limited.POST("/login", authHandler.Login)
	limited.POST("/verify_email", authHandler.VerifyEmail)

	protected := r.Group("/")
	protected.Use(middleware.RequireAuth(deps.TokenConfig))
	protected.GET("/verify", authHandler.Verify)
	protected.DELETE("/logout", authHandler.Logout)

	chatHandler := &handler.ChatHandler{Store: deps.Store}
	protected.GET("/chats", chatHandler.ListChats)
	protected.GET("/messages/:chat_id", chatHandler.Messages)

	friendHandler := &handler.FriendHandler{Store: deps.Store}
	protected.GET("/friend_req", friendHandler.ListRequests)

	// Each domain gets its own session registry and broadcast bus; the
	// relays authenticate the upgrade themselves from the query token or
	// cookie.
	chatRegistry := registry.New()
	chatRelay := &relay.ChatRelay{
		Store:       deps.Store,
		Registry:    chatRegistry,
		Bus:         bus.New[relay.ChatEvent](relay.ChatBusCapacity),
		Resolver:    &relay.Resolver{Store: deps.Store, Registry: chatRegistry},
		TokenConfig: deps.TokenConfig,
		Metrics:     m,
	}
	r.GET("/ws", chatRelay.Serve)

	friendRegistry := registry.New()
	friendRelay := &relay.FriendRelay{
		Store:       deps.Store,
		Registry:    friendRegistry,
		Bus:         bus.New[relay.FriendEvent](relay.FriendBusCapacity),
		Resolver:    &relay.Resolver{Store: deps.Store, Registry: friendRegistry},
		TokenConfig: deps.TokenConfig,
		Metrics:     m,
	}
	r.GET("/ws/friend_req", friendRelay.Serve)

	return r
}
