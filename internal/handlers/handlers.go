package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"churchcms/api/internal/authz"
	"churchcms/api/internal/cache"
	"churchcms/api/internal/config"
	"churchcms/api/internal/middleware"
	"churchcms/api/internal/repository"
	"churchcms/api/internal/service"
)

type HandlerSet struct {
	log          zerolog.Logger
	cfg          *config.AppConfig
	auth         service.Authenticator
	local        *service.AuthService
	users        *repository.UserRepository
	sessionCache *cache.SessionCache
	db           *pgxpool.Pool
	redis        *redis.Client
}

// NewHandlerSet wires one authentication strategy per cfg.Auth.Mode.
// In local mode the service owns credentials and sessions; in provider
// mode it delegates to the hosted identity platform and the local
// session/user tables stay out of play.
func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, redisClient *redis.Client, cfg *config.AppConfig) HandlerSet {
	h := HandlerSet{
		log:   log,
		cfg:   cfg,
		db:    db,
		redis: redisClient,
	}

	if cfg.Auth.Mode == "provider" {
		h.auth = service.NewProviderAuthService(cfg.Auth, log)
		return h
	}

	h.users = repository.NewUserRepository(db)
	h.sessionCache = cache.NewSessionCache(redisClient, cfg.Auth.CacheTTL)
	h.local = service.NewAuthService(
		h.users,
		repository.NewSessionRepository(db),
		h.sessionCache,
		cfg.Auth,
		log,
	)
	h.auth = h.local
	return h
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.SignUp)
		auth.POST("/login",
			middleware.LoginRateLimit(h.redis, h.cfg.Auth.LoginRateLimit, h.cfg.Auth.LoginRateWindow, h.log),
			h.SignIn,
		)
		auth.POST("/logout", h.SignOut)

		protected := v1.Group("/auth")
		protected.Use(middleware.Auth(h.auth, h.log))
		protected.GET("/me", h.Me)
		protected.PUT("/password", h.ChangePassword)

		if h.local != nil {
			protected.GET("/sessions", h.ListSessions)
			protected.DELETE("/sessions", h.RevokeAllSessions)
		}
	}

	// User administration runs against the local credential store; in
	// provider mode accounts are managed in the platform console.
	if h.local != nil {
		admin := v1.Group("/admin")
		admin.Use(
			middleware.Auth(h.auth, h.log),
			middleware.RequirePermission(authz.PermManageUsers),
		)
		admin.GET("/users", h.AdminListUsers)
		admin.PUT("/users/:id/role", h.AdminUpdateRole)
		admin.DELETE("/users/:id", h.AdminDeleteUser)
	}
}
