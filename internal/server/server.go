package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"anoa.com/threadline/internal/config"
	"anoa.com/threadline/internal/middleware"

	commentHttp "anoa.com/threadline/internal/modules/comment/delivery/http"
	commentRepo "anoa.com/threadline/internal/modules/comment/repository"
	commentService "anoa.com/threadline/internal/modules/comment/service"

	interactionHttp "anoa.com/threadline/internal/modules/interaction/delivery/http"
	interactionRepo "anoa.com/threadline/internal/modules/interaction/repository"
	interactionService "anoa.com/threadline/internal/modules/interaction/service"

	postHttp "anoa.com/threadline/internal/modules/post/delivery/http"
	postRepo "anoa.com/threadline/internal/modules/post/repository"
	postService "anoa.com/threadline/internal/modules/post/service"

	realtimeHttp "anoa.com/threadline/internal/modules/realtime/delivery/http"
	realtimeService "anoa.com/threadline/internal/modules/realtime/service"

	reconcileHttp "anoa.com/threadline/internal/modules/reconcile/delivery/http"
	reconcileRepo "anoa.com/threadline/internal/modules/reconcile/repository"
	reconcileService "anoa.com/threadline/internal/modules/reconcile/service"

	searchService "anoa.com/threadline/internal/modules/search/service"

	userRepo "anoa.com/threadline/internal/modules/user/repository"
	userService "anoa.com/threadline/internal/modules/user/service"

	"anoa.com/threadline/pkg/ratelimiter"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/meilisearch/meilisearch-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Server struct {
	cfg         *config.Config
	engine      *gin.Engine
	db          *gorm.DB
	redisClient *redis.Client
	broker      *realtimeService.Broker
	relay       *realtimeService.Relay
	scheduler   *reconcileService.Scheduler
	httpServer  *http.Server
	stopRelay   context.CancelFunc
}

// NewServer wires every module. redisClient and meiliClient may be nil;
// the relay, rate limiting, analytics and search are then disabled.
func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, meiliClient meilisearch.ServiceManager) (*Server, error) {
	broker := realtimeService.NewBroker(realtimeService.BrokerOptions{
		QueueSize: cfg.BrokerQueueSize,
		SlowGrace: cfg.BrokerSlowGrace,
	})

	var publisher realtimeService.Publisher = broker
	var relay *realtimeService.Relay
	if redisClient != nil {
		relay = realtimeService.NewRelay(broker, redisClient)
		publisher = relay
	}

	var indexer searchService.CommentIndexer
	if meiliClient != nil {
		indexer = searchService.NewMeiliSearchService(meiliClient)
	}

	hub := realtimeService.NewHub(publisher)
	activity := realtimeService.NewActivityTracker(publisher, hub, 0)
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)

	userRepo := userRepo.NewUserRepository(db)
	displaySvc := userService.NewDisplayService(userRepo, cfg.DisplayCacheSize, cfg.DisplayCacheTTL)

	postRepo := postRepo.NewPostRepository(db)
	postSvc := postService.NewPostService(postRepo)
	postHandler := postHttp.NewPostHandler(postSvc)

	commentSvc := commentService.NewCommentService(
		commentRepo.NewCommentRepository(db),
		postRepo,
		displaySvc,
		publisher,
		activity,
		indexer,
		ratelimiter.New(redisClient),
		commentService.Config{MaxLength: cfg.CommentMaxLength, RateLimit: cfg.RateLimitComment},
	)
	commentHandler := commentHttp.NewCommentHandler(commentSvc)

	interactionSvc := interactionService.NewInteractionService(interactionRepo.NewInteractionRepository(db), publisher, redisClient)
	interactionHandler := interactionHttp.NewInteractionHandler(interactionSvc)

	reconcileSvc := reconcileService.NewReconcileService(reconcileRepo.NewReconcileRepository(db), publisher)
	var scheduler *reconcileService.Scheduler
	if cfg.ReconcileCron != "" && cfg.ReconcileCron != "off" {
		var err error
		scheduler, err = reconcileService.NewScheduler(reconcileSvc, cfg.ReconcileCron, cfg.ReconcileBatchSize)
		if err != nil {
			return nil, err
		}
	}
	reconcileHandler := reconcileHttp.NewReconcileHandler(reconcileSvc, scheduler, cfg.ReconcileBatchSize)

	wsHandler := realtimeHttp.NewWebSocketHandler(broker, publisher, hub, postRepo, commentSvc, displaySvc, authMiddleware, realtimeHttp.Options{
		PingInterval:   cfg.WSPingInterval,
		PongWait:       cfg.WSPongWait,
		WriteWait:      cfg.WSWriteWait,
		MaxMessage:     cfg.WSMaxMessage,
		AllowedOrigins: splitOrigins(cfg.AllowedOrigins),
	})

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	setupCORS(router, cfg.AllowedOrigins)

	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health"},
	}))

	s := &Server{
		cfg:         cfg,
		engine:      router,
		db:          db,
		redisClient: redisClient,
		broker:      broker,
		relay:       relay,
		scheduler:   scheduler,
	}

	router.GET("/health", s.health)

	api := router.Group("/api")

	// Public routes (viewer identity is optional)
	public := api.Group("")
	public.Use(authMiddleware.OptionalAuth())
	{
		public.GET("/posts/:post_id", postHandler.GetPostByID)
		public.GET("/posts/:post_id/comments", commentHandler.ListTopLevel)
		public.GET("/posts/:post_id/comments/search", commentHandler.Search)
		public.GET("/comments/:comment_id", commentHandler.GetComment)
		public.GET("/comments/:comment_id/replies", commentHandler.ListReplies)
		public.GET("/comments/:comment_id/thread", commentHandler.GetThread)
		public.GET("/interactions/:target_type/:target_id", interactionHandler.GetSnapshot)
		public.GET("/ws/posts/:post_id", wsHandler.ServePost)
	}

	// Protected routes
	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		protected.POST("/posts", postHandler.CreatePost)

		protected.POST("/posts/:post_id/comments", commentHandler.CreateComment)
		protected.PUT("/comments/:comment_id", commentHandler.UpdateComment)
		protected.DELETE("/comments/:comment_id", commentHandler.DeleteComment)

		protected.POST("/interactions/toggle", interactionHandler.Toggle)
		protected.POST("/reactions", interactionHandler.SetReaction)
		protected.GET("/interactions/:target_type/:target_id/state", interactionHandler.GetState)

		protected.GET("/reconcile/sweep", reconcileHandler.LastSweep)
		protected.POST("/reconcile/sweep", reconcileHandler.Sweep)
		protected.GET("/reconcile/:target_type/:target_id", reconcileHandler.Diff)
		protected.POST("/reconcile/:target_type/:target_id", reconcileHandler.Repair)
	}

	return s, nil
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) Broker() *realtimeService.Broker {
	return s.broker
}

// Start launches the background parts: the redis relay and the
// reconciliation schedule.
func (s *Server) Start() {
	if s.relay != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopRelay = cancel
		<-s.relay.Run(ctx)
	}
	if s.scheduler != nil {
		s.scheduler.Start()
	}
}

// Run serves HTTP until Shutdown is called.
func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("🚀 Server listening on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains live connections first; http.Server.Shutdown does not wait
// for hijacked websocket connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.broker.Drain()
	log.Println("🔌 Broker drained")

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.stopRelay != nil {
		s.stopRelay()
	}
	return err
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	dbStatus := "ok"
	if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		dbStatus = "unavailable"
		status = http.StatusServiceUnavailable
	}

	redisStatus := "disabled"
	if s.redisClient != nil {
		redisStatus = "ok"
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			redisStatus = "unavailable"
		}
	}

	c.JSON(status, gin.H{
		"database": dbStatus,
		"redis":    redisStatus,
		"broker":   s.broker.Stats(),
	})
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func setupCORS(router *gin.Engine, allowedOrigins string) {
	origins := splitOrigins(allowedOrigins)
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	corsConfig := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowAllOrigins = true
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(cors.New(corsConfig))
}
