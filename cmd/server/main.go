package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"teamchat/internal/chat"
	"teamchat/internal/config"
	"teamchat/internal/db"
	"teamchat/internal/identity"
	"teamchat/internal/jobs"
	"teamchat/internal/logging"
	"teamchat/internal/media"
	authmw "teamchat/internal/middleware"
	"teamchat/internal/preview"
	"teamchat/internal/push"
	"teamchat/internal/reaction"
)

// messageEffects fans a committed send out to the background pipelines:
// link-preview resolution right away, push notification after the debounce
// window.
type messageEffects struct {
	queue      *jobs.Queue
	previews   *preview.Service
	dispatcher *push.Dispatcher
}

func (e *messageEffects) MessageSent(conversationID, messageID, senderID uuid.UUID, senderName, body string) {
	if body != "" {
		e.queue.Now(func(ctx context.Context) {
			e.previews.ProcessMessageBody(ctx, body)
		})
	}
	e.dispatcher.Schedule(context.Background(), conversationID, senderID, senderName, body)
}

func main() {
	// 1. Config
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Platform layer: Postgres + Redis
	database, err := db.New(cfg.Database.DSN)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer database.Conn.Close()

	if err := database.Migrate(ctx); err != nil {
		logging.Fatal().Err(err).Msg("migration failed")
	}
	logging.Info().Msg("database schema initialized")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	queue := jobs.New(4, 64)
	go queue.Run(ctx)

	// 3. Identity
	identityRepo := identity.NewRepository(database.Conn)
	identityService := identity.NewService(identityRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	identityHandler := identity.NewHandler(identityService)
	auth := authmw.NewAuth(identityService)

	// 4. Chat + media
	chatRepo := chat.NewRepository(database.Conn)
	guard := chat.NewGuard(chatRepo)

	blobStore := media.NewHTTPStore(cfg.Blob.BaseURL, cfg.Blob.Key, cfg.Blob.Secret)
	mediaRepo := media.NewRepository(database.Conn)
	mediaService := media.NewService(blobStore, mediaRepo, guard, cfg.Blob.SignTTL)
	mediaHandler := media.NewHandler(mediaService)

	chatService := chat.NewService(chatRepo, chatRepo, guard, mediaService, identityRepo, cfg.Chat)

	presence := push.NewRedisPresence(redisClient, cfg.Push.PresenceThreshold)

	hub := chat.NewHub(redisClient)
	hub.SetPresence(presence)
	chatService.SetBroadcaster(hub)
	chatHandler := chat.NewHandler(chatService, hub)

	go hub.Run(ctx)
	go hub.SubscribeToRedis(ctx)

	// 5. Reactions
	reactionRepo := reaction.NewRepository(database.Conn)
	reactionService := reaction.NewService(reactionRepo, guard)
	reactionHandler := reaction.NewHandler(reactionService)

	// 6. Link previews
	previewGuard := preview.NewGuard()
	fetcher := preview.NewFetcher(previewGuard, cfg.Preview.FetchTimeout, cfg.Preview.MaxBodyBytes, cfg.Preview.UserAgent)
	previewRepo := preview.NewRepository(database.Conn)
	previewService := preview.NewService(previewRepo, fetcher, previewGuard,
		preview.DefaultRegistry(), mediaService.Store(), cfg.Preview.TTL, cfg.Chat.MaxURLsPerBody)
	previewHandler := preview.NewHandler(previewService)

	go previewService.RunSweeper(ctx, cfg.Preview.SweepInterval)

	// 7. Push notifications
	pushRepo := push.NewRepository(database.Conn)
	sender := push.NewWebPushSender(cfg.Push.Subscriber,
		cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.SendTimeout)
	dispatcher := push.NewDispatcher(pushRepo, chatRepo, identityRepo, presence,
		push.NewRedisDebounce(redisClient), queue, sender, cfg.Push.DebounceDelay)
	registrar := push.NewRegistrar(pushRepo, cfg.Push.MaxSubsPerUser, cfg.Push.VAPIDPublicKey)
	pushHandler := push.NewHandler(registrar)

	chatService.SetSideEffects(&messageEffects{
		queue:      queue,
		previews:   previewService,
		dispatcher: dispatcher,
	})

	// Removing an account redacts its message history and drops its devices.
	identityService.OnRemove(func(ctx context.Context, userID uuid.UUID) error {
		return chatService.RedactAuthor(ctx, userID)
	})
	identityService.OnRemove(func(ctx context.Context, userID uuid.UUID) error {
		return registrar.DropUser(ctx, userID)
	})

	// 8. Routes
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Post("/register", identityHandler.Register)
	r.Post("/login", identityHandler.Login)
	r.Handle("/metrics", promhttp.Handler())

	// Blob reads resolve the token from header or query param so plain
	// <img> tags work, then enforce access per image inside the handler.
	r.Group(func(r chi.Router) {
		r.Use(auth.Optional)
		r.Get("/images/{id}", mediaHandler.GetImage)
		r.Get("/previews/*", mediaHandler.GetPreviewBlob)
	})

	// Read endpoints degrade for anonymous and non-member callers (empty
	// page, reacted_by_me=false) instead of rejecting, so they take the
	// optional resolver.
	r.Group(func(r chi.Router) {
		r.Use(auth.Optional)
		r.Use(httprate.LimitByIP(cfg.Server.RequestsPerMinute, time.Minute))

		r.Get("/api/messages", chatHandler.ListMessages)
		r.Get("/api/messages/{id}/reactions", reactionHandler.ForMessage)
		r.Get("/api/reactions", reactionHandler.ForMessages)
		r.Get("/api/previews", previewHandler.GetBatch)
		r.Get("/api/previews/{hash}", previewHandler.GetByHash)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Require)
		r.Use(httprate.LimitByIP(cfg.Server.RequestsPerMinute, time.Minute))

		r.Get("/ws", chatHandler.ServeWs)

		r.Get("/api/conversations", chatHandler.ListConversations)
		r.Post("/api/conversations", chatHandler.StartConversation)
		r.Get("/api/conversations/team", chatHandler.TeamConversation)
		r.Post("/api/conversations/{id}/participants", chatHandler.AddParticipant)

		r.Post("/api/messages", chatHandler.Send)
		r.Post("/api/messages/images", chatHandler.SendWithImages)
		r.Post("/api/messages/gif", chatHandler.SendGIF)
		r.Delete("/api/messages/{id}", chatHandler.DeleteMessage)

		r.Post("/api/messages/{id}/reactions", reactionHandler.Toggle)

		r.Post("/api/uploads", mediaHandler.CreateUploadURL)
		r.Get("/api/messages/{id}/images", mediaHandler.MessageImageURLs)

		r.Get("/api/push/vapid-key", pushHandler.VAPIDKey)
		r.Post("/api/push/subscriptions", pushHandler.Subscribe)
		r.Delete("/api/push/subscriptions", pushHandler.Unsubscribe)

		r.Delete("/api/users/{id}", removeUser(identityService))
	})

	// 9. Serve
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", cfg.Server.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("shutdown failed")
	}
}

// removeUser lets an admin delete an account.
func removeUser(service *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := authmw.PrincipalFrom(r.Context())
		if !p.IsAdmin() {
			http.Error(w, "admin only", http.StatusForbidden)
			return
		}
		userID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid user id", http.StatusBadRequest)
			return
		}
		if err := service.Remove(r.Context(), userID); err != nil {
			http.Error(w, "could not remove user", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
