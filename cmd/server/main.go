package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"medwaste-backend/internal/config"
	"medwaste-backend/internal/custody"
	"medwaste-backend/internal/database"
	"medwaste-backend/internal/database/memstore"
	"medwaste-backend/internal/handlers"
	"medwaste-backend/internal/routing"
	"medwaste-backend/internal/services"
	"medwaste-backend/internal/services/directions"
	"medwaste-backend/internal/websocket"
)

func main() {
	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("🚀 MEDWASTE BACKEND SERVER STARTING")
	log.Println("═══════════════════════════════════════════════════════════════════")

	cfg, err := config.Load()
	if err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: Invalid configuration")
		log.Printf("   Error: %v", err)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}
	log.Printf("✅ Configuration loaded (store: %s)", cfg.Store)

	store, closeStore := openStore(cfg)
	defer closeStore()

	planner := routing.NewPlanner(newDirectionsProvider(cfg), cfg.RouteProviderTimeout)

	// Push notifications are optional; the server runs without them
	notifiers := services.MultiNotifier{}
	if fcmService := newFCMService(cfg, store); fcmService != nil {
		notifiers = append(notifiers, fcmService)
	}

	wsHub := websocket.NewHub(nil)
	notifiers = append(notifiers, websocket.NewNotifier(wsHub, store))

	sessionService := services.NewSessionService(store, planner, notifiers)
	handoffService := services.NewHandoffService(
		store,
		custody.NewTokenIssuer(cfg.HandoffTokenSecret, cfg.HandoffTokenTTL),
		notifiers,
		cfg.PublicBaseURL,
	)

	wsHub.SetLocationRecorder(sessionService)
	go wsHub.Run()
	log.Println("✅ WebSocket hub started")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.ExpirySweepInterval > 0 {
		go runExpirySweep(ctx, handoffService, cfg.ExpirySweepInterval)
		log.Printf("✅ Handoff expiry sweep every %s", cfg.ExpirySweepInterval)
	}

	router := handlers.NewRouter(handlers.Deps{
		Store:      store,
		Users:      services.NewUserService(store),
		Sessions:   sessionService,
		Handoffs:   handoffService,
		Containers: services.NewContainerService(store),
		Plants:     services.NewPlantService(store),
		Hub:        wsHub,
		JWTSecret:  cfg.JWTSecret,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("🛑 Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️  Shutdown error: %v", err)
		}
	}()

	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Printf("✅ SERVER READY - Listening on port %s", cfg.Port)
	log.Printf("   Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("   WebSocket:    ws://localhost:%s/ws", cfg.Port)
	log.Println("═══════════════════════════════════════════════════════════════════")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: Server failed to start")
		log.Printf("   Error: %v", err)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}
}

// openStore connects the configured backend and returns a cleanup func
func openStore(cfg config.Config) (services.Store, func()) {
	if cfg.Store == config.StoreMemory {
		log.Println("⚠️  Using in-memory store, data is lost on restart")
		store := memstore.New()
		if cfg.SeedOnStart {
			if err := seedMemory(context.Background(), store); err != nil {
				log.Fatalf("❌ Failed to seed in-memory store: %v", err)
			}
		}
		return store, func() {}
	}

	log.Println("🔌 Connecting to database...")
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: Database connection failed")
		log.Printf("   Error: %v", err)
		log.Println("   This is usually caused by:")
		log.Println("   1. Wrong DATABASE_URL format")
		log.Println("   2. PostgreSQL service is down")
		log.Println("   3. Invalid credentials")
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}
	log.Println("✅ Database connection established")

	log.Println("🔄 Running database migrations...")
	if err := database.Migrate(db); err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: Database migrations failed")
		log.Printf("   Error: %v", err)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}
	log.Println("✅ Database migrations completed")

	if cfg.SeedOnStart {
		log.Println("🌱 Seeding database with initial data...")
		if err := database.Seed(db); err != nil {
			log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			log.Println("❌ FATAL ERROR: Seeding failed")
			log.Printf("   Error: %v", err)
			log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			log.Fatal(err)
		}
		log.Println("✅ Seed data ready")
	}

	return database.NewStore(db), func() { db.Close() }
}

// newDirectionsProvider returns nil when no API key is configured, which
// leaves the planner on local ordering
func newDirectionsProvider(cfg config.Config) routing.Provider {
	if cfg.GoogleMapsAPIKey == "" {
		log.Println("⚠️  GOOGLE_MAPS_API_KEY not set, next-stop uses proximity ordering only")
		return nil
	}

	var cache directions.Cache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Invalid REDIS_URL: %v", err)
		}
		cache = directions.NewRedisCache(redis.NewClient(opts), cfg.DirectionsCacheTTL)
		log.Println("✅ Directions cache backed by Redis")
	} else {
		cache = directions.NewMemoryCache(1000, cfg.DirectionsCacheTTL)
		log.Println("✅ Directions cache in memory")
	}

	return directions.NewCachedProvider(directions.NewGoogleClient(cfg.GoogleMapsAPIKey), cache)
}

// newFCMService prefers base64 credentials (cloud deployments) over a file
func newFCMService(cfg config.Config, store services.Store) *services.FCMService {
	if cfg.FirebaseCredentialsBase64 != "" {
		fcmService, err := services.NewFCMServiceFromBase64(cfg.FirebaseCredentialsBase64, store)
		if err != nil {
			log.Printf("⚠️  Failed to initialize FCM from base64: %v (push notifications disabled)", err)
			return nil
		}
		log.Println("✅ Firebase Cloud Messaging initialized from base64 credentials")
		return fcmService
	}

	if cfg.FirebaseCredentialsFile == "" {
		log.Println("⚠️  No Firebase credentials configured (push notifications disabled)")
		return nil
	}
	fcmService, err := services.NewFCMService(cfg.FirebaseCredentialsFile, store)
	if err != nil {
		log.Printf("⚠️  Failed to initialize FCM from file: %v (push notifications disabled)", err)
		return nil
	}
	log.Println("✅ Firebase Cloud Messaging initialized from file")
	return fcmService
}

func runExpirySweep(ctx context.Context, handoffs *services.HandoffService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := handoffs.ExpireLapsed(ctx)
			if err != nil {
				log.Printf("⚠️  Expiry sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("⏰ Expired %d lapsed handoff(s)", n)
			}
		}
	}
}
