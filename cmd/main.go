package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"emberquest/server/internal/config"
	"emberquest/server/internal/engine"
	"emberquest/server/internal/game"
	"emberquest/server/internal/generators"
	"emberquest/server/internal/storage"
	"emberquest/server/internal/web"
)

func main() {
	// Load .env if present; real deployments set env directly
	_ = godotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize storage connections
	var store storage.Store
	mysqlStore, err := storage.NewMySQLStore(cfg.Database.MySQL)
	if err != nil {
		log.Printf("Warning: Failed to connect to MySQL: %v", err)
		log.Println("Falling back to in-memory store; adventures will not survive a restart")
		store = storage.NewMemoryStore()
	} else {
		defer mysqlStore.Close()
		log.Println("MySQL connected successfully")
		store = mysqlStore
	}

	var locks storage.Locker
	redisStore, err := storage.NewRedisStore(cfg.Database.Redis)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		log.Println("Falling back to in-process locks; run a single instance")
		locks = storage.NewLocalLocker()
	} else {
		defer redisStore.Close()
		log.Println("Redis connected successfully")
		locks = &storage.RedisLocker{Store: redisStore}
	}

	if cfg.Narrator.APIKey == "" {
		log.Println("Warning: No narrator API key provided. Adventure creation will fail.")
	}
	narrator := engine.NewNarrator(cfg.Narrator)

	svc := game.NewService(store, locks, narrator, cfg.Game)

	// Scene rendering pipeline: optional, fire-and-forget relative to turns
	hub := web.NewSceneHub()
	go hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sceneCache *generators.SceneCache
	if cfg.Renderer.Enabled {
		sceneCache = generators.NewSceneCache(cfg.Renderer.CacheDir, 1000, 24*time.Hour)
		if err := sceneCache.Initialize(); err != nil {
			log.Printf("Warning: Failed to initialize scene cache: %v", err)
		}

		renderer := generators.NewSceneClient(cfg.Renderer)
		queue := generators.NewSceneQueue(renderer, sceneCache, cfg.Renderer.Workers)
		queue.OnReady = func(adventureID, key string) {
			attachScene(context.Background(), store, locks, adventureID, key)
			hub.NotifySceneReady(adventureID, key)
		}
		queue.Start(ctx)

		svc.SceneHook = func(adventureID, prompt string) {
			queue.Enqueue(adventureID, narrator.ScenePrompt(prompt))
		}
		log.Printf("Scene renderer enabled with %d workers", cfg.Renderer.Workers)
	}

	handlers := web.NewHandlers(svc, store, sceneCache, hub)
	r := web.NewRouter(handlers)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// attachScene records the rendered image key on its adventure so resume can
// surface the scene without waiting for a live websocket.
func attachScene(ctx context.Context, store storage.Store, locks storage.Locker, adventureID, key string) {
	release, err := locks.Acquire(ctx, "adventure:"+adventureID)
	if err != nil {
		log.Printf("Warning: failed to lock adventure %s for scene attach: %v", adventureID, err)
		return
	}
	defer release()

	adv, err := store.GetAdventure(ctx, adventureID)
	if err != nil {
		return
	}
	adv.SceneImageKey = key
	if err := store.SaveAdventure(ctx, adv); err != nil {
		log.Printf("Warning: failed to attach scene to adventure %s: %v", adventureID, err)
	}
}
