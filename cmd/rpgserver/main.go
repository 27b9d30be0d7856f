// AINarrativeRPG - conversational narrative-RPG game server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/belief0714/AINarrativeRPG/internal/api"
	"github.com/belief0714/AINarrativeRPG/internal/config"
	"github.com/belief0714/AINarrativeRPG/internal/llm"
	"github.com/belief0714/AINarrativeRPG/internal/media"
	"github.com/belief0714/AINarrativeRPG/internal/observability"
	"github.com/belief0714/AINarrativeRPG/internal/speech"
	"github.com/belief0714/AINarrativeRPG/pkg/conversation"
	"github.com/belief0714/AINarrativeRPG/pkg/persona"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observability.InitMetrics()

	// Personas.
	registry := persona.NewRegistry()
	if cfg.PersonaFile != "" {
		var err error
		registry, err = persona.NewRegistryFromFile(cfg.PersonaFile)
		if err != nil {
			return err
		}
		slog.Info("Loaded persona file", "path", cfg.PersonaFile, "roles", registry.Roles())
	}

	// Session store.
	store := conversation.NewMemoryStore(conversation.Options{
		MaxSessions:    cfg.MaxSessions,
		IdleTTL:        cfg.SessionIdleTTL,
		PendingTimeout: cfg.PendingTimeout,
	})
	defer func() { _ = store.Close() }()

	// Optional transcript archive.
	var archive conversation.Archive = conversation.NopArchive{}
	if cfg.RedisAddr != "" {
		redisArchive, err := conversation.NewRedisArchive(conversation.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.RedisTTL,
		})
		if err != nil {
			return err
		}
		archive = redisArchive
		slog.Info("Transcript archive connected", "addr", cfg.RedisAddr)
	}
	defer func() { _ = archive.Close() }()

	// Collaborators.
	generator, err := llm.NewChatGenerator(llm.Config{
		APIKey:      cfg.ChatAPIKey,
		BaseURL:     cfg.ChatBaseURL,
		Model:       cfg.ChatModel,
		Temperature: float32(cfg.ChatTemperature),
	})
	if err != nil {
		return err
	}

	baidu, err := speech.NewBaiduClient(speech.BaiduConfig{
		AppID:     cfg.BaiduAppID,
		APIKey:    cfg.BaiduAPIKey,
		SecretKey: cfg.BaiduSecretKey,
		Voice:     cfg.BaiduVoice,
		Speed:     cfg.BaiduSpeed,
		Pitch:     cfg.BaiduPitch,
	})
	if err != nil {
		return err
	}

	converter := &media.FFmpeg{Binary: cfg.FFmpegBinary}

	files, err := media.NewFileStore(cfg.MediaDir, cfg.MediaRetention)
	if err != nil {
		return err
	}
	files.StartJanitor(ctx, 10*time.Minute)

	// Health checks.
	health := observability.NewHealthChecker()
	health.RegisterCheck(observability.FFmpegCheck(func(ctx context.Context) error {
		return exec.CommandContext(ctx, cfg.FFmpegBinary, "-version").Run()
	}))
	if redisArchive, ok := archive.(*conversation.RedisArchive); ok {
		health.RegisterCheck(observability.RedisCheck(redisArchive.Ping))
	}

	handler := api.NewHandler(store, archive, registry, generator, baidu, baidu, converter, files, health)
	limiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(limiter, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
